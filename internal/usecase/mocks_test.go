package usecase_test

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

type mockControls struct{ mock.Mock }

func (m *mockControls) ListByType(ctx context.Context, userID, controlType string) ([]domain.ControlRecord, error) {
	args := m.Called(ctx, userID, controlType)
	recs, _ := args.Get(0).([]domain.ControlRecord)
	return recs, args.Error(1)
}

func (m *mockControls) Get(ctx context.Context, id string) (domain.ControlRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.ControlRecord), args.Error(1)
}

func (m *mockControls) FindByControl(ctx context.Context, key domain.ControlKey) (domain.ControlRecord, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(domain.ControlRecord), args.Error(1)
}

func (m *mockControls) Import(ctx context.Context, recs []domain.ControlRecord) ([]domain.ControlRecord, error) {
	args := m.Called(ctx, recs)
	out, _ := args.Get(0).([]domain.ControlRecord)
	return out, args.Error(1)
}

func (m *mockControls) DeleteByType(ctx context.Context, userID, controlType string) (int64, error) {
	args := m.Called(ctx, userID, controlType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockControls) History(ctx context.Context, userID string, limit int) ([]domain.ControlRecord, error) {
	args := m.Called(ctx, userID, limit)
	recs, _ := args.Get(0).([]domain.ControlRecord)
	return recs, args.Error(1)
}

func (m *mockControls) HistoryBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.ControlRecord, error) {
	args := m.Called(ctx, userID, from, to)
	recs, _ := args.Get(0).([]domain.ControlRecord)
	return recs, args.Error(1)
}

func (m *mockControls) Summary(ctx context.Context, userID string) (domain.ComplianceSummary, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.ComplianceSummary), args.Error(1)
}

type mockChats struct{ mock.Mock }

func (m *mockChats) Append(ctx context.Context, entries ...domain.ChatEntry) ([]domain.ChatEntry, error) {
	args := m.Called(ctx, entries)
	out, _ := args.Get(0).([]domain.ChatEntry)
	return out, args.Error(1)
}

func (m *mockChats) List(ctx context.Context, userID, chatbotID string) ([]domain.ChatEntry, error) {
	args := m.Called(ctx, userID, chatbotID)
	out, _ := args.Get(0).([]domain.ChatEntry)
	return out, args.Error(1)
}

func (m *mockChats) DeleteByType(ctx context.Context, userID, controlType string) (int64, error) {
	args := m.Called(ctx, userID, controlType)
	return args.Get(0).(int64), args.Error(1)
}

type mockJudge struct{ mock.Mock }

func (m *mockJudge) Judge(ctx context.Context, prompt string) (domain.Verdict, error) {
	args := m.Called(ctx, prompt)
	return args.Get(0).(domain.Verdict), args.Error(1)
}

type mockChatModel struct{ mock.Mock }

func (m *mockChatModel) Complete(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) PublishEvaluation(ctx context.Context, ev domain.EvaluationCompleted) error {
	return m.Called(ctx, ev).Error(0)
}

type mockLimiter struct{ mock.Mock }

func (m *mockLimiter) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	args := m.Called(ctx, key, cost)
	return args.Bool(0), args.Get(1).(time.Duration), args.Error(2)
}

// stubBlobs stores objects in memory and returns a fake URL per key.
type stubBlobs struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (b *stubBlobs) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	return "https://bucket.example/" + key, nil
}

func (b *stubBlobs) Get(context.Context, string) ([]byte, error) { return nil, nil }

// funcExtractor adapts a function to domain.Extractor.
type funcExtractor func(ctx context.Context, f domain.SourceFile) (string, error)

func (f funcExtractor) Extract(ctx context.Context, sf domain.SourceFile) (string, error) {
	return f(ctx, sf)
}

// memState is an in-memory ControlRepository and StateStore that applies
// updates the way the Postgres store does: reconcile against the current
// record, then append history and both chat entries together.
type memState struct {
	mu      sync.Mutex
	records map[domain.ControlKey]domain.ControlRecord
	chat    []domain.ChatEntry
	applies int
	failErr error
}

func newMemState(recs ...domain.ControlRecord) *memState {
	m := &memState{records: map[domain.ControlKey]domain.ControlRecord{}}
	for _, r := range recs {
		m.records[domain.ControlKey{ControlID: r.ControlID, UserID: r.UserID}] = r
	}
	return m
}

func (m *memState) record(key domain.ControlKey) domain.ControlRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[key]
}

func (m *memState) ListByType(context.Context, string, string) ([]domain.ControlRecord, error) {
	return nil, nil
}
func (m *memState) Get(context.Context, string) (domain.ControlRecord, error) {
	return domain.ControlRecord{}, domain.ErrNotFound
}

func (m *memState) FindByControl(_ context.Context, key domain.ControlKey) (domain.ControlRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok {
		return domain.ControlRecord{}, domain.ErrNotFound
	}
	r.UploadHistory = slices.Clone(r.UploadHistory)
	return r, nil
}

func (m *memState) Import(_ context.Context, recs []domain.ControlRecord) ([]domain.ControlRecord, error) {
	return recs, nil
}
func (m *memState) DeleteByType(context.Context, string, string) (int64, error) { return 0, nil }
func (m *memState) History(context.Context, string, int) ([]domain.ControlRecord, error) {
	return nil, nil
}
func (m *memState) HistoryBetween(context.Context, string, time.Time, time.Time) ([]domain.ControlRecord, error) {
	return nil, nil
}
func (m *memState) Summary(context.Context, string) (domain.ComplianceSummary, error) {
	return domain.ComplianceSummary{}, nil
}

func (m *memState) Append(_ context.Context, entries ...domain.ChatEntry) ([]domain.ChatEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chat = append(m.chat, entries...)
	return entries, nil
}

func (m *memState) List(_ context.Context, userID, chatbotID string) ([]domain.ChatEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ChatEntry
	for _, e := range m.chat {
		if e.UserID == userID && e.ChatbotID == chatbotID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memState) Apply(_ context.Context, u domain.StateUpdate) (domain.AppliedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return domain.AppliedState{}, m.failErr
	}
	prior, ok := m.records[u.Key]
	if !ok {
		return domain.AppliedState{}, domain.ErrNotFound
	}
	fv, err := u.Reconcile(prior)
	if err != nil {
		return domain.AppliedState{}, err
	}
	now := time.Now().UTC()
	entry := domain.UploadHistoryEntry{Score: fv.Score, Remark: fv.Remarks, Files: u.Files, CreatedAt: now}
	next := prior
	next.Result = fv.Result
	next.Score = fv.Score
	next.UpdatedAt = &now
	next.UploadHistory = append(slices.Clone(prior.UploadHistory), entry)
	m.records[u.Key] = next
	chat := []domain.ChatEntry{
		{UserID: u.Key.UserID, ChatbotID: u.Key.ControlID, ControlType: u.ControlType, Type: domain.ChatUser, Text: domain.UploadedFileText, Files: u.Files, CreatedAt: now},
		{UserID: u.Key.UserID, ChatbotID: u.Key.ControlID, ControlType: u.ControlType, Type: domain.ChatBot, Text: fv.Remarks, CreatedAt: now},
	}
	m.chat = append(m.chat, chat...)
	m.applies++
	return domain.AppliedState{Record: next, Verdict: fv, Entry: entry, Chat: chat}, nil
}
