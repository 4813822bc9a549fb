package httpserver_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/miporis/compliance-evaluator/internal/domain"
	"github.com/miporis/compliance-evaluator/internal/usecase"
)

type mockEvaluator struct{ mock.Mock }

func (m *mockEvaluator) Evaluate(ctx context.Context, in usecase.EvaluateInput) (usecase.EvaluationResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(usecase.EvaluationResult), args.Error(1)
}

func (m *mockEvaluator) QuickCheck(ctx context.Context, in usecase.EvaluateInput) (usecase.QuickCheckResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(usecase.QuickCheckResult), args.Error(1)
}

type mockCatalog struct{ mock.Mock }

func (m *mockCatalog) Import(ctx context.Context, userID, controlType string, recs []domain.ControlRecord) ([]domain.ControlRecord, error) {
	args := m.Called(ctx, userID, controlType, recs)
	out, _ := args.Get(0).([]domain.ControlRecord)
	return out, args.Error(1)
}

func (m *mockCatalog) List(ctx context.Context, userID, controlType string) ([]domain.ControlRecord, error) {
	args := m.Called(ctx, userID, controlType)
	out, _ := args.Get(0).([]domain.ControlRecord)
	return out, args.Error(1)
}

func (m *mockCatalog) Get(ctx context.Context, id string) (domain.ControlRecord, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.ControlRecord), args.Error(1)
}

func (m *mockCatalog) Delete(ctx context.Context, userID, controlType string) (usecase.DeleteResult, error) {
	args := m.Called(ctx, userID, controlType)
	return args.Get(0).(usecase.DeleteResult), args.Error(1)
}

func (m *mockCatalog) History(ctx context.Context, userID string, limit int) ([]domain.ControlRecord, error) {
	args := m.Called(ctx, userID, limit)
	out, _ := args.Get(0).([]domain.ControlRecord)
	return out, args.Error(1)
}

func (m *mockCatalog) HistoryBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.ControlRecord, error) {
	args := m.Called(ctx, userID, from, to)
	out, _ := args.Get(0).([]domain.ControlRecord)
	return out, args.Error(1)
}

func (m *mockCatalog) Summary(ctx context.Context, userID string) (domain.ComplianceSummary, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.ComplianceSummary), args.Error(1)
}

type mockChatter struct{ mock.Mock }

func (m *mockChatter) Complete(ctx context.Context, in usecase.ChatInput) (usecase.ChatReply, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(usecase.ChatReply), args.Error(1)
}

func (m *mockChatter) History(ctx context.Context, userID, controlID string) ([]domain.ChatEntry, error) {
	args := m.Called(ctx, userID, controlID)
	out, _ := args.Get(0).([]domain.ChatEntry)
	return out, args.Error(1)
}
