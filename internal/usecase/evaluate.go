// Package usecase contains application business logic services.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/miporis/compliance-evaluator/internal/adapter/observability"
	"github.com/miporis/compliance-evaluator/internal/domain"
	intobs "github.com/miporis/compliance-evaluator/internal/observability"
)

// EvaluateInput is one evidence submission for a control.
type EvaluateInput struct {
	ControlID   string
	UserID      string
	ControlType string
	Files       []domain.UploadFile
}

// EvaluationResult is returned after the State Updater committed.
type EvaluationResult struct {
	Record   domain.ControlRecord
	Verdict  domain.FinalVerdict
	Raw      domain.Verdict
	Entry    domain.UploadHistoryEntry
	Chat     []domain.ChatEntry
	Outcomes []FileOutcome
}

// EvaluationService runs the evidence evaluation pipeline.
type EvaluationService struct {
	Controls  domain.ControlRepository
	Chats     domain.ChatRepository
	State     domain.StateStore
	Uploads   UploadService
	Assembler DocumentAssembler
	Composer  PromptComposer
	Judge     domain.Judge
	Locks     domain.KeyLocker
	Limiter   domain.RateLimiter
	Events    domain.EventPublisher
	MaxFiles  int
}

// NewEvaluationService constructs an EvaluationService. Locks, Limiter and
// Events are optional and may be set on the returned value.
func NewEvaluationService(
	controls domain.ControlRepository,
	chats domain.ChatRepository,
	state domain.StateStore,
	uploads UploadService,
	assembler DocumentAssembler,
	composer PromptComposer,
	judge domain.Judge,
	maxFiles int,
) EvaluationService {
	return EvaluationService{
		Controls:  controls,
		Chats:     chats,
		State:     state,
		Uploads:   uploads,
		Assembler: assembler,
		Composer:  composer,
		Judge:     judge,
		MaxFiles:  maxFiles,
	}
}

// Evaluate stores the files, extracts them, judges the evidence and applies
// the reconciled verdict. Judge and persistence failures leave the control
// record untouched.
func (s EvaluationService) Evaluate(ctx domain.Context, in EvaluateInput) (EvaluationResult, error) {
	start := time.Now()
	lg := intobs.LoggerFromContext(ctx).With(
		slog.String("control_id", in.ControlID),
		slog.String("user_id", in.UserID),
	)
	res, err := s.evaluate(ctx, in, lg)
	outcome := evaluationOutcome(err)
	recordEvaluation(outcome)
	if err != nil {
		lg.Error("evaluation failed", slog.String("outcome", outcome), slog.Any("error", err),
			slog.Duration("duration", time.Since(start)))
		return EvaluationResult{}, err
	}
	observability.EvaluationScore.Observe(float64(res.Verdict.Score))
	lg.Info("evaluation applied",
		slog.Int("score", res.Verdict.Score),
		slog.String("result", string(res.Verdict.Result)),
		slog.Int("raw_score", res.Verdict.RawScore),
		slog.Int("prior_score", res.Verdict.PriorScore),
		slog.Bool("duplicate", res.Verdict.Duplicate),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

func (s EvaluationService) evaluate(ctx domain.Context, in EvaluateInput, lg *slog.Logger) (EvaluationResult, error) {
	if err := s.validate(in); err != nil {
		return EvaluationResult{}, err
	}
	if err := s.allow(ctx, in.UserID, lg); err != nil {
		return EvaluationResult{}, err
	}
	key := domain.ControlKey{ControlID: in.ControlID, UserID: in.UserID}
	if _, err := s.Controls.FindByControl(ctx, key); err != nil {
		return EvaluationResult{}, err
	}

	refs, srcs, err := s.Uploads.Store(ctx, in.Files)
	if err != nil {
		return EvaluationResult{}, err
	}
	document, outcomes, err := s.Assembler.Assemble(ctx, srcs)
	if err != nil {
		return EvaluationResult{}, err
	}

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return EvaluationResult{}, err
	}
	defer unlock()

	// Re-read under the lock so the prompt sees the latest committed state.
	rec, err := s.Controls.FindByControl(ctx, key)
	if err != nil {
		return EvaluationResult{}, err
	}
	history, err := s.Chats.List(ctx, in.UserID, in.ControlID)
	if err != nil {
		return EvaluationResult{}, err
	}
	prompt := s.Composer.ComposeEvaluation(rec, history, document)
	verdict, err := s.Judge.Judge(ctx, prompt)
	if err != nil {
		return EvaluationResult{}, err
	}

	controlType := in.ControlType
	if controlType == "" {
		controlType = rec.ControlType
	}
	applied, err := s.State.Apply(ctx, domain.StateUpdate{
		Key:         key,
		ControlType: controlType,
		Files:       refs,
		Reconcile:   ReconcileFor(verdict, refs),
	})
	if err != nil {
		return EvaluationResult{}, err
	}

	s.publish(ctx, applied, refs, lg)
	return EvaluationResult{
		Record:   applied.Record,
		Verdict:  applied.Verdict,
		Raw:      verdict,
		Entry:    applied.Entry,
		Chat:     applied.Chat,
		Outcomes: outcomes,
	}, nil
}

func (s EvaluationService) validate(in EvaluateInput) error {
	if strings.TrimSpace(in.ControlID) == "" || strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("%w: controlId and userId are required", domain.ErrInvalidArgument)
	}
	if len(in.Files) == 0 {
		return fmt.Errorf("%w: No files uploaded.", domain.ErrInvalidArgument)
	}
	if s.MaxFiles > 0 && len(in.Files) > s.MaxFiles {
		return fmt.Errorf("%w: at most %d files per submission", domain.ErrInvalidArgument, s.MaxFiles)
	}
	for _, f := range in.Files {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: file name required", domain.ErrInvalidArgument)
		}
	}
	return nil
}

func (s EvaluationService) allow(ctx domain.Context, userID string, lg *slog.Logger) error {
	if s.Limiter == nil {
		return nil
	}
	ok, retryAfter, err := s.Limiter.Allow(ctx, "eval:"+userID, 1)
	if err != nil {
		lg.Warn("rate limiter unavailable, allowing evaluation", slog.Any("error", err))
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: evaluation budget exhausted, retry after %s", domain.ErrRateLimited, retryAfter.Round(time.Second))
	}
	return nil
}

func (s EvaluationService) lock(ctx domain.Context, key domain.ControlKey) (func(), error) {
	if s.Locks == nil {
		return func() {}, nil
	}
	return s.Locks.Lock(ctx, "control:"+key.String())
}

func (s EvaluationService) publish(ctx domain.Context, applied domain.AppliedState, refs []domain.FileRef, lg *slog.Logger) {
	if s.Events == nil {
		return
	}
	ev := domain.EvaluationCompleted{
		EventID:     ulid.Make().String(),
		ControlID:   applied.Record.ControlID,
		UserID:      applied.Record.UserID,
		ControlType: applied.Record.ControlType,
		Result:      applied.Verdict.Result,
		Score:       applied.Verdict.Score,
		PriorScore:  applied.Verdict.PriorScore,
		RawScore:    applied.Verdict.RawScore,
		Duplicate:   applied.Verdict.Duplicate,
		Files:       refs,
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.Events.PublishEvaluation(ctx, ev); err != nil {
		lg.Warn("failed to publish evaluation event", slog.String("event_id", ev.EventID), slog.Any("error", err))
	}
}

func evaluationOutcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidResponseFormat):
		return "invalid_response"
	case errors.Is(err, domain.ErrPersistenceFailure):
		return "persistence_failure"
	default:
		return "error"
	}
}
