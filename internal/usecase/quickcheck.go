package usecase

import (
	"log/slog"

	"github.com/miporis/compliance-evaluator/internal/domain"
	intobs "github.com/miporis/compliance-evaluator/internal/observability"
)

// QuickCheckResult is a reconciled verdict that was never persisted.
type QuickCheckResult struct {
	Verdict  domain.FinalVerdict
	Raw      domain.Verdict
	Outcomes []FileOutcome
}

// QuickCheck is a dry run of Evaluate: files are extracted from memory, the
// verdict is reconciled against the current record and nothing is stored.
// Duplicate detection never applies because no file set is recorded.
func (s EvaluationService) QuickCheck(ctx domain.Context, in EvaluateInput) (QuickCheckResult, error) {
	lg := intobs.LoggerFromContext(ctx).With(
		slog.String("control_id", in.ControlID),
		slog.String("user_id", in.UserID),
		slog.Bool("dry_run", true),
	)
	if err := s.validate(in); err != nil {
		return QuickCheckResult{}, err
	}
	if err := s.allow(ctx, in.UserID, lg); err != nil {
		return QuickCheckResult{}, err
	}
	key := domain.ControlKey{ControlID: in.ControlID, UserID: in.UserID}
	rec, err := s.Controls.FindByControl(ctx, key)
	if err != nil {
		return QuickCheckResult{}, err
	}
	document, outcomes, err := s.Assembler.Assemble(ctx, InMemory(in.Files))
	if err != nil {
		return QuickCheckResult{}, err
	}
	history, err := s.Chats.List(ctx, in.UserID, in.ControlID)
	if err != nil {
		return QuickCheckResult{}, err
	}
	verdict, err := s.Judge.Judge(ctx, s.Composer.ComposeEvaluation(rec, history, document))
	if err != nil {
		lg.Warn("quick check judge failed", slog.Any("error", err))
		return QuickCheckResult{}, err
	}
	final := Reconcile(verdict, rec, false)
	lg.Info("quick check completed", slog.Int("score", final.Score), slog.String("result", string(final.Result)))
	return QuickCheckResult{Verdict: final, Raw: verdict, Outcomes: outcomes}, nil
}
