package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

// StateRepo implements domain.StateStore. One Apply is one transaction: the
// row is locked, reconciled, updated with the new upload history entry and
// both chat entries are inserted before commit.
type StateRepo struct {
	Pool PgxPool
	Now  func() time.Time
}

// NewStateRepo constructs a StateRepo with the given pool.
func NewStateRepo(p PgxPool) *StateRepo { return &StateRepo{Pool: p, Now: time.Now} }

const applyUpdate = `UPDATE controls
SET result = $1, score = $2, upload_history = upload_history || $3::jsonb, updated_at = $4
WHERE id = $5
RETURNING ` + controlColumns

func persistence(err error) error {
	return fmt.Errorf("op=state.apply: %w: %w", domain.ErrPersistenceFailure, err)
}

// Apply implements domain.StateStore. Database errors are reported as
// ErrPersistenceFailure; a missing record is ErrNotFound and errors from
// u.Reconcile are returned unchanged. Nothing is written unless all steps
// succeed.
func (r *StateRepo) Apply(ctx domain.Context, u domain.StateUpdate) (domain.AppliedState, error) {
	ctx, span := startSpan(ctx, "controls", "UPDATE", "Apply")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.AppliedState{}, persistence(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prior, err := scanControl(tx.QueryRow(ctx,
		`SELECT `+controlColumns+` FROM controls WHERE control_id = $1 AND user_id = $2 FOR UPDATE`,
		u.Key.ControlID, u.Key.UserID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AppliedState{}, fmt.Errorf("op=state.apply: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.AppliedState{}, persistence(err)
	}

	fv, err := u.Reconcile(prior)
	if err != nil {
		return domain.AppliedState{}, err
	}

	now := r.Now().UTC()
	files := u.Files
	if files == nil {
		files = []domain.FileRef{}
	}
	entry := domain.UploadHistoryEntry{Score: fv.Score, Remark: fv.Remarks, Files: files, CreatedAt: now}
	entryJSON, err := json.Marshal([]domain.UploadHistoryEntry{entry})
	if err != nil {
		return domain.AppliedState{}, persistence(err)
	}
	next, err := scanControl(tx.QueryRow(ctx, applyUpdate, string(fv.Result), fv.Score, entryJSON, now, prior.ID))
	if err != nil {
		return domain.AppliedState{}, persistence(err)
	}

	controlType := u.ControlType
	if controlType == "" {
		controlType = prior.ControlType
	}
	chat := make([]domain.ChatEntry, 0, 2)
	for _, e := range []domain.ChatEntry{
		{UserID: u.Key.UserID, ChatbotID: u.Key.ControlID, ControlType: controlType, Type: domain.ChatUser, Text: domain.UploadedFileText, Files: files},
		{UserID: u.Key.UserID, ChatbotID: u.Key.ControlID, ControlType: controlType, Type: domain.ChatBot, Text: fv.Remarks},
	} {
		saved, err := insertChatEntry(ctx, tx, e, now)
		if err != nil {
			return domain.AppliedState{}, persistence(err)
		}
		chat = append(chat, saved)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.AppliedState{}, persistence(err)
	}
	return domain.AppliedState{Record: next, Verdict: fv, Entry: entry, Chat: chat}, nil
}
