package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

const controlColumns = `id::text, control_id, user_id, control_type, imex, factory, process, sub_process, risk,
	control_header, control_description, frequency, policy_reference, test_guidance, sunrise_ref, turbo_ref,
	relevance, compliance, result, score, upload_history, updated_at, created_at`

// ControlRepo persists control records.
type ControlRepo struct{ Pool PgxPool }

// NewControlRepo constructs a ControlRepo with the given pool.
func NewControlRepo(p PgxPool) *ControlRepo { return &ControlRepo{Pool: p} }

func scanControl(row pgx.Row) (domain.ControlRecord, error) {
	var (
		c       domain.ControlRecord
		result  string
		history []byte
		updated *time.Time
	)
	err := row.Scan(&c.ID, &c.ControlID, &c.UserID, &c.ControlType, &c.IMEX, &c.Factory, &c.Process, &c.SubProcess, &c.Risk,
		&c.Header, &c.Description, &c.Frequency, &c.PolicyReference, &c.TestGuidance, &c.SunriseRef, &c.TurboRef,
		&c.Relevance, &c.Compliance, &result, &c.Score, &history, &updated, &c.CreatedAt)
	if err != nil {
		return domain.ControlRecord{}, err
	}
	if c.Result, err = domain.ParseLabel(result); err != nil {
		return domain.ControlRecord{}, fmt.Errorf("%w: decode result: %v", domain.ErrInternal, err)
	}
	c.UpdatedAt = updated
	c.UploadHistory = []domain.UploadHistoryEntry{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &c.UploadHistory); err != nil {
			return domain.ControlRecord{}, fmt.Errorf("decode upload_history: %w", err)
		}
	}
	return c, nil
}

func collectControls(rows pgx.Rows) ([]domain.ControlRecord, error) {
	defer rows.Close()
	out := []domain.ControlRecord{}
	for rows.Next() {
		c, err := scanControl(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListByType returns a user's controls of one type ordered by control id.
func (r *ControlRepo) ListByType(ctx domain.Context, userID, controlType string) ([]domain.ControlRecord, error) {
	ctx, span := startSpan(ctx, "controls", "SELECT", "ListByType")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+controlColumns+` FROM controls WHERE user_id = $1 AND control_type = $2 ORDER BY control_id`, userID, controlType)
	if err != nil {
		return nil, fmt.Errorf("op=controls.list_by_type: %w", err)
	}
	out, err := collectControls(rows)
	if err != nil {
		return nil, fmt.Errorf("op=controls.list_by_type: %w", err)
	}
	return out, nil
}

// Get loads a control by record id.
func (r *ControlRepo) Get(ctx domain.Context, id string) (domain.ControlRecord, error) {
	ctx, span := startSpan(ctx, "controls", "SELECT", "Get")
	defer span.End()
	if _, err := uuid.Parse(id); err != nil {
		return domain.ControlRecord{}, fmt.Errorf("op=controls.get: %w", domain.ErrNotFound)
	}
	c, err := scanControl(r.Pool.QueryRow(ctx, `SELECT `+controlColumns+` FROM controls WHERE id = $1`, id))
	if err != nil {
		return domain.ControlRecord{}, notFound("controls.get", err)
	}
	return c, nil
}

// FindByControl loads the record for (controlId, userId).
func (r *ControlRepo) FindByControl(ctx domain.Context, key domain.ControlKey) (domain.ControlRecord, error) {
	ctx, span := startSpan(ctx, "controls", "SELECT", "FindByControl")
	defer span.End()
	c, err := scanControl(r.Pool.QueryRow(ctx, `SELECT `+controlColumns+` FROM controls WHERE control_id = $1 AND user_id = $2`, key.ControlID, key.UserID))
	if err != nil {
		return domain.ControlRecord{}, notFound("controls.find_by_control", err)
	}
	return c, nil
}

const importControl = `INSERT INTO controls (id, control_id, user_id, control_type, imex, factory, process, sub_process, risk,
	control_header, control_description, frequency, policy_reference, test_guidance, sunrise_ref, turbo_ref,
	relevance, compliance, result, score, upload_history, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,'[]'::jsonb,$21)
ON CONFLICT (control_id, user_id) DO UPDATE SET
	control_type = EXCLUDED.control_type, imex = EXCLUDED.imex, factory = EXCLUDED.factory,
	process = EXCLUDED.process, sub_process = EXCLUDED.sub_process, risk = EXCLUDED.risk,
	control_header = EXCLUDED.control_header, control_description = EXCLUDED.control_description,
	frequency = EXCLUDED.frequency, policy_reference = EXCLUDED.policy_reference,
	test_guidance = EXCLUDED.test_guidance, sunrise_ref = EXCLUDED.sunrise_ref, turbo_ref = EXCLUDED.turbo_ref
RETURNING ` + controlColumns

// Import upserts catalog rows in one transaction. Existing rows keep their
// evaluation state; only static catalog fields are refreshed.
func (r *ControlRepo) Import(ctx domain.Context, recs []domain.ControlRecord) ([]domain.ControlRecord, error) {
	ctx, span := startSpan(ctx, "controls", "UPSERT", "Import")
	defer span.End()
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("op=controls.import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	out := make([]domain.ControlRecord, 0, len(recs))
	for _, c := range recs {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		saved, err := scanControl(tx.QueryRow(ctx, importControl,
			id, c.ControlID, c.UserID, c.ControlType, c.IMEX, c.Factory, c.Process, c.SubProcess, c.Risk,
			c.Header, c.Description, c.Frequency, c.PolicyReference, c.TestGuidance, c.SunriseRef, c.TurboRef,
			c.Relevance, c.Compliance, string(c.Result), c.Score, now))
		if err != nil {
			return nil, fmt.Errorf("op=controls.import control_id=%s: %w", c.ControlID, err)
		}
		out = append(out, saved)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("op=controls.import: %w", err)
	}
	return out, nil
}

// DeleteByType removes a user's controls of one type.
func (r *ControlRepo) DeleteByType(ctx domain.Context, userID, controlType string) (int64, error) {
	ctx, span := startSpan(ctx, "controls", "DELETE", "DeleteByType")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM controls WHERE user_id = $1 AND control_type = $2`, userID, controlType)
	if err != nil {
		return 0, fmt.Errorf("op=controls.delete_by_type: %w", err)
	}
	return tag.RowsAffected(), nil
}

// History returns evaluated controls, most recently updated first.
func (r *ControlRepo) History(ctx domain.Context, userID string, limit int) ([]domain.ControlRecord, error) {
	ctx, span := startSpan(ctx, "controls", "SELECT", "History")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+controlColumns+` FROM controls
WHERE user_id = $1 AND updated_at IS NOT NULL ORDER BY updated_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=controls.history: %w", err)
	}
	out, err := collectControls(rows)
	if err != nil {
		return nil, fmt.Errorf("op=controls.history: %w", err)
	}
	return out, nil
}

// HistoryBetween returns controls updated within [from, to], newest first.
func (r *ControlRepo) HistoryBetween(ctx domain.Context, userID string, from, to time.Time) ([]domain.ControlRecord, error) {
	ctx, span := startSpan(ctx, "controls", "SELECT", "HistoryBetween")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+controlColumns+` FROM controls
WHERE user_id = $1 AND updated_at BETWEEN $2 AND $3 ORDER BY updated_at DESC`, userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("op=controls.history_between: %w", err)
	}
	out, err := collectControls(rows)
	if err != nil {
		return nil, fmt.Errorf("op=controls.history_between: %w", err)
	}
	return out, nil
}

// Summary counts a user's controls and those labelled C.
func (r *ControlRepo) Summary(ctx domain.Context, userID string) (domain.ComplianceSummary, error) {
	ctx, span := startSpan(ctx, "controls", "COUNT", "Summary")
	defer span.End()
	var s domain.ComplianceSummary
	err := r.Pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE result = 'C') FROM controls WHERE user_id = $1`, userID).
		Scan(&s.TotalRecords, &s.CompliantCount)
	if err != nil {
		return domain.ComplianceSummary{}, fmt.Errorf("op=controls.summary: %w", err)
	}
	return s, nil
}

// Ping checks database connectivity.
func (r *ControlRepo) Ping(ctx context.Context) error {
	var one int
	return r.Pool.QueryRow(ctx, `SELECT 1`).Scan(&one)
}
