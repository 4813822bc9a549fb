package postgres_test

import (
	"encoding/json"
	"errors"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

var controlCols = []string{"id", "control_id", "user_id", "control_type", "imex", "factory", "process", "sub_process", "risk",
	"control_header", "control_description", "frequency", "policy_reference", "test_guidance", "sunrise_ref", "turbo_ref",
	"relevance", "compliance", "result", "score", "upload_history", "updated_at", "created_at"}

// anyArgs matches n bind arguments of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

var assertErr = errors.New("syntax error")

var created = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// controlRows renders records the way the driver returns them.
func controlRows(recs ...domain.ControlRecord) *pgxmock.Rows {
	rows := pgxmock.NewRows(controlCols)
	for _, c := range recs {
		history := c.UploadHistory
		if history == nil {
			history = []domain.UploadHistoryEntry{}
		}
		b, _ := json.Marshal(history)
		var updated any
		if c.UpdatedAt != nil {
			updated = c.UpdatedAt
		}
		rows.AddRow(c.ID, c.ControlID, c.UserID, c.ControlType, c.IMEX, c.Factory, c.Process, c.SubProcess, c.Risk,
			c.Header, c.Description, c.Frequency, c.PolicyReference, c.TestGuidance, c.SunriseRef, c.TurboRef,
			c.Relevance, c.Compliance, string(c.Result), c.Score, b, updated, created)
	}
	return rows
}

func sampleControl() domain.ControlRecord {
	return domain.ControlRecord{
		ID:            "7f7d3c52-6a0c-4d36-9d59-7c7a0b0e9a11",
		ControlID:     "AC-01",
		UserID:        "u-1",
		ControlType:   "ITGC",
		Header:        "Access review",
		Description:   "Quarterly user access review",
		Relevance:     domain.FlagYes,
		Compliance:    domain.FlagNo,
		Result:        domain.LabelWeakEvidence,
		Score:         60,
		UploadHistory: []domain.UploadHistoryEntry{},
		CreatedAt:     created,
	}
}
