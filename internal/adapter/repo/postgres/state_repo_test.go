package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miporis/compliance-evaluator/internal/adapter/repo/postgres"
	"github.com/miporis/compliance-evaluator/internal/domain"
)

var applyAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newStateRepo(m pgxmock.PgxPoolIface) *postgres.StateRepo {
	r := postgres.NewStateRepo(m)
	r.Now = func() time.Time { return applyAt }
	return r
}

// historyArg matches the jsonb fragment appended to upload_history.
type historyArg struct{ want domain.UploadHistoryEntry }

func (a historyArg) Match(v any) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	var got []domain.UploadHistoryEntry
	if err := json.Unmarshal(b, &got); err != nil || len(got) != 1 {
		return false
	}
	return got[0].Score == a.want.Score && got[0].Remark == a.want.Remark &&
		len(got[0].Files) == len(a.want.Files) && got[0].CreatedAt.Equal(a.want.CreatedAt)
}

func TestStateRepo_ApplyCommitsEverything(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	prior := sampleControl()
	files := []domain.FileRef{{FileName: "review.pdf", FileURL: "https://b/1-review.pdf"}}
	entry := domain.UploadHistoryEntry{Score: 75, Remark: "signed review", Files: files, CreatedAt: applyAt}
	next := prior
	next.Result, next.Score = domain.LabelPartiallyCompliant, 75
	next.UploadHistory = []domain.UploadHistoryEntry{entry}
	next.UpdatedAt = &applyAt

	m.ExpectBegin()
	m.ExpectQuery(`FROM controls WHERE control_id = .+ AND user_id = .+ FOR UPDATE`).
		WithArgs("AC-01", "u-1").
		WillReturnRows(controlRows(prior))
	m.ExpectQuery(`UPDATE controls SET result = .+ upload_history = upload_history \|\| .+::jsonb`).
		WithArgs("PC", 75, historyArg{want: entry}, applyAt, prior.ID).
		WillReturnRows(controlRows(next))
	m.ExpectExec(`INSERT INTO chat_history`).
		WithArgs(pgxmock.AnyArg(), "u-1", "AC-01", "ITGC", "user", domain.UploadedFileText, pgxmock.AnyArg(), applyAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec(`INSERT INTO chat_history`).
		WithArgs(pgxmock.AnyArg(), "u-1", "AC-01", "ITGC", "bot", "signed review", pgxmock.AnyArg(), applyAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectCommit()

	var seen domain.ControlRecord
	got, err := newStateRepo(m).Apply(context.Background(), domain.StateUpdate{
		Key:   domain.ControlKey{ControlID: "AC-01", UserID: "u-1"},
		Files: files,
		Reconcile: func(p domain.ControlRecord) (domain.FinalVerdict, error) {
			seen = p
			return domain.FinalVerdict{Result: domain.LabelPartiallyCompliant, Score: 75, Remarks: "signed review", PriorScore: p.Score}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, prior, seen, "reconciled against the locked row")
	assert.Equal(t, 75, got.Record.Score)
	assert.Equal(t, entry, got.Entry)
	require.Len(t, got.Chat, 2)
	assert.Equal(t, files, got.Chat[0].Files)
	assert.Equal(t, domain.ChatBot, got.Chat[1].Type)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestStateRepo_ApplyMissingRecord(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs("X", "u").WillReturnError(pgx.ErrNoRows)
	m.ExpectRollback()

	_, err = newStateRepo(m).Apply(context.Background(), domain.StateUpdate{
		Key: domain.ControlKey{ControlID: "X", UserID: "u"},
		Reconcile: func(domain.ControlRecord) (domain.FinalVerdict, error) {
			t.Fatal("reconcile must not run")
			return domain.FinalVerdict{}, nil
		},
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrPersistenceFailure)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestStateRepo_ReconcileErrorWritesNothing(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs(anyArgs(2)...).WillReturnRows(controlRows(sampleControl()))
	m.ExpectRollback()

	boom := errors.New("boom")
	_, err = newStateRepo(m).Apply(context.Background(), domain.StateUpdate{
		Key:       domain.ControlKey{ControlID: "AC-01", UserID: "u-1"},
		Reconcile: func(domain.ControlRecord) (domain.FinalVerdict, error) { return domain.FinalVerdict{}, boom },
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestStateRepo_FailuresArePersistenceFailures(t *testing.T) {
	t.Parallel()
	reconcile := func(domain.ControlRecord) (domain.FinalVerdict, error) {
		return domain.FinalVerdict{Result: domain.LabelCompliant, Score: 95, Remarks: "ok"}, nil
	}
	next := sampleControl()
	next.Result, next.Score = domain.LabelCompliant, 95

	tests := []struct {
		name  string
		setup func(m pgxmock.PgxPoolIface)
	}{
		{"begin", func(m pgxmock.PgxPoolIface) {
			m.ExpectBegin().WillReturnError(assert.AnError)
		}},
		{"update", func(m pgxmock.PgxPoolIface) {
			m.ExpectBegin()
			m.ExpectQuery(`FOR UPDATE`).WithArgs(anyArgs(2)...).WillReturnRows(controlRows(sampleControl()))
			m.ExpectQuery(`UPDATE controls`).WithArgs(anyArgs(5)...).WillReturnError(assert.AnError)
			m.ExpectRollback()
		}},
		{"chat insert", func(m pgxmock.PgxPoolIface) {
			m.ExpectBegin()
			m.ExpectQuery(`FOR UPDATE`).WithArgs(anyArgs(2)...).WillReturnRows(controlRows(sampleControl()))
			m.ExpectQuery(`UPDATE controls`).WithArgs(anyArgs(5)...).WillReturnRows(controlRows(next))
			m.ExpectExec(`INSERT INTO chat_history`).WithArgs(anyArgs(8)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
			m.ExpectExec(`INSERT INTO chat_history`).WithArgs(anyArgs(8)...).WillReturnError(assert.AnError)
			m.ExpectRollback()
		}},
		{"commit", func(m pgxmock.PgxPoolIface) {
			m.ExpectBegin()
			m.ExpectQuery(`FOR UPDATE`).WithArgs(anyArgs(2)...).WillReturnRows(controlRows(sampleControl()))
			m.ExpectQuery(`UPDATE controls`).WithArgs(anyArgs(5)...).WillReturnRows(controlRows(next))
			m.ExpectExec(`INSERT INTO chat_history`).WithArgs(anyArgs(8)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
			m.ExpectExec(`INSERT INTO chat_history`).WithArgs(anyArgs(8)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
			m.ExpectCommit().WillReturnError(assert.AnError)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer m.Close()
			tt.setup(m)

			_, err = newStateRepo(m).Apply(context.Background(), domain.StateUpdate{
				Key:       domain.ControlKey{ControlID: "AC-01", UserID: "u-1"},
				Reconcile: reconcile,
			})
			require.ErrorIs(t, err, domain.ErrPersistenceFailure)
			require.ErrorIs(t, err, assert.AnError)
			require.NoError(t, m.ExpectationsWereMet())
		})
	}
}
