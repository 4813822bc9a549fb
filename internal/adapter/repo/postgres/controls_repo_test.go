package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miporis/compliance-evaluator/internal/adapter/repo/postgres"
	"github.com/miporis/compliance-evaluator/internal/domain"
)

func TestControlRepo_FindByControl(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	rec := sampleControl()
	rec.UploadHistory = []domain.UploadHistoryEntry{{Score: 60, Remark: "first", Files: []domain.FileRef{{FileName: "a.pdf", FileURL: "https://b/1-a.pdf"}}, CreatedAt: created}}
	m.ExpectQuery(`FROM controls WHERE control_id = .+ AND user_id = `).
		WithArgs("AC-01", "u-1").
		WillReturnRows(controlRows(rec))

	got, err := postgres.NewControlRepo(m).FindByControl(context.Background(), domain.ControlKey{ControlID: "AC-01", UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Nil(t, got.UpdatedAt)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestControlRepo_NotFound(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectQuery(`FROM controls WHERE control_id`).WithArgs("X", "u").WillReturnError(pgx.ErrNoRows)
	m.ExpectQuery(`FROM controls WHERE id = `).WithArgs("7f7d3c52-6a0c-4d36-9d59-7c7a0b0e9a11").WillReturnRows(pgxmock.NewRows(controlCols))

	repo := postgres.NewControlRepo(m)
	_, err = repo.FindByControl(context.Background(), domain.ControlKey{ControlID: "X", UserID: "u"})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "op=controls.find_by_control")

	_, err = repo.Get(context.Background(), "7f7d3c52-6a0c-4d36-9d59-7c7a0b0e9a11")
	require.ErrorIs(t, err, domain.ErrNotFound)

	// malformed ids never reach the database
	_, err = repo.Get(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestControlRepo_ListByType(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	a, b := sampleControl(), sampleControl()
	b.ID, b.ControlID = "0b7f0f49-3cf6-4b2e-8d0e-1d9b8d5a7e22", "AC-02"
	m.ExpectQuery(`FROM controls WHERE user_id = .+ AND control_type = .+ ORDER BY control_id`).
		WithArgs("u-1", "ITGC").
		WillReturnRows(controlRows(a, b))

	got, err := postgres.NewControlRepo(m).ListByType(context.Background(), "u-1", "ITGC")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AC-02", got[1].ControlID)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestControlRepo_Import(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	in := sampleControl()
	in.ID = ""
	in.Result, in.Score = domain.LabelNonCompliant, 0
	stored := sampleControl()

	m.ExpectBegin()
	m.ExpectQuery(`INSERT INTO controls .+ ON CONFLICT \(control_id, user_id\) DO UPDATE SET`).
		WithArgs(pgxmock.AnyArg(), "AC-01", "u-1", "ITGC", "", "", "", "", "",
			"Access review", "Quarterly user access review", "", "", "", "", "",
			"Y", "N", "NC", 0, pgxmock.AnyArg()).
		WillReturnRows(controlRows(stored))
	m.ExpectCommit()

	got, err := postgres.NewControlRepo(m).Import(context.Background(), []domain.ControlRecord{in})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stored, got[0], "existing evaluation state is returned, not overwritten")
	require.NoError(t, m.ExpectationsWereMet())
}

func TestControlRepo_ImportRollsBackOnError(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectBegin()
	m.ExpectQuery(`INSERT INTO controls`).WithArgs(anyArgs(21)...).WillReturnError(assert.AnError)
	m.ExpectRollback()

	_, err = postgres.NewControlRepo(m).Import(context.Background(), []domain.ControlRecord{sampleControl()})
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "control_id=AC-01")
	require.NoError(t, m.ExpectationsWereMet())
}

func TestControlRepo_DeleteByType(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectExec(`DELETE FROM controls WHERE user_id = .+ AND control_type = `).
		WithArgs("u-1", "ITGC").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := postgres.NewControlRepo(m).DeleteByType(context.Background(), "u-1", "ITGC")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestControlRepo_History(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	rec := sampleControl()
	updated := created.Add(time.Hour)
	rec.UpdatedAt = &updated
	m.ExpectQuery(`updated_at IS NOT NULL ORDER BY updated_at DESC LIMIT`).
		WithArgs("u-1", 50).
		WillReturnRows(controlRows(rec))
	from, to := created, created.Add(24*time.Hour)
	m.ExpectQuery(`updated_at BETWEEN .+ ORDER BY updated_at DESC`).
		WithArgs("u-1", from, to).
		WillReturnRows(controlRows())

	repo := postgres.NewControlRepo(m)
	got, err := repo.History(context.Background(), "u-1", 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].UpdatedAt)
	assert.Equal(t, updated, *got[0].UpdatedAt)

	between, err := repo.HistoryBetween(context.Background(), "u-1", from, to)
	require.NoError(t, err)
	assert.Empty(t, between)
	assert.NotNil(t, between)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestControlRepo_Summary(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(\*\) FILTER \(WHERE result = 'C'\) FROM controls`).
		WithArgs("u-1").
		WillReturnRows(pgxmock.NewRows([]string{"count", "compliant"}).AddRow(int64(8), int64(3)))

	s, err := postgres.NewControlRepo(m).Summary(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ComplianceSummary{TotalRecords: 8, CompliantCount: 3}, s)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestControlRepo_RejectsUnknownStoredResult(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	bad := sampleControl()
	bad.Result = domain.Label("Z")
	m.ExpectQuery(`FROM controls WHERE control_id = .+ AND user_id = `).
		WithArgs("AC-01", "u-1").
		WillReturnRows(controlRows(bad))

	_, err = postgres.NewControlRepo(m).FindByControl(context.Background(), domain.ControlKey{ControlID: "AC-01", UserID: "u-1"})
	require.ErrorIs(t, err, domain.ErrInternal)
	assert.NotErrorIs(t, err, domain.ErrInvalidArgument)
	require.NoError(t, m.ExpectationsWereMet())
}
