package postgres_test

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miporis/compliance-evaluator/internal/adapter/repo/postgres"
	"github.com/miporis/compliance-evaluator/internal/domain"
)

var chatCols = []string{"id", "user_id", "chatbot_id", "control_type", "type", "text", "files", "created_at"}

func TestChatRepo_AppendIsTransactional(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectBegin()
	m.ExpectExec(`INSERT INTO chat_history`).
		WithArgs(pgxmock.AnyArg(), "u-1", "AC-01", "ITGC", "user", "what is missing?", []byte(`[]`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec(`INSERT INTO chat_history`).
		WithArgs(pgxmock.AnyArg(), "u-1", "AC-01", "ITGC", "bot", "Upload the review.", []byte(`[]`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectCommit()

	out, err := postgres.NewChatRepo(m).Append(context.Background(),
		domain.ChatEntry{UserID: "u-1", ChatbotID: "AC-01", ControlType: "ITGC", Type: domain.ChatUser, Text: "what is missing?"},
		domain.ChatEntry{UserID: "u-1", ChatbotID: "AC-01", ControlType: "ITGC", Type: domain.ChatBot, Text: "Upload the review."},
	)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEmpty(t, out[0].ID)
	assert.NotEqual(t, out[0].ID, out[1].ID)
	assert.False(t, out[1].CreatedAt.IsZero())
	require.NoError(t, m.ExpectationsWereMet())
}

func TestChatRepo_AppendFailureRollsBack(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectBegin()
	m.ExpectExec(`INSERT INTO chat_history`).WithArgs(anyArgs(8)...).WillReturnError(assert.AnError)
	m.ExpectRollback()

	_, err = postgres.NewChatRepo(m).Append(context.Background(), domain.ChatEntry{Type: domain.ChatUser, Text: "x"})
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestChatRepo_ListOldestFirst(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectQuery(`FROM chat_history WHERE user_id = .+ AND chatbot_id = .+ ORDER BY seq`).
		WithArgs("u-1", "AC-01").
		WillReturnRows(pgxmock.NewRows(chatCols).
			AddRow("c1", "u-1", "AC-01", "ITGC", "user", domain.UploadedFileText, []byte(`[{"file_name":"a.pdf","file_url":"https://b/1-a.pdf"}]`), created).
			AddRow("c2", "u-1", "AC-01", "ITGC", "bot", "Looks good.", []byte(`[]`), created))

	got, err := postgres.NewChatRepo(m).List(context.Background(), "u-1", "AC-01")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.ChatUser, got[0].Type)
	assert.Equal(t, []domain.FileRef{{FileName: "a.pdf", FileURL: "https://b/1-a.pdf"}}, got[0].Files)
	assert.Equal(t, domain.ChatBot, got[1].Type)
	assert.Nil(t, got[1].Files)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestChatRepo_DeleteByType(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectExec(`DELETE FROM chat_history WHERE user_id = .+ AND control_type = `).
		WithArgs("u-1", "ITGC").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := postgres.NewChatRepo(m).DeleteByType(context.Background(), "u-1", "ITGC")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, m.ExpectationsWereMet())
}
