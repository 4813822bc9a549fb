package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

// ChatRepo persists control conversations.
type ChatRepo struct{ Pool PgxPool }

// NewChatRepo constructs a ChatRepo with the given pool.
func NewChatRepo(p PgxPool) *ChatRepo { return &ChatRepo{Pool: p} }

const insertChat = `INSERT INTO chat_history (id, user_id, chatbot_id, control_type, type, text, files, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8)`

// insertChatEntry fills in id and timestamp and writes e through db.
func insertChatEntry(ctx domain.Context, db execer, e domain.ChatEntry, now time.Time) (domain.ChatEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	files := e.Files
	if files == nil {
		files = []domain.FileRef{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return domain.ChatEntry{}, err
	}
	if _, err := db.Exec(ctx, insertChat, e.ID, e.UserID, e.ChatbotID, e.ControlType, string(e.Type), e.Text, filesJSON, e.CreatedAt); err != nil {
		return domain.ChatEntry{}, err
	}
	return e, nil
}

// Append writes entries in order inside one transaction.
func (r *ChatRepo) Append(ctx domain.Context, entries ...domain.ChatEntry) ([]domain.ChatEntry, error) {
	ctx, span := startSpan(ctx, "chat_history", "INSERT", "Append")
	defer span.End()
	if len(entries) == 0 {
		return nil, nil
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("op=chat.append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	out := make([]domain.ChatEntry, 0, len(entries))
	for _, e := range entries {
		saved, err := insertChatEntry(ctx, tx, e, now)
		if err != nil {
			return nil, fmt.Errorf("op=chat.append: %w", err)
		}
		out = append(out, saved)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("op=chat.append: %w", err)
	}
	return out, nil
}

// List returns one conversation, oldest first.
func (r *ChatRepo) List(ctx domain.Context, userID, chatbotID string) ([]domain.ChatEntry, error) {
	ctx, span := startSpan(ctx, "chat_history", "SELECT", "List")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT id::text, user_id, chatbot_id, control_type, type, text, files, created_at
FROM chat_history WHERE user_id = $1 AND chatbot_id = $2 ORDER BY seq`, userID, chatbotID)
	if err != nil {
		return nil, fmt.Errorf("op=chat.list: %w", err)
	}
	defer rows.Close()
	out := []domain.ChatEntry{}
	for rows.Next() {
		var (
			e     domain.ChatEntry
			typ   string
			files []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.ChatbotID, &e.ControlType, &typ, &e.Text, &files, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=chat.list: %w", err)
		}
		e.Type = domain.ChatType(typ)
		if len(files) > 0 {
			if err := json.Unmarshal(files, &e.Files); err != nil {
				return nil, fmt.Errorf("op=chat.list: decode files: %w", err)
			}
		}
		if len(e.Files) == 0 {
			e.Files = nil
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=chat.list: %w", err)
	}
	return out, nil
}

// DeleteByType removes a user's conversations for one control type.
func (r *ChatRepo) DeleteByType(ctx domain.Context, userID, controlType string) (int64, error) {
	ctx, span := startSpan(ctx, "chat_history", "DELETE", "DeleteByType")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM chat_history WHERE user_id = $1 AND control_type = $2`, userID, controlType)
	if err != nil {
		return 0, fmt.Errorf("op=chat.delete_by_type: %w", err)
	}
	return tag.RowsAffected(), nil
}
