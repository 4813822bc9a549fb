package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/miporis/compliance-evaluator/internal/domain"
	intobs "github.com/miporis/compliance-evaluator/internal/observability"
)

// GreetingQuery is sent by clients to open a control conversation. It is
// answered but not recorded as a user turn.
const GreetingQuery = "greet and give the list of required document to get compliant?"

// ChatInput is one user message about a control.
type ChatInput struct {
	Query       string
	UserID      string
	ControlID   string
	ControlType string
}

// ChatReply is the model answer and the entries persisted for it.
type ChatReply struct {
	Answer  string
	Entries []domain.ChatEntry
}

// ChatService answers free-form questions about a control.
type ChatService struct {
	Controls domain.ControlRepository
	Chats    domain.ChatRepository
	Model    domain.ChatModel
	Composer PromptComposer
}

// NewChatService constructs a ChatService.
func NewChatService(controls domain.ControlRepository, chats domain.ChatRepository, model domain.ChatModel, composer PromptComposer) ChatService {
	return ChatService{Controls: controls, Chats: chats, Model: model, Composer: composer}
}

// Complete answers the query with the control record and its history as
// context, then appends the turn to the conversation.
func (s ChatService) Complete(ctx domain.Context, in ChatInput) (ChatReply, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" || in.UserID == "" || in.ControlID == "" {
		return ChatReply{}, fmt.Errorf("%w: query, user_id and control_id are required", domain.ErrInvalidArgument)
	}
	rec, err := s.Controls.FindByControl(ctx, domain.ControlKey{ControlID: in.ControlID, UserID: in.UserID})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return ChatReply{}, err
	}
	history, err := s.Chats.List(ctx, in.UserID, in.ControlID)
	if err != nil {
		return ChatReply{}, err
	}
	answer, err := s.Model.Complete(ctx, s.Composer.ComposeChat(rec, history), query)
	if err != nil {
		return ChatReply{}, err
	}

	now := time.Now().UTC()
	entries := make([]domain.ChatEntry, 0, 2)
	if query != GreetingQuery {
		entries = append(entries, domain.ChatEntry{
			UserID: in.UserID, ChatbotID: in.ControlID, ControlType: in.ControlType,
			Type: domain.ChatUser, Text: query, CreatedAt: now,
		})
	}
	entries = append(entries, domain.ChatEntry{
		UserID: in.UserID, ChatbotID: in.ControlID, ControlType: in.ControlType,
		Type: domain.ChatBot, Text: answer, CreatedAt: now,
	})
	saved, err := s.Chats.Append(ctx, entries...)
	if err != nil {
		return ChatReply{}, err
	}
	intobs.LoggerFromContext(ctx).Info("chat answered",
		slog.String("control_id", in.ControlID), slog.Int("history_len", len(history)))
	return ChatReply{Answer: answer, Entries: saved}, nil
}

// History returns the conversation for a control, oldest first.
func (s ChatService) History(ctx domain.Context, userID, controlID string) ([]domain.ChatEntry, error) {
	if userID == "" || controlID == "" {
		return nil, fmt.Errorf("%w: user_id and control_id are required", domain.ErrInvalidArgument)
	}
	return s.Chats.List(ctx, userID, controlID)
}
