package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/miporis/compliance-evaluator/internal/domain"
	"github.com/miporis/compliance-evaluator/internal/usecase"
)

type chatRequest struct {
	Query       string `json:"query" validate:"required,max=8000"`
	UserID      string `json:"user_id" validate:"required,max=128"`
	ControlID   string `json:"control_id" validate:"required,max=128"`
	ControlType string `json:"control_type" validate:"max=128"`
}

// ChatCompletionsHandler answers a question about one control.
func (s *Server) ChatCompletionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if details, err := validateStruct(req); err != nil {
			writeError(w, r, err, details)
			return
		}
		reply, err := s.Chat.Complete(r.Context(), usecase.ChatInput{
			Query:       req.Query,
			UserID:      req.UserID,
			ControlID:   req.ControlID,
			ControlType: req.ControlType,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "answer": reply.Answer, "chat": reply.Entries})
	}
}

// ChatHistoryHandler returns a control conversation, oldest first.
func (s *Server) ChatHistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		entries, err := s.Chat.History(r.Context(), q.Get("user_id"), q.Get("control_id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if entries == nil {
			entries = []domain.ChatEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": entries})
	}
}
