package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

type importRequest struct {
	UserID      string                 `json:"user_id" validate:"required,max=128"`
	ControlType string                 `json:"control_type" validate:"required,max=128"`
	Data        []domain.ControlRecord `json:"data" validate:"required,min=1,dive"`
}

// ImportControlsHandler imports a control catalog for a user.
func (s *Server) ImportControlsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
		var req importRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		// Rows inherit the request owner before validation.
		for i := range req.Data {
			req.Data[i].UserID = req.UserID
		}
		if details, err := validateStruct(req); err != nil {
			writeError(w, r, err, details)
			return
		}
		recs, err := s.Controls.Import(r.Context(), req.UserID, req.ControlType, req.Data)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"status": true, "count": len(recs), "data": recs})
	}
}

// ListControlsHandler lists a user's controls of one type.
func (s *Server) ListControlsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		recs, err := s.Controls.List(r.Context(), q.Get("user_id"), q.Get("control_type"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": recs})
	}
}

// GetControlHandler returns one control by record id.
func (s *Server) GetControlHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.Controls.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": rec})
	}
}

// DeleteControlsHandler removes a user's controls of one type and their chat.
func (s *Server) DeleteControlsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res, err := s.Controls.Delete(r.Context(), q.Get("user_id"), q.Get("control_type"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "deletedControls": res.Controls, "deletedChats": res.Chats})
	}
}

// HistoryHandler lists evaluated controls, newest first.
func (s *Server) HistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, err := parseLimit(q.Get("limit"))
		if err != nil {
			writeError(w, r, err, map[string]string{"field": "limit"})
			return
		}
		recs, err := s.Controls.History(r.Context(), q.Get("user_id"), limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": recs})
	}
}

// HistoryBetweenHandler lists controls updated within [from, to].
func (s *Server) HistoryBetweenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, err := parseInstant("from", q.Get("from"))
		if err != nil {
			writeError(w, r, err, map[string]string{"field": "from"})
			return
		}
		to, err := parseInstant("to", q.Get("to"))
		if err != nil {
			writeError(w, r, err, map[string]string{"field": "to"})
			return
		}
		recs, err := s.Controls.HistoryBetween(r.Context(), q.Get("user_id"), from, to)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": recs})
	}
}

// AnalyticsHandler returns the compliance summary for a user.
func (s *Server) AnalyticsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := s.Controls.Summary(r.Context(), chi.URLParam(r, "userId"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}
