package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/miporis/compliance-evaluator/internal/config"
	"github.com/miporis/compliance-evaluator/internal/domain"
	"github.com/miporis/compliance-evaluator/internal/usecase"
)

// Evaluator runs the evaluation pipeline.
type Evaluator interface {
	Evaluate(ctx context.Context, in usecase.EvaluateInput) (usecase.EvaluationResult, error)
	QuickCheck(ctx context.Context, in usecase.EvaluateInput) (usecase.QuickCheckResult, error)
}

// Catalog manages control records and their history.
type Catalog interface {
	Import(ctx context.Context, userID, controlType string, recs []domain.ControlRecord) ([]domain.ControlRecord, error)
	List(ctx context.Context, userID, controlType string) ([]domain.ControlRecord, error)
	Get(ctx context.Context, id string) (domain.ControlRecord, error)
	Delete(ctx context.Context, userID, controlType string) (usecase.DeleteResult, error)
	History(ctx context.Context, userID string, limit int) ([]domain.ControlRecord, error)
	HistoryBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.ControlRecord, error)
	Summary(ctx context.Context, userID string) (domain.ComplianceSummary, error)
}

// Chatter answers control questions.
type Chatter interface {
	Complete(ctx context.Context, in usecase.ChatInput) (usecase.ChatReply, error)
	History(ctx context.Context, userID, controlID string) ([]domain.ChatEntry, error)
}

// ReadinessCheck probes one dependency.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg      config.Config
	Evaluate Evaluator
	Controls Catalog
	Chat     Chatter
	Checks   []ReadinessCheck
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, eval Evaluator, controls Catalog, chat Chatter, checks ...ReadinessCheck) *Server {
	return &Server{Cfg: cfg, Evaluate: eval, Controls: controls, Chat: chat, Checks: checks}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes every configured dependency.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, len(s.Checks))
		st := http.StatusOK
		for _, c := range s.Checks {
			if c.Check == nil {
				continue
			}
			if err := c.Check(ctx); err != nil {
				checks = append(checks, check{Name: c.Name, Details: err.Error()})
				st = http.StatusServiceUnavailable
				continue
			}
			checks = append(checks, check{Name: c.Name, OK: true})
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
