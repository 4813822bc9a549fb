package usecase

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/miporis/compliance-evaluator/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ControlService manages the control catalog and its read models.
type ControlService struct {
	Controls domain.ControlRepository
	Chats    domain.ChatRepository
}

// NewControlService constructs a ControlService.
func NewControlService(controls domain.ControlRepository, chats domain.ChatRepository) ControlService {
	return ControlService{Controls: controls, Chats: chats}
}

// Import stores catalog rows for a user. New rows get catalog defaults; rows
// already present only have their static fields refreshed.
func (s ControlService) Import(ctx domain.Context, userID, controlType string, recs []domain.ControlRecord) ([]domain.ControlRecord, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(controlType) == "" {
		return nil, fmt.Errorf("%w: user_id and control_type are required", domain.ErrInvalidArgument)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: data must not be empty", domain.ErrInvalidArgument)
	}
	out := make([]domain.ControlRecord, len(recs))
	for i, r := range recs {
		if strings.TrimSpace(r.ControlID) == "" {
			return nil, fmt.Errorf("%w: data[%d].control_id is required", domain.ErrInvalidArgument, i)
		}
		r.UserID = userID
		r.ControlType = controlType
		r.ApplyCatalogDefaults()
		out[i] = r
	}
	return s.Controls.Import(ctx, out)
}

// List returns a user's controls of one type.
func (s ControlService) List(ctx domain.Context, userID, controlType string) ([]domain.ControlRecord, error) {
	if userID == "" || controlType == "" {
		return nil, fmt.Errorf("%w: user_id and control_type are required", domain.ErrInvalidArgument)
	}
	return s.Controls.ListByType(ctx, userID, controlType)
}

// Get returns one control by record id.
func (s ControlService) Get(ctx domain.Context, id string) (domain.ControlRecord, error) {
	if id == "" {
		return domain.ControlRecord{}, fmt.Errorf("%w: id required", domain.ErrInvalidArgument)
	}
	return s.Controls.Get(ctx, id)
}

// DeleteResult counts the rows removed by Delete.
type DeleteResult struct {
	Controls int64 `json:"deletedControls"`
	Chats    int64 `json:"deletedChats"`
}

// Delete removes a user's controls of one type along with their chat history.
func (s ControlService) Delete(ctx domain.Context, userID, controlType string) (DeleteResult, error) {
	if userID == "" || controlType == "" {
		return DeleteResult{}, fmt.Errorf("%w: user_id and control_type are required", domain.ErrInvalidArgument)
	}
	n, err := s.Controls.DeleteByType(ctx, userID, controlType)
	if err != nil {
		return DeleteResult{}, err
	}
	if n == 0 {
		return DeleteResult{}, fmt.Errorf("%w: no controls of type %q", domain.ErrNotFound, controlType)
	}
	c, err := s.Chats.DeleteByType(ctx, userID, controlType)
	if err != nil {
		return DeleteResult{Controls: n}, err
	}
	return DeleteResult{Controls: n, Chats: c}, nil
}

// History returns evaluated controls, most recently updated first.
func (s ControlService) History(ctx domain.Context, userID string, limit int) ([]domain.ControlRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id required", domain.ErrInvalidArgument)
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	return s.Controls.History(ctx, userID, limit)
}

// HistoryBetween returns controls updated within [from, to].
func (s ControlService) HistoryBetween(ctx domain.Context, userID string, from, to time.Time) ([]domain.ControlRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id required", domain.ErrInvalidArgument)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from must not be after to", domain.ErrInvalidArgument)
	}
	return s.Controls.HistoryBetween(ctx, userID, from, to)
}

// Summary returns the share of a user's controls labelled C.
func (s ControlService) Summary(ctx domain.Context, userID string) (domain.ComplianceSummary, error) {
	if userID == "" {
		return domain.ComplianceSummary{}, fmt.Errorf("%w: user_id required", domain.ErrInvalidArgument)
	}
	sum, err := s.Controls.Summary(ctx, userID)
	if err != nil {
		return domain.ComplianceSummary{}, err
	}
	if sum.TotalRecords == 0 {
		return domain.ComplianceSummary{}, fmt.Errorf("%w: no records found for user", domain.ErrNotFound)
	}
	pct := float64(sum.CompliantCount) / float64(sum.TotalRecords) * 100
	sum.CompliantPercentage = math.Round(pct*100) / 100
	return sum, nil
}
