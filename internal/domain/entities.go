// Package domain holds the compliance evaluation model, its error taxonomy
// and the ports implemented by adapters.
package domain

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Relevance and compliance flags as they appear in imported catalogs.
const (
	FlagYes = "Y"
	FlagNo  = "N"
)

// ControlRecord is the compliance state of one control for one user.
// Static catalog fields are reference data; Result, Score, UploadHistory and
// UpdatedAt are mutated only by the evaluation pipeline.
// Invariants: 0 <= Score <= 100; Result == FromScore(Score) after any evaluation.
type ControlRecord struct {
	ID              string               `json:"id"`
	ControlID       string               `json:"control_id" validate:"required,max=128"`
	UserID          string               `json:"user_id" validate:"required,max=128"`
	ControlType     string               `json:"compliant_type"`
	IMEX            string               `json:"imex,omitempty"`
	Factory         string               `json:"factory,omitempty"`
	Process         string               `json:"process"`
	SubProcess      string               `json:"sub_process"`
	Risk            string               `json:"risk"`
	Header          string               `json:"control_header"`
	Description     string               `json:"control_description"`
	Frequency       string               `json:"frequency,omitempty"`
	PolicyReference string               `json:"corporate_policy_reference,omitempty"`
	TestGuidance    string               `json:"suggested_test_guidance"`
	SunriseRef      string               `json:"sap_sunrise_racm_control,omitempty"`
	TurboRef        string               `json:"sap_turbo_racm_control,omitempty"`
	Relevance       string               `json:"relevance" validate:"omitempty,oneof=Y N"`
	Compliance      string               `json:"compliance" validate:"omitempty,oneof=Y N"`
	Result          Label                `json:"compliant_result"`
	Score           int                  `json:"score"`
	UploadHistory   []UploadHistoryEntry `json:"upload_history"`
	UpdatedAt       *time.Time           `json:"updated_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// LatestUpload returns the most recent upload history entry, if any.
func (c ControlRecord) LatestUpload() (UploadHistoryEntry, bool) {
	if len(c.UploadHistory) == 0 {
		return UploadHistoryEntry{}, false
	}
	return c.UploadHistory[len(c.UploadHistory)-1], true
}

// ApplyCatalogDefaults fills unset mutable fields the way a fresh catalog
// import expects: relevance Y, compliance N, NC at score 0, and a forced
// C at score 100 when the catalog already marks the control compliant.
func (c *ControlRecord) ApplyCatalogDefaults() {
	c.Relevance = strings.ToUpper(strings.TrimSpace(c.Relevance))
	if c.Relevance == "" {
		c.Relevance = FlagYes
	}
	c.Compliance = strings.ToUpper(strings.TrimSpace(c.Compliance))
	if c.Compliance == "" {
		c.Compliance = FlagNo
	}
	if c.Compliance == FlagYes {
		c.Score = MaxScore
	}
	c.Score = ClampScore(c.Score)
	c.Result = FromScore(c.Score)
	if c.UploadHistory == nil {
		c.UploadHistory = []UploadHistoryEntry{}
	}
}

// FileRef points at one stored evidence file.
type FileRef struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
}

// FileNameSet returns the sorted, de-duplicated file names of refs.
func FileNameSet(refs []FileRef) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r.FileName]; ok {
			continue
		}
		seen[r.FileName] = struct{}{}
		out = append(out, r.FileName)
	}
	sort.Strings(out)
	return out
}

// UploadHistoryEntry is one append-only evaluation record.
type UploadHistoryEntry struct {
	Score     int       `json:"score"`
	Remark    string    `json:"remark"`
	Files     []FileRef `json:"files"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ChatType distinguishes the two sides of a control conversation.
type ChatType string

const (
	ChatUser ChatType = "user"
	ChatBot  ChatType = "bot"
)

// UploadedFileText is the user-side chat text recorded for an evaluation.
const UploadedFileText = "uploaded a file"

// ChatEntry is one append-only conversation turn. ChatbotID is the control id.
type ChatEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ChatbotID   string    `json:"chatbot_id"`
	ControlType string    `json:"control_type"`
	Type        ChatType  `json:"type"`
	Text        string    `json:"text"`
	Files       []FileRef `json:"files,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Verdict is the Judge's raw decision. It is never persisted directly.
type Verdict struct {
	Result  Label  `json:"compliant_result"`
	Score   int    `json:"score"`
	Remarks string `json:"remarks"`
}

// FinalVerdict is a reconciled verdict ready to be persisted.
type FinalVerdict struct {
	Result     Label  `json:"compliant_result"`
	Score      int    `json:"score"`
	Remarks    string `json:"remarks"`
	RawResult  Label  `json:"raw_result"`
	RawScore   int    `json:"raw_score"`
	PriorScore int    `json:"prior_score"`
	Duplicate  bool   `json:"duplicate"`
}

// SourceFile is one file handed to an extractor. Data may be nil when the
// bytes have to be fetched from URL.
type SourceFile struct {
	Name     string
	URL      string
	MIMEHint string
	Data     []byte
}

// UploadFile is an uploaded file before it is stored.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Part is one element of a multimodal request: either inline bytes with a
// MIME type or an instruction text.
type Part struct {
	MIMEType string
	Data     []byte
	Text     string
}

// ControlKey identifies a control record.
type ControlKey struct {
	ControlID string
	UserID    string
}

// String renders the key for locks and logs.
func (k ControlKey) String() string { return k.UserID + "/" + k.ControlID }

// StateUpdate describes one State Updater application. Reconcile receives the
// prior record as read under the row lock and returns the verdict to persist.
type StateUpdate struct {
	Key         ControlKey
	ControlType string
	Files       []FileRef
	Reconcile   func(prior ControlRecord) (FinalVerdict, error)
}

// AppliedState is the State Updater result.
type AppliedState struct {
	Record  ControlRecord
	Verdict FinalVerdict
	Entry   UploadHistoryEntry
	Chat    []ChatEntry
}

// ComplianceSummary aggregates compliance across a user's controls.
type ComplianceSummary struct {
	TotalRecords        int64   `json:"totalRecords"`
	CompliantCount      int64   `json:"compliantCount"`
	CompliantPercentage float64 `json:"compliantPercentage"`
}

// EvaluationCompleted is published after a successful State Updater commit.
type EvaluationCompleted struct {
	EventID     string    `json:"event_id"`
	ControlID   string    `json:"control_id"`
	UserID      string    `json:"user_id"`
	ControlType string    `json:"control_type"`
	Result      Label     `json:"compliant_result"`
	Score       int       `json:"score"`
	PriorScore  int       `json:"prior_score"`
	RawScore    int       `json:"raw_score"`
	Duplicate   bool      `json:"duplicate"`
	Files       []FileRef `json:"files"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Context is an alias so ports can be declared without importing context
// at every call site.
type Context = context.Context
