package domain

import "time"

// Repositories (ports)

// ControlRepository reads and maintains the control catalog.
type ControlRepository interface {
	ListByType(ctx Context, userID, controlType string) ([]ControlRecord, error)
	Get(ctx Context, id string) (ControlRecord, error)
	FindByControl(ctx Context, key ControlKey) (ControlRecord, error)
	Import(ctx Context, recs []ControlRecord) ([]ControlRecord, error)
	DeleteByType(ctx Context, userID, controlType string) (int64, error)
	History(ctx Context, userID string, limit int) ([]ControlRecord, error)
	HistoryBetween(ctx Context, userID string, from, to time.Time) ([]ControlRecord, error)
	Summary(ctx Context, userID string) (ComplianceSummary, error)
}

// ChatRepository appends and reads per-control conversations, oldest first.
type ChatRepository interface {
	Append(ctx Context, entries ...ChatEntry) ([]ChatEntry, error)
	List(ctx Context, userID, chatbotID string) ([]ChatEntry, error)
	DeleteByType(ctx Context, userID, controlType string) (int64, error)
}

// StateStore applies a reconciled evaluation atomically: record update,
// upload history append and both chat entries commit together or not at all.
type StateStore interface {
	Apply(ctx Context, u StateUpdate) (AppliedState, error)
}

// External collaborators (ports)

// BlobStore stores evidence files and reads them back by URL.
type BlobStore interface {
	Put(ctx Context, key string, data []byte, contentType string) (string, error)
	Get(ctx Context, url string) ([]byte, error)
}

// Multimodal accepts ordered content parts and returns free text.
type Multimodal interface {
	Generate(ctx Context, parts []Part) (string, error)
}

// Extractor converts one source file into normalized text.
type Extractor interface {
	Extract(ctx Context, f SourceFile) (string, error)
}

// Judge evaluates a composed prompt into a verdict. Output that does not
// satisfy the verdict contract fails with *InvalidResponseError.
type Judge interface {
	Judge(ctx Context, prompt string) (Verdict, error)
}

// ChatModel answers a free-form question under a system prompt.
type ChatModel interface {
	Complete(ctx Context, systemPrompt, userPrompt string) (string, error)
}

// KeyLocker serializes work per key. The returned func releases the lock.
type KeyLocker interface {
	Lock(ctx Context, key string) (func(), error)
}

// RateLimiter meters work per key.
type RateLimiter interface {
	Allow(ctx Context, key string, cost int64) (bool, time.Duration, error)
}

// EventPublisher emits evaluation events.
type EventPublisher interface {
	PublishEvaluation(ctx Context, ev EvaluationCompleted) error
}

// TokenCounter measures prompt size.
type TokenCounter interface {
	CountTokens(text, model string) (int, error)
}
