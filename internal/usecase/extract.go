package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/miporis/compliance-evaluator/internal/domain"
	intobs "github.com/miporis/compliance-evaluator/internal/observability"
)

// FileOutcome reports how one file of a batch was extracted.
type FileOutcome struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Extraction outcome statuses.
const (
	OutcomeOK          = "ok"
	OutcomeUnsupported = "unsupported_format"
	OutcomeFailed      = "extraction_failure"
)

// DocumentAssembler runs the extractor over a batch concurrently and joins
// the results in submission order.
type DocumentAssembler struct {
	Extractor   domain.Extractor
	Concurrency int
}

// NewDocumentAssembler constructs a DocumentAssembler.
func NewDocumentAssembler(ex domain.Extractor, concurrency int) DocumentAssembler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return DocumentAssembler{Extractor: ex, Concurrency: concurrency}
}

// Assemble extracts every file and returns the combined document text. A
// failing file never fails the batch: it is replaced by an inline marker.
// Only cancellation of ctx aborts the whole batch.
func (a DocumentAssembler) Assemble(ctx context.Context, files []domain.SourceFile) (string, []FileOutcome, error) {
	texts := make([]string, len(files))
	outcomes := make([]FileOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Concurrency)
	for i, f := range files {
		g.Go(func() error {
			text, err := a.Extractor.Extract(gctx, f)
			format := formatLabel(f.Name)
			switch {
			case err == nil:
				texts[i] = text
				outcomes[i] = FileOutcome{Name: f.Name, Status: OutcomeOK}
				recordExtraction(format, OutcomeOK)
			case errors.Is(err, context.Canceled) && ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, domain.ErrUnsupportedFormat):
				texts[i] = fmt.Sprintf("[UnsupportedFormat] %s: %v", f.Name, err)
				outcomes[i] = FileOutcome{Name: f.Name, Status: OutcomeUnsupported, Error: err.Error()}
				recordExtraction(format, OutcomeUnsupported)
			default:
				texts[i] = fmt.Sprintf("[ExtractionFailure] %s: %v", f.Name, err)
				outcomes[i] = FileOutcome{Name: f.Name, Status: OutcomeFailed, Error: err.Error()}
				recordExtraction(format, OutcomeFailed)
				intobs.LoggerFromContext(ctx).Warn("extraction failed",
					slog.String("file", f.Name), slog.Any("error", err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, err
	}
	return JoinDocuments(texts), outcomes, nil
}

// JoinDocuments numbers each text in order and joins them.
func JoinDocuments(texts []string) string {
	var b strings.Builder
	for i, t := range texts {
		fmt.Fprintf(&b, "\nDocument No.%d:\n%s\n\n---\n", i+1, t)
	}
	if strings.TrimSpace(strings.Join(texts, "")) == "" {
		return noDocumentFound
	}
	return b.String()
}

func formatLabel(name string) string {
	switch ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."); ext {
	case "pdf", "docx", "xlsx":
		return ext
	case "png", "jpg", "jpeg", "gif", "webp", "bmp", "tif", "tiff":
		return "image"
	default:
		return "other"
	}
}
