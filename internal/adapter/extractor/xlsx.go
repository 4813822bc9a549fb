package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/miporis/compliance-evaluator/internal/domain"
	"github.com/miporis/compliance-evaluator/internal/observability"
)

const (
	// CategoryTable marks an element whose HTML should be summarized.
	CategoryTable  = "Table"
	noTableSummary = "No response for this table."
)

// Element is one chunk of a partitioned document.
type Element struct {
	Category string
	Text     string
	HTML     string
	Page     int
}

// Partitioner splits a document into page-numbered elements.
type Partitioner interface {
	Partition(ctx context.Context, name string, data []byte) ([]Element, error)
}

// XLSX renders spreadsheet pages and splices one batched table summary per
// table back into its page.
type XLSX struct {
	Partitioner Partitioner
	Model       domain.Multimodal
}

// Extract implements domain.Extractor.
func (x XLSX) Extract(ctx context.Context, f domain.SourceFile) (string, error) {
	elems, err := x.Partitioner.Partition(ctx, f.Name, f.Data)
	if err != nil {
		return "", fmt.Errorf("partition %s: %w", f.Name, err)
	}

	pages := map[int]*strings.Builder{}
	page := func(n int) *strings.Builder {
		if pages[n] == nil {
			pages[n] = &strings.Builder{}
		}
		return pages[n]
	}
	var tables []domain.Part
	var tablePages []int
	for _, e := range elems {
		b := page(e.Page)
		if e.Category == CategoryTable {
			html := e.HTML
			if html == "" {
				html = e.Text
			}
			tables = append(tables, domain.Part{MIMEType: "text/html", Data: []byte(html)})
			tablePages = append(tablePages, e.Page)
			continue
		}
		b.WriteString("\n")
		b.WriteString(e.Text)
	}

	if len(tables) > 0 {
		summaries := x.summarizeTables(ctx, f.Name, tables)
		if summaries != nil {
			for i, p := range tablePages {
				s := noTableSummary
				if i < len(summaries) && strings.TrimSpace(summaries[i]) != "" {
					s = summaries[i]
				}
				fmt.Fprintf(page(p), "\n[Table Analysis]\n%s\n", s)
			}
		}
	}

	nums := make([]int, 0, len(pages))
	for n := range pages {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	var out strings.Builder
	for _, n := range nums {
		fmt.Fprintf(&out, "Page %d:\n%s\n\n", n, strings.TrimSpace(pages[n].String()))
	}
	return out.String(), nil
}

// summarizeTables returns one summary per table by position, or nil when
// the model call failed. A failed call leaves the page text without
// analysis rather than failing the file.
func (x XLSX) summarizeTables(ctx context.Context, name string, tables []domain.Part) []string {
	parts := append(tables, domain.Part{Text: tablesInstruction})
	text, err := x.Model.Generate(ctx, parts)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("table analysis failed",
			slog.String("file", name), slog.Int("tables", len(tables)), slog.Any("error", err))
		return nil
	}
	return strings.Split(text, "\n\n")
}
