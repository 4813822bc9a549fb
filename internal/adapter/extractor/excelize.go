package extractor

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/xuri/excelize/v2"
)

// maxSheetRows bounds the rows rendered per sheet.
const maxSheetRows = 2000

// SheetPartitioner partitions a workbook locally: every visible sheet is a
// page holding a title element and one table element.
type SheetPartitioner struct{}

// Partition implements Partitioner.
func (SheetPartitioner) Partition(_ context.Context, _ string, data []byte) ([]Element, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []Element
	page := 0
	for _, sheet := range f.GetSheetList() {
		if visible, err := f.GetSheetVisible(sheet); err == nil && !visible {
			continue
		}
		page++
		out = append(out, Element{Category: "Title", Text: sheet, Page: page})

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		rows = trimEmptyRows(rows)
		if len(rows) == 0 {
			continue
		}
		if len(rows) > maxSheetRows {
			rows = rows[:maxSheetRows]
		}
		out = append(out, Element{
			Category: CategoryTable,
			Text:     rowsText(rows),
			HTML:     rowsHTML(rows),
			Page:     page,
		})
	}
	return out, nil
}

func trimEmptyRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, r := range rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func rowsText(rows [][]string) string {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = strings.Join(r, "\t")
	}
	return strings.Join(lines, "\n")
}

func rowsHTML(rows [][]string) string {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	var b strings.Builder
	b.WriteString("<table>")
	for _, r := range rows {
		b.WriteString("<tr>")
		for i := 0; i < width; i++ {
			b.WriteString("<td>")
			if i < len(r) {
				b.WriteString(html.EscapeString(r[i]))
			}
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return b.String()
}
