package ui

import (
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"
)

// Plan titles are the only free-form text in list output; cap them so one
// long title cannot blow up the whole table.
const maxCellWidth = 50

// TableBuilder accumulates rows and renders them as a left-aligned table
// with two spaces between columns.
type TableBuilder struct {
	headers []string
	rows    [][]string
}

// NewTableBuilder returns a builder for the given header row.
func NewTableBuilder(headers []string, capacity int) *TableBuilder {
	return &TableBuilder{headers: headers, rows: make([][]string, 0, capacity)}
}

// AddRow appends one row. Cells beyond the header count are dropped by the
// renderer rather than misaligning the table.
func (b *TableBuilder) AddRow(row []string) {
	b.rows = append(b.rows, row)
}

// String renders the header and all rows.
func (b *TableBuilder) String() string {
	var out strings.Builder
	w := tabwriter.NewWriter(&out, 0, 0, 2, ' ', 0)

	writeLine := func(cells []string) {
		if len(cells) > len(b.headers) {
			cells = cells[:len(b.headers)]
		}
		for i, cell := range cells {
			if i > 0 {
				io.WriteString(w, "\t")
			}
			io.WriteString(w, flattenCell(cell))
		}
		io.WriteString(w, "\n")
	}

	writeLine(b.headers)
	for _, row := range b.rows {
		writeLine(row)
	}
	w.Flush()
	return out.String()
}

// flattenCell collapses line breaks and tabs so a cell cannot derail the
// column layout.
func flattenCell(cell string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(cell)
}

// TruncateTableCell flattens a cell and caps it at the table's maximum cell
// width, marking the cut with an ellipsis.
func TruncateTableCell(value string) string {
	value = flattenCell(value)
	if utf8.RuneCountInString(value) <= maxCellWidth {
		return value
	}

	runes := []rune(value)
	return string(runes[:maxCellWidth-3]) + "..."
}
