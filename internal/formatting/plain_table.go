package formatting

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
)

// PlainTable writes kubectl-style columns without box drawing, for piping
// into grep, awk or cut.
type PlainTable struct {
	headers     []string
	rows        [][]string
	widths      []int
	padding     int
	showHeaders bool
	out         io.Writer
}

// NewPlainTable creates a plain table writing to out.
func NewPlainTable(out io.Writer) *PlainTable {
	return &PlainTable{padding: 3, showHeaders: true, out: out}
}

// SetHeaders sets the column headers. They are printed upper-cased.
func (w *PlainTable) SetHeaders(headers ...string) {
	w.headers = make([]string, len(headers))
	w.widths = make([]int, len(headers))
	for i, h := range headers {
		w.headers[i] = strings.ToUpper(h)
		w.widths[i] = text.RuneWidthWithoutEscSequences(w.headers[i])
	}
}

// SetNoHeaders suppresses the header row.
func (w *PlainTable) SetNoHeaders(noHeaders bool) {
	w.showHeaders = !noHeaders
}

// AppendRow adds a row. Missing cells are blank and extra cells dropped.
func (w *PlainTable) AppendRow(cells ...string) {
	row := make([]string, len(w.headers))
	for i := range row {
		if i >= len(cells) {
			continue
		}
		row[i] = cells[i]
		if n := text.RuneWidthWithoutEscSequences(cells[i]); n > w.widths[i] {
			w.widths[i] = n
		}
	}
	w.rows = append(w.rows, row)
}

// Render writes the table.
func (w *PlainTable) Render() {
	if len(w.headers) == 0 || (len(w.rows) == 0 && !w.showHeaders) {
		return
	}
	if w.showHeaders {
		w.writeRow(w.headers)
	}
	for _, row := range w.rows {
		w.writeRow(row)
	}
}

func (w *PlainTable) writeRow(row []string) {
	var sb strings.Builder
	for i, cell := range row {
		sb.WriteString(cell)
		if i < len(row)-1 {
			pad := w.widths[i] + w.padding - text.RuneWidthWithoutEscSequences(cell)
			sb.WriteString(strings.Repeat(" ", pad))
		}
	}
	fmt.Fprintln(w.out, strings.TrimRight(sb.String(), " "))
}
