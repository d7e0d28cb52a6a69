package formatting

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
)

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func TestPlainTable_Headers(t *testing.T) {
	var buf bytes.Buffer
	tw := NewPlainTable(&buf)
	tw.SetHeaders("unit", "Stage", "STATUS")

	assert.Equal(t, []string{"UNIT", "STAGE", "STATUS"}, tw.headers)
	assert.Equal(t, []int{4, 5, 6}, tw.widths)
}

func TestPlainTable_AppendRow(t *testing.T) {
	tw := NewPlainTable(&bytes.Buffer{})
	tw.SetHeaders("UNIT", "STATUS")

	tw.AppendRow("db", "Ready")
	tw.AppendRow("jupyter-gpu", "Skipped")
	tw.AppendRow("only")
	tw.AppendRow("a", "b", "dropped")

	assert.Len(t, tw.rows, 4)
	assert.Equal(t, []int{11, 7}, tw.widths)
	assert.Equal(t, []string{"only", ""}, tw.rows[2])
	assert.Equal(t, []string{"a", "b"}, tw.rows[3])
}

func TestPlainTable_Render(t *testing.T) {
	var buf bytes.Buffer
	tw := NewPlainTable(&buf)
	tw.SetHeaders("UNIT", "STATUS")
	tw.AppendRow("db", "Ready")
	tw.AppendRow("jupyter-gpu", "Skipped")
	tw.Render()

	assert.Equal(t, ""+
		"UNIT          STATUS\n"+
		"db            Ready\n"+
		"jupyter-gpu   Skipped\n", buf.String())
}

func TestPlainTable_ColoredCellsAlign(t *testing.T) {
	var buf bytes.Buffer
	tw := NewPlainTable(&buf)
	tw.SetHeaders("STATUS", "UNIT")
	tw.AppendRow(text.FgGreen.Sprint("Ready"), "db")
	tw.AppendRow("Failed", "api")
	tw.Render()

	lines := strings.Split(strings.TrimSuffix(ansi.ReplaceAllString(buf.String(), ""), "\n"), "\n")
	assert.Equal(t, []string{"STATUS   UNIT", "Ready    db", "Failed   api"}, lines)
}

func TestPlainTable_NoHeaders(t *testing.T) {
	var buf bytes.Buffer
	tw := NewPlainTable(&buf)
	tw.SetHeaders("UNIT", "STATUS")
	tw.SetNoHeaders(true)
	tw.Render()
	assert.Empty(t, buf.String())

	tw.AppendRow("db", "Ready")
	tw.Render()
	assert.Equal(t, "db     Ready\n", buf.String())
}

func TestPlainTable_NoColumns(t *testing.T) {
	var buf bytes.Buffer
	NewPlainTable(&buf).Render()
	assert.Empty(t, buf.String())
}
