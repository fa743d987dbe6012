package cmd

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// padToWidth pads or truncates text to a fixed display width.
// Width is measured in display columns, accounting for Unicode characters.
// Text longer than width is truncated with a "..." suffix.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	const ellipsis = "..."
	if runewidth.StringWidth(text) > width {
		if width <= len(ellipsis) {
			return runewidth.Truncate(ellipsis, width, "")
		}
		text = runewidth.Truncate(text, width-len(ellipsis), "") + ellipsis
	}

	if w := runewidth.StringWidth(text); w < width {
		text += strings.Repeat(" ", width-w)
	}
	return text
}

// table lays out rows in columns of fixed display width. The last
// column is not padded.
type table struct {
	widths []int
	b      strings.Builder
}

func newTable(widths ...int) *table {
	return &table{widths: widths}
}

func (t *table) row(cells ...string) {
	for i, cell := range cells {
		if i < len(cells)-1 && i < len(t.widths) {
			t.b.WriteString(padToWidth(cell, t.widths[i]))
			t.b.WriteString("  ")
			continue
		}
		t.b.WriteString(cell)
	}
	t.b.WriteString("\n")
}

func (t *table) String() string {
	return t.b.String()
}
