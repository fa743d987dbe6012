package cmd

import (
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestPadToWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{name: "no padding when width is 0", input: "Hello", width: 0, expected: "Hello"},
		{name: "no padding when width is negative", input: "Hello", width: -1, expected: "Hello"},
		{name: "pad short text with spaces", input: "Hi", width: 10, expected: "Hi        "},
		{name: "exact width unchanged", input: "Hello", width: 5, expected: "Hello"},
		{
			name:     "truncate long text with ellipsis",
			input:    "This is a very long string that needs truncation",
			width:    20,
			expected: "This is a very lo...",
		},
		{name: "handle unicode characters", input: "日本語", width: 10, expected: "日本語    "},
		{name: "truncate wide text keeps width", input: "日本語とても長いテキスト", width: 10, expected: "日本語... "},
		{name: "width smaller than ellipsis", input: "Hello", width: 2, expected: ".."},
		{name: "empty string padding", input: "", width: 5, expected: "     "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := padToWidth(tt.input, tt.width)
			if result != tt.expected {
				t.Errorf("padToWidth(%q, %d) = %q, want %q", tt.input, tt.width, result, tt.expected)
			}
			if tt.width > 0 {
				if w := runewidth.StringWidth(result); w != tt.width {
					t.Errorf("padToWidth(%q, %d) has width %d", tt.input, tt.width, w)
				}
			}
		})
	}
}

func TestTable(t *testing.T) {
	tb := newTable(7, 5)
	tb.row("SERVICE", "QUEUE", "STATE")
	tb.row("lastfm", "12", "ok")
	tb.row("a-very-long-id", "3", "failed")

	want := "SERVICE  QUEUE  STATE\n" +
		"lastfm   12     ok\n" +
		"a-ve...  3      failed\n"
	if got := tb.String(); got != want {
		t.Errorf("unexpected table:\n got: %q\nwant: %q", got, want)
	}
}
