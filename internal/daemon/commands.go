package daemon

import (
	"fmt"
	"strings"
)

// LoveCommand rates a track. Without an artist and title it applies to the
// track that is playing.
type LoveCommand struct {
	On     bool
	Artist string
	Title  string
}

// Current reports whether the command targets the playing track
func (c LoveCommand) Current() bool {
	return c.Artist == "" && c.Title == ""
}

// String encodes the command as a channel message: "love" or "unlove",
// optionally followed by tab separated artist and title.
func (c LoveCommand) String() string {
	verb := "unlove"
	if c.On {
		verb = "love"
	}
	if c.Current() {
		return verb
	}
	return verb + "\t" + clean(c.Artist) + "\t" + clean(c.Title)
}

// ParseCommand decodes a channel message
func ParseCommand(msg string) (LoveCommand, error) {
	parts := strings.Split(strings.TrimSpace(msg), "\t")

	var cmd LoveCommand
	switch parts[0] {
	case "love":
		cmd.On = true
	case "unlove":
	default:
		return LoveCommand{}, fmt.Errorf("unknown command %q", parts[0])
	}

	switch len(parts) {
	case 1:
	case 3:
		cmd.Artist = strings.TrimSpace(parts[1])
		cmd.Title = strings.TrimSpace(parts[2])
		if cmd.Artist == "" || cmd.Title == "" {
			return LoveCommand{}, fmt.Errorf("%s needs both artist and title", parts[0])
		}
	default:
		return LoveCommand{}, fmt.Errorf("malformed %s command", parts[0])
	}
	return cmd, nil
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
