package audioscrobbler

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Classification(t *testing.T) {
	tests := []struct {
		code      Code
		fatal     bool
		temporary bool
	}{
		{CodeBanned, true, false},
		{CodeBadAuth, true, false},
		{CodeBadTime, true, false},
		{CodeBadSession, false, false},
		{CodeFailed, false, true},
		{CodeMalformed, false, true},
		{CodeTransport, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := &Error{Code: tt.code}
			if got := err.Fatal(); got != tt.fatal {
				t.Errorf("Fatal() = %v, want %v", got, tt.fatal)
			}
			if got := err.Temporary(); got != tt.temporary {
				t.Errorf("Temporary() = %v, want %v", got, tt.temporary)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("handshake: %w", &Error{Code: CodeBadAuth, Message: "nope"})

	if !errors.Is(err, ErrBadAuth) {
		t.Error("errors.Is(err, ErrBadAuth) = false, want true")
	}
	if errors.Is(err, ErrBanned) {
		t.Error("errors.Is(err, ErrBanned) = true, want false")
	}
}

func TestError_Description(t *testing.T) {
	if got := ErrBadTime.Description(); got != "Wrong system time" {
		t.Errorf("Description() = %q", got)
	}
	e := &Error{Code: CodeFailed, Message: "Plugin bug"}
	if got := e.Description(); got != "audioscrobbler: FAILED: Plugin bug" {
		t.Errorf("Description() = %q", got)
	}
}
