package audioscrobbler

import (
	"errors"
	"fmt"
)

// Code is a protocol response status, the first word of a response body.
type Code string

// Response codes. Malformed and Transport are local classifications for
// bodies that could not be parsed and requests that never got one.
const (
	CodeOK         Code = "OK"
	CodeBanned     Code = "BANNED"
	CodeBadAuth    Code = "BADAUTH"
	CodeBadTime    Code = "BADTIME"
	CodeBadSession Code = "BADSESSION"
	CodeFailed     Code = "FAILED"
	CodeMalformed  Code = "MALFORMED"
	CodeTransport  Code = "TRANSPORT"
)

// Error represents a non-OK protocol response.
type Error struct {
	Code    Code   // Response status
	Message string // Remainder of the status line, or a local description
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("audioscrobbler: %s", e.Code)
	}
	return fmt.Sprintf("audioscrobbler: %s: %s", e.Code, e.Message)
}

// Is checks if the target error is an *Error with the same code.
//
// This allows errors.Is(err, ErrBadAuth) to work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Fatal returns true if the response rules out any automatic retry.
//
// BANNED, BADAUTH and BADTIME all mean the client or its configuration
// has to change before a handshake can succeed.
func (e *Error) Fatal() bool {
	switch e.Code {
	case CodeBanned, CodeBadAuth, CodeBadTime:
		return true
	default:
		return false
	}
}

// Temporary returns true if the request may succeed when retried as is.
func (e *Error) Temporary() bool {
	switch e.Code {
	case CodeFailed, CodeMalformed, CodeTransport:
		return true
	default:
		return false
	}
}

// Description is the user facing text for fatal handshake responses.
func (e *Error) Description() string {
	switch e.Code {
	case CodeBanned:
		return "Client is banned"
	case CodeBadAuth:
		return "Bad authorization"
	case CodeBadTime:
		return "Wrong system time"
	default:
		return e.Error()
	}
}

// Predefined errors for errors.Is comparisons.
var (
	ErrBanned     = &Error{Code: CodeBanned}
	ErrBadAuth    = &Error{Code: CodeBadAuth}
	ErrBadTime    = &Error{Code: CodeBadTime}
	ErrBadSession = &Error{Code: CodeBadSession}

	// ErrInvalidConfig is returned when session configuration is invalid.
	ErrInvalidConfig = errors.New("audioscrobbler: invalid configuration")
)
