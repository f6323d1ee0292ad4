package apierr

import (
	"errors"
	"fmt"
)

// Sentinels for the conversation engine's error taxonomy. Callers match with
// errors.Is; the HTTP layer maps them onto stream error events.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrQuotaExceeded     = errors.New("conversation quota exceeded")
	ErrTurnInProgress    = errors.New("a turn is already in progress for this conversation")
	ErrInvalidSession    = errors.New("invalid or expired session")
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}
