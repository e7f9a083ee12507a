package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds surfaced by the core. Internal timer/promise failures are turned into one of these
// before they reach a UiSink.
var (
	ErrGestureConflict   = errors.New("a press is already in progress")
	ErrPrefetchFailed    = errors.New("prefetch failed")
	ErrRosterUnavailable = errors.New("roster unavailable")
	ErrUnknownStudent    = errors.New("unknown student")
	ErrSubmitFailed      = errors.New("report submission failed")
	ErrNotifyFailed      = errors.New("attendance notification failed")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
)

type kindError struct {
	kind error
	err  error
}

// WithKind attaches one of the error kinds above to err.
// errors.Cause and errors.Is both resolve to kind.
func WithKind(kind, err error) error {
	if err == nil {
		return kind
	}
	return &kindError{kind: kind, err: err}
}

func (e *kindError) Error() string        { return e.kind.Error() + ": " + e.err.Error() }
func (e *kindError) Cause() error         { return e.kind }
func (e *kindError) Unwrap() error        { return e.kind }
func (e *kindError) Is(target error) bool { return target == e.kind }

// KindOf returns the error kind carried by err, or nil.
func KindOf(err error) error {
	switch cause := errors.Cause(err); cause {
	case ErrGestureConflict, ErrPrefetchFailed, ErrRosterUnavailable, ErrUnknownStudent,
		ErrSubmitFailed, ErrNotifyFailed, ErrSessionNotFound, ErrSessionClosed:
		return cause
	}
	return nil
}

// UnknownStudentError is returned when marking a student that is not on the roster.
type UnknownStudentError struct {
	ID         string
	Suggestion *StudentRecord // closest roster match, if any
}

func (e *UnknownStudentError) Error() string {
	if e.Suggestion != nil {
		return fmt.Sprintf("unknown student %q (did you mean %q?)", e.ID, e.Suggestion.Name)
	}
	return fmt.Sprintf("unknown student %q", e.ID)
}

func (e *UnknownStudentError) Cause() error         { return ErrUnknownStudent }
func (e *UnknownStudentError) Is(target error) bool { return target == ErrUnknownStudent }

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}
