package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teemow/calbridge/internal/event"
)

var (
	// ErrMissingEventID is returned by Update when the event carries no id.
	ErrMissingEventID = errors.New("event id is required")

	// ErrNotFound marks a backend response for an event that does not exist.
	ErrNotFound = errors.New("event not found")
)

// Error is a failed call against one backend.
type Error struct {
	Provider event.Source
	Op       string
	Err      error
}

// NewError wraps err as a backend call error. It returns nil for a nil err and
// does not double wrap.
func NewError(source event.Source, op string, err error) error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return err
	}
	return &Error{Provider: source, Op: op, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", strings.ToLower(e.Provider.String()), e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err says the event does not exist on the backend.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// DecodeError is a native event a codec cannot map onto the canonical model.
type DecodeError struct {
	Provider event.Source
	Field    string
	Value    string
	Err      error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("cannot decode %s event: unrecognized %s %q", strings.ToLower(e.Provider.String()), e.Field, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
