package event

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the backend an event copy originated from or targets.
type Source string

const (
	SourceGoogle  Source = "GOOGLE"
	SourceOutlook Source = "OUTLOOK"
	SourceCalDAV  Source = "CALDAV"
)

// Sources lists every supported backend in registration order.
var Sources = []Source{SourceGoogle, SourceOutlook, SourceCalDAV}

func (s Source) String() string {
	return string(s)
}

// Valid reports whether s is one of the known backends.
func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// ParseSource parses a backend name case-insensitively.
func ParseSource(name string) (Source, error) {
	s := Source(strings.ToUpper(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown calendar source %q", name)
	}
	return s, nil
}

// Status is the union of the availability and lifecycle states the backends expose.
type Status string

const (
	StatusConfirmed        Status = "CONFIRMED"
	StatusTentative        Status = "TENTATIVE"
	StatusCancelled        Status = "CANCELLED"
	StatusFree             Status = "FREE"
	StatusBusy             Status = "BUSY"
	StatusOutOfOffice      Status = "OUT_OF_OFFICE"
	StatusWorkingElsewhere Status = "WORKING_ELSEWHERE"
	StatusUnknown          Status = "UNKNOWN"
)

var statuses = []Status{
	StatusConfirmed,
	StatusTentative,
	StatusCancelled,
	StatusFree,
	StatusBusy,
	StatusOutOfOffice,
	StatusWorkingElsewhere,
	StatusUnknown,
}

// Valid reports whether s is a known status. The empty status is valid and
// means "not specified".
func (s Status) Valid() bool {
	if s == "" {
		return true
	}
	for _, known := range statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus parses a status name case-insensitively. An empty name yields
// the empty status.
func ParseStatus(name string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown event status %q", name)
	}
	return s, nil
}

// Event is the canonical calendar event.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartTime   time.Time `json:"startTime,omitzero"`
	EndTime     time.Time `json:"endTime,omitzero"`
	AllDay      bool      `json:"allDay"`
	Status      Status    `json:"status,omitempty"`
	Source      Source    `json:"source,omitempty"`
}

// New builds a timed event and validates it.
func New(title string, start, end time.Time) (Event, error) {
	e := Event{Title: title, StartTime: start, EndTime: end}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// NewAllDay builds an all-day event spanning the dates of start up to, but not
// including, the date of end. A zero end means a single day.
func NewAllDay(title string, start, end time.Time) (Event, error) {
	e := Event{Title: title, StartTime: start, EndTime: end, AllDay: true}
	e.Normalize()
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Validate checks the structural invariants of the event.
func (e Event) Validate() error {
	if !e.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", e.Status)}
	}
	if e.Source != "" && !e.Source.Valid() {
		return &ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", e.Source)}
	}

	if e.AllDay {
		if e.StartTime.IsZero() {
			return &ValidationError{Field: "startTime", Reason: "all-day event requires a start date"}
		}
		if !e.EndTime.IsZero() && !DateOf(e.EndTime).After(DateOf(e.StartTime)) {
			return &ValidationError{Field: "endTime", Reason: "all-day end date must be after the start date"}
		}
		return nil
	}

	if e.StartTime.IsZero() {
		return &ValidationError{Field: "startTime", Reason: "start time is required"}
	}
	if e.EndTime.IsZero() {
		return &ValidationError{Field: "endTime", Reason: "end time is required"}
	}
	if e.StartTime.After(e.EndTime) {
		return &ValidationError{Field: "startTime", Reason: "start time is after end time"}
	}
	return nil
}

// Normalize brings all-day instants onto their UTC dates and fills in the
// exclusive end date of single-day events. Timed events are left untouched.
func (e *Event) Normalize() {
	if !e.AllDay || e.StartTime.IsZero() {
		return
	}
	e.StartTime = DateOf(e.StartTime)
	if e.EndTime.IsZero() {
		e.EndTime = e.StartTime.AddDate(0, 0, 1)
		return
	}
	e.EndTime = DateOf(e.EndTime)
}

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf returns midnight UTC of the calendar day t falls on in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// ValidationError reports a malformed canonical event.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event %s: %s", e.Field, e.Reason)
}
