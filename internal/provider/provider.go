package provider

import (
	"context"
	"time"

	"github.com/teemow/calbridge/internal/credential"
	"github.com/teemow/calbridge/internal/event"
)

// Operation names used for errors, logs and metrics.
const (
	OpFetch  = "fetch"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// DefaultCalendarID is the calendar every adapter reads from and writes to.
const DefaultCalendarID = "primary"

// Adapter performs calendar operations against one backend on behalf of a
// user whose credential is passed per call.
type Adapter interface {
	// Source identifies the backend.
	Source() event.Source

	// IsConfigured reports whether the static backend configuration is complete.
	IsConfigured() bool

	// Fetch returns the events of the default calendar overlapping [start, end],
	// ordered by start time ascending.
	Fetch(ctx context.Context, cred credential.Credential, start, end time.Time) ([]event.Event, error)

	// Create submits a new event and returns the backend's copy.
	Create(ctx context.Context, cred credential.Credential, e event.Event) (event.Event, error)

	// Update modifies the event identified by e.ID and returns the backend's copy.
	Update(ctx context.Context, cred credential.Credential, e event.Event) (event.Event, error)

	// Delete removes the event with the given backend id.
	Delete(ctx context.Context, cred credential.Credential, eventID string) error
}

// Codec translates between canonical events and one backend's native type N.
type Codec[N any] interface {
	Encode(e event.Event) N
	Decode(native N) (event.Event, error)
}

// Name returns the display name of an adapter.
func Name(a Adapter) string {
	return a.Source().String()
}
