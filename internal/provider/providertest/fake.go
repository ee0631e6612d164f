// Package providertest provides an in-memory provider.Adapter for tests.
package providertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teemow/calbridge/internal/credential"
	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/provider"
)

// Call records one invocation of a Fake.
type Call struct {
	Op      string
	Token   string
	EventID string
}

// Fake is a scriptable adapter. Zero values of the function fields fall back
// to returning Events (fetch) or echoing the input (create, update).
type Fake struct {
	Src        event.Source
	Configured bool
	Events     []event.Event

	// Err, when set, is returned by every operation.
	Err error
	// Delay blocks each call until it elapses or the context is done.
	Delay time.Duration

	mu    sync.Mutex
	calls []Call
}

// New returns a configured fake for source serving events.
func New(source event.Source, events ...event.Event) *Fake {
	return &Fake{Src: source, Configured: true, Events: events}
}

var _ provider.Adapter = (*Fake)(nil)

func (f *Fake) Source() event.Source { return f.Src }

func (f *Fake) IsConfigured() bool { return f.Configured }

// Calls returns the recorded invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) record(ctx context.Context, op string, cred credential.Credential, id string) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: op, Token: cred.AccessToken, EventID: id})
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return provider.NewError(f.Src, op, ctx.Err())
		}
	}
	if f.Err != nil {
		return provider.NewError(f.Src, op, f.Err)
	}
	return nil
}

func (f *Fake) Fetch(ctx context.Context, cred credential.Credential, start, end time.Time) ([]event.Event, error) {
	if err := f.record(ctx, provider.OpFetch, cred, ""); err != nil {
		return nil, err
	}
	out := make([]event.Event, len(f.Events))
	for i, e := range f.Events {
		e.Source = f.Src
		out[i] = e
	}
	return out, nil
}

func (f *Fake) Create(ctx context.Context, cred credential.Credential, e event.Event) (event.Event, error) {
	if err := f.record(ctx, provider.OpCreate, cred, e.ID); err != nil {
		return event.Event{}, err
	}
	e.ID = fmt.Sprintf("%s-%d", f.Src, len(f.Calls()))
	e.Source = f.Src
	return e, nil
}

func (f *Fake) Update(ctx context.Context, cred credential.Credential, e event.Event) (event.Event, error) {
	if e.ID == "" {
		return event.Event{}, provider.NewError(f.Src, provider.OpUpdate, provider.ErrMissingEventID)
	}
	if err := f.record(ctx, provider.OpUpdate, cred, e.ID); err != nil {
		return event.Event{}, err
	}
	e.Source = f.Src
	return e, nil
}

func (f *Fake) Delete(ctx context.Context, cred credential.Credential, eventID string) error {
	return f.record(ctx, provider.OpDelete, cred, eventID)
}
