package aggregate

import (
	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/instrumentation"
)

// Result is the outcome of one operation against one backend.
type Result[T any] struct {
	Source event.Source
	Value  T
	Err    error
}

// OK reports whether the backend call succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Report holds the per-backend results of one engine request in registration
// order.
type Report[T any] struct {
	Operation string
	Results   []Result[T]
	// Unauthenticated is set when the user had no usable credential for any
	// configured backend and no backend was called.
	Unauthenticated bool
}

// Succeeded returns the successful results.
func (r Report[T]) Succeeded() []Result[T] {
	var out []Result[T]
	for _, res := range r.Results {
		if res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns the failed results.
func (r Report[T]) Failed() []Result[T] {
	var out []Result[T]
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Outcome classifies the report for metrics.
func (r Report[T]) Outcome() string {
	if r.Unauthenticated {
		return instrumentation.OutcomeUnauthenticated
	}
	failed := len(r.Failed())
	switch {
	case failed == 0:
		return instrumentation.OutcomeComplete
	case failed == len(r.Results):
		return instrumentation.OutcomeFailed
	default:
		return instrumentation.OutcomePartial
	}
}

// Events concatenates the events of every successful fetch, backends in
// registration order. The result is never nil.
func Events(r Report[[]event.Event]) []event.Event {
	out := []event.Event{}
	for _, res := range r.Results {
		if res.OK() {
			out = append(out, res.Value...)
		}
	}
	return out
}

// Accepted returns one event per backend that accepted a create or update.
// The result is never nil.
func Accepted(r Report[event.Event]) []event.Event {
	out := []event.Event{}
	for _, res := range r.Results {
		if res.OK() {
			out = append(out, res.Value)
		}
	}
	return out
}
