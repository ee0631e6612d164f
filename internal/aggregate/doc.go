// Package aggregate fans calendar operations out to every configured backend
// the user has authorized and merges the per-backend outcomes.
//
// A failing, slow or misbehaving backend never fails a request. Its error is
// logged, counted and traced, and the request completes with whatever the
// other backends returned. Callers only ever see an *event.ValidationError for
// malformed input or ErrNoConfiguredProviders when no backend is configured at
// all. The Report variants expose the per-backend outcomes for callers that
// want partial-failure visibility.
//
// Credentials are looked up per (user, backend) in a credential.Store before
// the fan-out starts. A user without any usable credential gets an empty
// result, not an error.
package aggregate
