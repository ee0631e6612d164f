package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/calbridge/internal/credential"
	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/instrumentation"
	"github.com/teemow/calbridge/internal/logging"
	"github.com/teemow/calbridge/internal/provider"
)

// DefaultProviderTimeout bounds each backend call.
const DefaultProviderTimeout = 30 * time.Second

// ErrNoConfiguredProviders is returned when no registered backend has a
// complete static configuration.
var ErrNoConfiguredProviders = errors.New("no calendar providers configured")

// Engine runs calendar operations against all eligible backends concurrently.
type Engine struct {
	registry *provider.Registry
	store    credential.Store
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithProviderTimeout sets the per-backend call timeout. Non-positive values
// are ignored.
func WithProviderTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithAuditLogger enables the audit trail of create, update and delete calls.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(e *Engine) {
		e.audit = al
	}
}

// New creates an engine over the adapters of registry, reading credentials
// from store.
func New(registry *provider.Registry, store credential.Store, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		store:    store,
		timeout:  DefaultProviderTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ConfiguredProviders returns the names of all configured backends in
// registration order, regardless of any user's credentials.
func (e *Engine) ConfiguredProviders() []string {
	configured := e.registry.Configured()
	names := make([]string, len(configured))
	for i, a := range configured {
		names[i] = provider.Name(a)
	}
	return names
}

// StoreAuthorizedCredential records the credential a user granted for a
// backend. It is called by the authorization flow after every grant or refresh.
func (e *Engine) StoreAuthorizedCredential(userID string, backend event.Source, cred credential.Credential) {
	e.store.Store(userID, backend, cred)
}

// FetchAllEvents returns the events of every eligible backend overlapping
// [start, end], concatenated in registration order.
func (e *Engine) FetchAllEvents(ctx context.Context, userID string, start, end time.Time) ([]event.Event, error) {
	report, err := e.FetchAllEventsReport(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return Events(report), nil
}

// FetchAllEventsReport is FetchAllEvents with per-backend outcomes.
func (e *Engine) FetchAllEventsReport(ctx context.Context, userID string, start, end time.Time) (Report[[]event.Event], error) {
	if start.After(end) {
		return Report[[]event.Event]{}, &event.ValidationError{Field: "range", Reason: "start is after end"}
	}

	return run(ctx, e, provider.OpFetch, userID, "",
		func(ctx context.Context, a provider.Adapter, cred credential.Credential) ([]event.Event, error) {
			events, err := a.Fetch(ctx, cred, start, end)
			if err == nil {
				e.metrics.RecordEvents(ctx, provider.Name(a), len(events))
			}
			return events, err
		})
}

// CreateEvent creates ev on every eligible backend and returns one event per
// backend that accepted it.
func (e *Engine) CreateEvent(ctx context.Context, userID string, ev event.Event) ([]event.Event, error) {
	report, err := e.CreateEventReport(ctx, userID, ev)
	if err != nil {
		return nil, err
	}
	return Accepted(report), nil
}

// CreateEventReport is CreateEvent with per-backend outcomes.
func (e *Engine) CreateEventReport(ctx context.Context, userID string, ev event.Event) (Report[event.Event], error) {
	ev.Normalize()
	if err := ev.Validate(); err != nil {
		return Report[event.Event]{}, err
	}

	return run(ctx, e, provider.OpCreate, userID, "",
		func(ctx context.Context, a provider.Adapter, cred credential.Credential) (event.Event, error) {
			change := instrumentation.NewCalendarChange(ctx, provider.OpCreate, provider.Name(a), userID)
			out, err := a.Create(ctx, cred, ev)
			e.audit.LogChange(change.Complete(out.ID, err))
			return out, err
		})
}

// UpdateEvent applies ev to the event with id ev.ID on every eligible backend
// and returns one event per backend that accepted the update.
func (e *Engine) UpdateEvent(ctx context.Context, userID string, ev event.Event) ([]event.Event, error) {
	report, err := e.UpdateEventReport(ctx, userID, ev)
	if err != nil {
		return nil, err
	}
	return Accepted(report), nil
}

// UpdateEventReport is UpdateEvent with per-backend outcomes.
func (e *Engine) UpdateEventReport(ctx context.Context, userID string, ev event.Event) (Report[event.Event], error) {
	if ev.ID == "" {
		return Report[event.Event]{}, &event.ValidationError{Field: "id", Reason: "event id is required for update"}
	}
	ev.Normalize()
	if err := ev.Validate(); err != nil {
		return Report[event.Event]{}, err
	}

	return run(ctx, e, provider.OpUpdate, userID, ev.ID,
		func(ctx context.Context, a provider.Adapter, cred credential.Credential) (event.Event, error) {
			change := instrumentation.NewCalendarChange(ctx, provider.OpUpdate, provider.Name(a), userID)
			change.EventID = ev.ID
			out, err := a.Update(ctx, cred, ev)
			e.audit.LogChange(change.Complete(out.ID, err))
			return out, err
		})
}

// DeleteEvent deletes the event with eventID on every eligible backend.
// Backend ids are not shared, so the id is normally only known to one of
// them; the others report an error that is logged and dropped.
func (e *Engine) DeleteEvent(ctx context.Context, userID, eventID string) error {
	_, err := e.DeleteEventReport(ctx, userID, eventID)
	return err
}

// DeleteEventReport is DeleteEvent with per-backend outcomes.
func (e *Engine) DeleteEventReport(ctx context.Context, userID, eventID string) (Report[struct{}], error) {
	if eventID == "" {
		return Report[struct{}]{}, &event.ValidationError{Field: "id", Reason: "event id is required for delete"}
	}

	return run(ctx, e, provider.OpDelete, userID, eventID,
		func(ctx context.Context, a provider.Adapter, cred credential.Credential) (struct{}, error) {
			change := instrumentation.NewCalendarChange(ctx, provider.OpDelete, provider.Name(a), userID)
			change.EventID = eventID
			err := a.Delete(ctx, cred, eventID)
			e.audit.LogChange(change.Complete("", err))
			return struct{}{}, err
		})
}

// target is a backend the user holds a credential for.
type target struct {
	adapter provider.Adapter
	cred    credential.Credential
}

// targets snapshots the user's credentials for every configured backend.
func (e *Engine) targets(ctx context.Context, userID string) ([]target, error) {
	configured := e.registry.Configured()
	if len(configured) == 0 {
		return nil, ErrNoConfiguredProviders
	}

	out := make([]target, 0, len(configured))
	for _, a := range configured {
		cred, err := credential.Require(e.store, userID, a.Source())
		if err != nil {
			e.metrics.RecordCredentialLookup(ctx, provider.Name(a), instrumentation.LookupMiss)
			continue
		}
		e.metrics.RecordCredentialLookup(ctx, provider.Name(a), instrumentation.LookupHit)
		out = append(out, target{adapter: a, cred: cred})
	}
	return out, nil
}

type callFunc[T any] func(ctx context.Context, a provider.Adapter, cred credential.Credential) (T, error)

// run resolves the targets of userID, calls each concurrently under its own
// timeout and collects the results in registration order.
func run[T any](ctx context.Context, e *Engine, op, userID, eventID string, call callFunc[T]) (Report[T], error) {
	ctx, span := instrumentation.StartAggregationSpan(ctx, op, userID, eventID)

	logger := logging.WithOperation(e.logger, op).With(logging.UserHash(userID))
	report := Report[T]{Operation: op}

	targets, err := e.targets(ctx, userID)
	if err != nil {
		instrumentation.EndSpan(span, err)
		return report, err
	}
	if len(targets) == 0 {
		report.Unauthenticated = true
		logger.Info("no credentials for any configured provider, skipping", logging.Status(logging.StatusSkipped))
		e.metrics.RecordAggregation(ctx, op, report.Outcome(), userID)
		instrumentation.EndSpan(span, nil)
		return report, nil
	}

	report.Results = make([]Result[T], len(targets))
	var g errgroup.Group
	g.SetLimit(len(targets))
	for i, t := range targets {
		g.Go(func() error {
			report.Results[i] = invoke(ctx, e, logger, op, t, call)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := len(report.Succeeded())
	logger.Debug("aggregation finished",
		logging.Count(succeeded),
		slog.Int("failed", len(report.Results)-succeeded))
	e.metrics.RecordAggregation(ctx, op, report.Outcome(), userID)
	instrumentation.SetSpanCount(span, succeeded)
	instrumentation.EndSpan(span, nil)
	return report, nil
}

// invoke calls one backend. Errors are recorded and returned in the result,
// never propagated.
func invoke[T any](ctx context.Context, e *Engine, logger *slog.Logger, op string, t target, call callFunc[T]) Result[T] {
	source := t.adapter.Source()
	name := provider.Name(t.adapter)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	ctx, span := instrumentation.StartProviderSpan(ctx, name, op)

	start := time.Now()
	value, err := call(ctx, t.adapter, t.cred)
	duration := time.Since(start)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = instrumentation.StatusTimeout
			err = fmt.Errorf("timed out after %s: %w", e.timeout, err)
		}
		err = provider.NewError(source, op, err)

		logger.Warn("provider call failed",
			logging.Provider(name),
			logging.Duration(duration),
			logging.Status(status),
			logging.Err(err))
	} else {
		logger.Debug("provider call succeeded",
			logging.Provider(name),
			logging.Duration(duration))
	}

	e.metrics.RecordProviderOperation(ctx, name, op, status, duration)
	instrumentation.EndSpan(span, err)

	if err != nil {
		var zero T
		return Result[T]{Source: source, Value: zero, Err: err}
	}
	return Result[T]{Source: source, Value: value}
}
