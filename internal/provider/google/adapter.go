// Package google implements the Google Calendar backend on top of the
// Calendar API v3 client.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/calbridge/internal/credential"
	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/logging"
	"github.com/teemow/calbridge/internal/provider"
)

// DefaultMaxRetries is the retry budget for rate limited calls used by the
// configuration loader when GOOGLE_MAX_RETRIES is unset.
const DefaultMaxRetries = 3

const defaultRetryBackoff = time.Second

// Config holds the static Google backend configuration.
type Config struct {
	ClientID        string
	ClientSecret    string
	ApplicationName string

	// CalendarID defaults to the user's primary calendar.
	CalendarID string
	// Endpoint overrides the API base URL.
	Endpoint string
	// TimeZone is the IANA zone used to render timed events. Empty means UTC.
	TimeZone string

	// MaxRetries bounds retries of rate limited calls. Zero disables them.
	MaxRetries   int
	RetryBackoff time.Duration

	// HTTPClient is the base client the bearer transport wraps.
	HTTPClient *http.Client
}

// Adapter talks to Google Calendar.
type Adapter struct {
	cfg    Config
	codec  Codec
	logger *slog.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates a Google adapter.
func New(cfg Config, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = provider.DefaultCalendarID
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}

	codec := Codec{}
	if cfg.TimeZone != "" {
		loc, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("invalid google time zone %q: %w", cfg.TimeZone, err)
		}
		codec.Location = loc
	}

	return &Adapter{
		cfg:    cfg,
		codec:  codec,
		logger: logging.WithProvider(logger, event.SourceGoogle.String()),
	}, nil
}

func (a *Adapter) Source() event.Source {
	return event.SourceGoogle
}

// IsConfigured reports whether client id, client secret and application name are set.
func (a *Adapter) IsConfigured() bool {
	return a.cfg.ClientID != "" && a.cfg.ClientSecret != "" && a.cfg.ApplicationName != ""
}

func (a *Adapter) service(ctx context.Context, cred credential.Credential) (*calendar.Service, error) {
	if a.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.cfg.HTTPClient)
	}
	client := oauth2.NewClient(ctx, cred.TokenSource())

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if a.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.cfg.Endpoint))
	}
	if a.cfg.ApplicationName != "" {
		opts = append(opts, option.WithUserAgent(a.cfg.ApplicationName))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

// Fetch lists single events of the calendar between start and end, following all pages.
func (a *Adapter) Fetch(ctx context.Context, cred credential.Credential, start, end time.Time) ([]event.Event, error) {
	svc, err := a.service(ctx, cred)
	if err != nil {
		return nil, a.wrap(provider.OpFetch, err)
	}

	call := svc.Events.List(a.cfg.CalendarID).
		Context(ctx).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")

	var (
		out       []event.Event
		pageToken string
	)
	for {
		page, err := retry(ctx, a, func() (*calendar.Events, error) {
			return call.PageToken(pageToken).Do()
		})
		if err != nil {
			return nil, a.wrap(provider.OpFetch, fmt.Errorf("failed to list events: %w", err))
		}

		for _, item := range page.Items {
			e, err := a.codec.Decode(item)
			if err != nil {
				return nil, a.wrap(provider.OpFetch, err)
			}
			out = append(out, e)
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	a.logger.Debug("listed events", logging.Count(len(out)))
	return out, nil
}

// Create inserts the event into the calendar.
func (a *Adapter) Create(ctx context.Context, cred credential.Credential, e event.Event) (event.Event, error) {
	svc, err := a.service(ctx, cred)
	if err != nil {
		return event.Event{}, a.wrap(provider.OpCreate, err)
	}

	native := a.codec.Encode(e)
	native.Id = ""

	created, err := retry(ctx, a, func() (*calendar.Event, error) {
		return svc.Events.Insert(a.cfg.CalendarID, native).Context(ctx).Do()
	})
	if err != nil {
		return event.Event{}, a.wrap(provider.OpCreate, fmt.Errorf("failed to create event: %w", err))
	}

	out, err := a.codec.Decode(created)
	if err != nil {
		return event.Event{}, a.wrap(provider.OpCreate, err)
	}
	return out, nil
}

// Update patches the event identified by e.ID.
func (a *Adapter) Update(ctx context.Context, cred credential.Credential, e event.Event) (event.Event, error) {
	if e.ID == "" {
		return event.Event{}, a.wrap(provider.OpUpdate, provider.ErrMissingEventID)
	}

	svc, err := a.service(ctx, cred)
	if err != nil {
		return event.Event{}, a.wrap(provider.OpUpdate, err)
	}

	native := a.codec.Encode(e)
	updated, err := retry(ctx, a, func() (*calendar.Event, error) {
		return svc.Events.Patch(a.cfg.CalendarID, e.ID, native).Context(ctx).Do()
	})
	if err != nil {
		return event.Event{}, a.wrap(provider.OpUpdate, fmt.Errorf("failed to update event: %w", err))
	}

	out, err := a.codec.Decode(updated)
	if err != nil {
		return event.Event{}, a.wrap(provider.OpUpdate, err)
	}
	return out, nil
}

// Delete removes the event. Events Google already marked deleted count as success.
func (a *Adapter) Delete(ctx context.Context, cred credential.Credential, eventID string) error {
	if eventID == "" {
		return a.wrap(provider.OpDelete, provider.ErrMissingEventID)
	}

	svc, err := a.service(ctx, cred)
	if err != nil {
		return a.wrap(provider.OpDelete, err)
	}

	_, err = retry(ctx, a, func() (struct{}, error) {
		return struct{}{}, svc.Events.Delete(a.cfg.CalendarID, eventID).Context(ctx).Do()
	})
	if err != nil && !alreadyDeleted(err) {
		return a.wrap(provider.OpDelete, fmt.Errorf("failed to delete event: %w", err))
	}
	return nil
}

func (a *Adapter) wrap(op string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusNotFound {
		err = fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	}
	return provider.NewError(event.SourceGoogle, op, err)
}

// retry runs fn until it succeeds, fails with a non rate limit error or the
// retry budget is spent.
func retry[T any](ctx context.Context, a *Adapter, fn func() (T, error)) (T, error) {
	backoff := a.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil || !shouldRetry(err) || attempt >= a.cfg.MaxRetries {
			return v, err
		}

		a.logger.Debug("rate limited, retrying", slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func shouldRetry(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		return true
	}
	return errIsReason(err, "rateLimitExceeded") || errIsReason(err, "userRateLimitExceeded")
}

func alreadyDeleted(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusGone {
		return true
	}
	return errIsReason(err, "deleted")
}

func errIsReason(err error, reason string) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}
	for _, item := range gErr.Errors {
		if item.Reason == reason {
			return true
		}
	}
	return false
}
