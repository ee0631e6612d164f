// Package outlook implements the Outlook calendar backend on top of the
// Microsoft Graph SDK.
package outlook

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/teemow/calbridge/internal/credential"
	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/logging"
	"github.com/teemow/calbridge/internal/provider"
)

// Config holds the static Outlook backend configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}

// Adapter talks to the Outlook calendar of the credential's owner.
type Adapter struct {
	cfg       Config
	codec     Codec
	newClient clientFactory
	logger    *slog.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates an Outlook adapter backed by Microsoft Graph.
func New(cfg Config, logger *slog.Logger) *Adapter {
	return newAdapter(cfg, newGraphClient, logger)
}

func newAdapter(cfg Config, factory clientFactory, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:       cfg,
		newClient: factory,
		logger:    logging.WithProvider(logger, event.SourceOutlook.String()),
	}
}

func (a *Adapter) Source() event.Source {
	return event.SourceOutlook
}

// IsConfigured reports whether client id, client secret and tenant id are set.
func (a *Adapter) IsConfigured() bool {
	return a.cfg.ClientID != "" && a.cfg.ClientSecret != "" && a.cfg.TenantID != ""
}

// Fetch returns the calendar view between start and end.
func (a *Adapter) Fetch(ctx context.Context, cred credential.Credential, start, end time.Time) ([]event.Event, error) {
	client, err := a.newClient(ctx, cred)
	if err != nil {
		return nil, provider.NewError(event.SourceOutlook, provider.OpFetch, err)
	}

	natives, err := client.CalendarView(ctx, start, end)
	if err != nil {
		return nil, provider.NewError(event.SourceOutlook, provider.OpFetch, fmt.Errorf("failed to list calendar view: %w", err))
	}

	out := make([]event.Event, 0, len(natives))
	for _, native := range natives {
		e, err := a.codec.Decode(native)
		if err != nil {
			return nil, provider.NewError(event.SourceOutlook, provider.OpFetch, err)
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})

	a.logger.Debug("listed events", logging.Count(len(out)))
	return out, nil
}

// Create posts a new event to the default calendar.
func (a *Adapter) Create(ctx context.Context, cred credential.Credential, e event.Event) (event.Event, error) {
	client, err := a.newClient(ctx, cred)
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceOutlook, provider.OpCreate, err)
	}

	created, err := client.Create(ctx, a.codec.Encode(e))
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceOutlook, provider.OpCreate, fmt.Errorf("failed to create event: %w", err))
	}

	out, err := a.codec.Decode(created)
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceOutlook, provider.OpCreate, err)
	}
	return out, nil
}

// Update patches the event identified by e.ID.
func (a *Adapter) Update(ctx context.Context, cred credential.Credential, e event.Event) (event.Event, error) {
	if e.ID == "" {
		return event.Event{}, provider.NewError(event.SourceOutlook, provider.OpUpdate, provider.ErrMissingEventID)
	}

	client, err := a.newClient(ctx, cred)
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceOutlook, provider.OpUpdate, err)
	}

	updated, err := client.Update(ctx, e.ID, a.codec.Encode(e))
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceOutlook, provider.OpUpdate, fmt.Errorf("failed to update event: %w", err))
	}

	out, err := a.codec.Decode(updated)
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceOutlook, provider.OpUpdate, err)
	}
	return out, nil
}

// Delete removes the event from the default calendar.
func (a *Adapter) Delete(ctx context.Context, cred credential.Credential, eventID string) error {
	if eventID == "" {
		return provider.NewError(event.SourceOutlook, provider.OpDelete, provider.ErrMissingEventID)
	}

	client, err := a.newClient(ctx, cred)
	if err != nil {
		return provider.NewError(event.SourceOutlook, provider.OpDelete, err)
	}

	if err := client.Delete(ctx, eventID); err != nil {
		return provider.NewError(event.SourceOutlook, provider.OpDelete, fmt.Errorf("failed to delete event: %w", err))
	}
	return nil
}
