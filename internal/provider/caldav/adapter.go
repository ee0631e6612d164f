// Package caldav implements the CalDAV calendar backend on top of go-webdav.
//
// Each event is stored as its own calendar object named <id>.ics below the
// calendar collection. The calendar collection is either configured directly
// or discovered by name from the user's calendar home set.
package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/teemow/calbridge/internal/credential"
	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/logging"
	"github.com/teemow/calbridge/internal/provider"
)

const objectExt = ".ics"

// ErrInvalidEventID is returned for ids that cannot name an object inside the
// calendar collection.
var ErrInvalidEventID = errors.New("invalid caldav event id")

// Config holds the static CalDAV backend configuration.
type Config struct {
	// Endpoint is the server root, e.g. https://caldav.example.com/.
	Endpoint string
	// CalendarPath is the calendar collection path. When empty the collection
	// named CalendarName is discovered per user.
	CalendarPath string
	CalendarName string

	// HTTPClient is the base client the bearer transport wraps.
	HTTPClient *http.Client
}

// calendarClient is the subset of *caldav.Client the adapter uses.
type calendarClient interface {
	FindCurrentUserPrincipal(ctx context.Context) (string, error)
	FindCalendarHomeSet(ctx context.Context, principal string) (string, error)
	FindCalendars(ctx context.Context, calendarHomeSet string) ([]caldav.Calendar, error)
	QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
	GetCalendarObject(ctx context.Context, path string) (*caldav.CalendarObject, error)
	PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error)
	RemoveAll(ctx context.Context, name string) error
}

var _ calendarClient = (*caldav.Client)(nil)

type clientFactory func(ctx context.Context, cred credential.Credential) (calendarClient, error)

// Adapter talks to a CalDAV server on behalf of the credential's owner.
type Adapter struct {
	cfg       Config
	codec     Codec
	newClient clientFactory
	newUID    func() string
	logger    *slog.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates a CalDAV adapter using bearer authentication.
func New(cfg Config, logger *slog.Logger) *Adapter {
	a := newAdapter(cfg, nil, logger)
	a.newClient = a.dial
	return a
}

func newAdapter(cfg Config, factory clientFactory, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:       cfg,
		newClient: factory,
		newUID:    func() string { return uuid.New().String() },
		logger:    logging.WithProvider(logger, event.SourceCalDAV.String()),
	}
}

func (a *Adapter) dial(ctx context.Context, cred credential.Credential) (calendarClient, error) {
	base := a.cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: cred.TokenSource(), Base: base.Transport},
		Timeout:   base.Timeout,
	}

	client, err := caldav.NewClient(httpClient, a.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	return client, nil
}

func (a *Adapter) Source() event.Source {
	return event.SourceCalDAV
}

// IsConfigured reports whether the endpoint and a calendar path or name are set.
func (a *Adapter) IsConfigured() bool {
	return a.cfg.Endpoint != "" && (a.cfg.CalendarPath != "" || a.cfg.CalendarName != "")
}

// connect returns a client and the calendar collection path for the credential's owner.
func (a *Adapter) connect(ctx context.Context, cred credential.Credential) (calendarClient, string, error) {
	client, err := a.newClient(ctx, cred)
	if err != nil {
		return nil, "", err
	}
	if a.cfg.CalendarPath != "" {
		return client, a.cfg.CalendarPath, nil
	}

	calPath, err := a.findCalendar(ctx, client)
	if err != nil {
		return nil, "", err
	}
	return client, calPath, nil
}

// findCalendar discovers the calendar named CalendarName in the user's home set.
func (a *Adapter) findCalendar(ctx context.Context, client calendarClient) (string, error) {
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}
	calendars, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == a.cfg.CalendarName {
			a.logger.Debug("discovered calendar", slog.String("path", cal.Path))
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name %q", a.cfg.CalendarName)
}

// objectPath returns the path of the object named id inside calPath. Ids that
// would address anything outside the collection are rejected.
func objectPath(calPath, id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	dir := path.Clean(calPath)
	p := path.Join(dir, id+objectExt)
	if path.Dir(p) != dir {
		return "", fmt.Errorf("%w: %q", ErrInvalidEventID, id)
	}
	return p, nil
}

func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidEventID, id)
	}
	return nil
}

func idFromPath(p string) string {
	return strings.TrimSuffix(path.Base(p), objectExt)
}

// decodeObject decodes a calendar object. The canonical id is the object name,
// which addresses the object even when another client chose a different UID.
func (a *Adapter) decodeObject(obj *caldav.CalendarObject) (event.Event, error) {
	e, err := a.codec.Decode(obj.Data)
	if err != nil {
		return event.Event{}, err
	}
	if obj.Path != "" {
		e.ID = idFromPath(obj.Path)
	}
	return e, nil
}

// Fetch runs a time-range calendar-query for VEVENTs overlapping [start, end].
// Recurring series are expanded locally into their occurrences in the window;
// every occurrence carries the id of the series object.
func (a *Adapter) Fetch(ctx context.Context, cred credential.Credential, start, end time.Time) ([]event.Event, error) {
	client, calPath, err := a.connect(ctx, cred)
	if err != nil {
		return nil, provider.NewError(event.SourceCalDAV, provider.OpFetch, err)
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start.UTC(),
				End:   end.UTC(),
			}},
		},
	}

	objects, err := client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return nil, provider.NewError(event.SourceCalDAV, provider.OpFetch, fmt.Errorf("failed to query calendar: %w", err))
	}

	out := make([]event.Event, 0, len(objects))
	for _, obj := range objects {
		events, err := a.codec.Expand(obj.Data, start, end)
		if err != nil {
			return nil, provider.NewError(event.SourceCalDAV, provider.OpFetch, err)
		}
		for _, e := range events {
			if obj.Path != "" {
				e.ID = idFromPath(obj.Path)
			}
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})

	a.logger.Debug("listed events", logging.Count(len(out)))
	return out, nil
}

// Create stores the event as a new calendar object with a generated UID.
func (a *Adapter) Create(ctx context.Context, cred credential.Credential, e event.Event) (event.Event, error) {
	client, calPath, err := a.connect(ctx, cred)
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceCalDAV, provider.OpCreate, err)
	}

	e.ID = a.newUID()
	objPath, err := objectPath(calPath, e.ID)
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceCalDAV, provider.OpCreate, err)
	}
	out, err := a.put(ctx, client, objPath, a.codec.Encode(e))
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceCalDAV, provider.OpCreate, err)
	}
	return out, nil
}

// Update replaces the calendar object named e.ID, keeping its UID.
func (a *Adapter) Update(ctx context.Context, cred credential.Credential, e event.Event) (event.Event, error) {
	if e.ID == "" {
		return event.Event{}, provider.NewError(event.SourceCalDAV, provider.OpUpdate, provider.ErrMissingEventID)
	}
	if err := checkID(e.ID); err != nil {
		return event.Event{}, provider.NewError(event.SourceCalDAV, provider.OpUpdate, err)
	}

	client, calPath, err := a.connect(ctx, cred)
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceCalDAV, provider.OpUpdate, err)
	}

	objPath, err := objectPath(calPath, e.ID)
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceCalDAV, provider.OpUpdate, err)
	}
	existing, err := client.GetCalendarObject(ctx, objPath)
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceCalDAV, provider.OpUpdate, fmt.Errorf("failed to get event: %w", err))
	}

	native := e
	if ve := firstEvent(existing.Data); ve != nil {
		if uid := text(ve, ical.PropUID); uid != "" {
			native.ID = uid
		}
	}

	out, err := a.put(ctx, client, objPath, a.codec.Encode(native))
	if err != nil {
		return event.Event{}, provider.NewError(event.SourceCalDAV, provider.OpUpdate, err)
	}
	return out, nil
}

func (a *Adapter) put(ctx context.Context, client calendarClient, objPath string, cal *ical.Calendar) (event.Event, error) {
	if _, err := client.PutCalendarObject(ctx, objPath, cal); err != nil {
		return event.Event{}, fmt.Errorf("failed to put event: %w", err)
	}

	stored, err := client.GetCalendarObject(ctx, objPath)
	if err != nil {
		return event.Event{}, fmt.Errorf("failed to read back event: %w", err)
	}
	return a.decodeObject(stored)
}

// Delete removes the calendar object named eventID.
func (a *Adapter) Delete(ctx context.Context, cred credential.Credential, eventID string) error {
	if eventID == "" {
		return provider.NewError(event.SourceCalDAV, provider.OpDelete, provider.ErrMissingEventID)
	}
	if err := checkID(eventID); err != nil {
		return provider.NewError(event.SourceCalDAV, provider.OpDelete, err)
	}

	client, calPath, err := a.connect(ctx, cred)
	if err != nil {
		return provider.NewError(event.SourceCalDAV, provider.OpDelete, err)
	}

	objPath, err := objectPath(calPath, eventID)
	if err != nil {
		return provider.NewError(event.SourceCalDAV, provider.OpDelete, err)
	}
	if err := client.RemoveAll(ctx, objPath); err != nil {
		return provider.NewError(event.SourceCalDAV, provider.OpDelete, fmt.Errorf("failed to delete event: %w", err))
	}
	return nil
}
