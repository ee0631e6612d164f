package aggregate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calbridge/internal/credential"
	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/instrumentation"
	"github.com/teemow/calbridge/internal/provider"
	"github.com/teemow/calbridge/internal/provider/providertest"
)

const user = "jane@example.com"

var (
	windowStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
)

func timed(title string, hour int) event.Event {
	return event.Event{
		ID:        title,
		Title:     title,
		StartTime: time.Date(2025, 6, 2, hour, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 6, 2, hour+1, 0, 0, 0, time.UTC),
	}
}

type fixture struct {
	engine *Engine
	store  *credential.MemoryStore
	logs   *bytes.Buffer
}

func newFixture(t *testing.T, adapters []provider.Adapter, opts ...Option) fixture {
	t.Helper()
	registry, err := provider.NewRegistry(adapters...)
	require.NoError(t, err)

	store := credential.NewMemoryStore()
	t.Cleanup(store.Close)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts = append([]Option{WithLogger(logger)}, opts...)

	return fixture{engine: New(registry, store, opts...), store: store, logs: &logs}
}

func (f fixture) authorize(sources ...event.Source) {
	for _, s := range sources {
		f.engine.StoreAuthorizedCredential(user, s, credential.Credential{AccessToken: "token-" + s.String()})
	}
}

func sources(events []event.Event) []event.Source {
	out := make([]event.Source, len(events))
	for i, e := range events {
		out[i] = e.Source
	}
	return out
}

func TestFetchAllEvents_ConcatenatesAllProviders(t *testing.T) {
	google := providertest.New(event.SourceGoogle, timed("g1", 9), timed("g2", 11))
	outlook := providertest.New(event.SourceOutlook, timed("o1", 10))
	caldav := providertest.New(event.SourceCalDAV, timed("c1", 8), timed("c2", 12), timed("c3", 14))

	f := newFixture(t, []provider.Adapter{google, outlook, caldav})
	f.authorize(event.SourceGoogle, event.SourceOutlook, event.SourceCalDAV)

	got, err := f.engine.FetchAllEvents(context.Background(), user, windowStart, windowEnd)
	require.NoError(t, err)

	require.Len(t, got, 6)
	assert.Equal(t, []event.Source{
		event.SourceGoogle, event.SourceGoogle,
		event.SourceOutlook,
		event.SourceCalDAV, event.SourceCalDAV, event.SourceCalDAV,
	}, sources(got))
	assert.Equal(t, "g1", got[0].ID)
	assert.Equal(t, "c3", got[5].ID)

	assert.Equal(t, "token-GOOGLE", google.Calls()[0].Token)
	assert.Equal(t, "token-CALDAV", caldav.Calls()[0].Token)
}

func TestFetchAllEvents_IsolatesFailingProvider(t *testing.T) {
	google := providertest.New(event.SourceGoogle, timed("g1", 9))
	outlook := providertest.New(event.SourceOutlook, timed("o1", 10))
	outlook.Err = errors.New("503 service unavailable")
	caldav := providertest.New(event.SourceCalDAV, timed("c1", 8))

	f := newFixture(t, []provider.Adapter{google, outlook, caldav})
	f.authorize(event.SourceGoogle, event.SourceOutlook, event.SourceCalDAV)

	got, err := f.engine.FetchAllEvents(context.Background(), user, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, []event.Source{event.SourceGoogle, event.SourceCalDAV}, sources(got))

	assert.Contains(t, f.logs.String(), "provider call failed")
	assert.Contains(t, f.logs.String(), "provider=OUTLOOK")
}

func TestFetchAllEventsReport(t *testing.T) {
	google := providertest.New(event.SourceGoogle, timed("g1", 9))
	outlook := providertest.New(event.SourceOutlook)
	outlook.Err = errors.New("401 unauthorized")

	f := newFixture(t, []provider.Adapter{google, outlook})
	f.authorize(event.SourceGoogle, event.SourceOutlook)

	report, err := f.engine.FetchAllEventsReport(context.Background(), user, windowStart, windowEnd)
	require.NoError(t, err)

	assert.Equal(t, provider.OpFetch, report.Operation)
	assert.Equal(t, instrumentation.OutcomePartial, report.Outcome())
	require.Len(t, report.Succeeded(), 1)
	require.Len(t, report.Failed(), 1)

	failure := report.Failed()[0]
	assert.Equal(t, event.SourceOutlook, failure.Source)
	var perr *provider.Error
	require.ErrorAs(t, failure.Err, &perr)
	assert.Equal(t, event.SourceOutlook, perr.Provider)
	assert.Equal(t, provider.OpFetch, perr.Op)
}

func TestFetchAllEvents_TimeoutIsIsolated(t *testing.T) {
	slow := providertest.New(event.SourceGoogle, timed("slow", 9))
	slow.Delay = 5 * time.Second
	fast := providertest.New(event.SourceOutlook, timed("fast", 10))

	f := newFixture(t, []provider.Adapter{slow, fast}, WithProviderTimeout(50*time.Millisecond))
	f.authorize(event.SourceGoogle, event.SourceOutlook)

	began := time.Now()
	report, err := f.engine.FetchAllEventsReport(context.Background(), user, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Less(t, time.Since(began), 2*time.Second)

	assert.Equal(t, []event.Source{event.SourceOutlook}, sources(Events(report)))
	require.Len(t, report.Failed(), 1)
	assert.ErrorIs(t, report.Failed()[0].Err, context.DeadlineExceeded)
	assert.Contains(t, report.Failed()[0].Err.Error(), "timed out")
}

func TestFetchAllEvents_NoCredentials(t *testing.T) {
	google := providertest.New(event.SourceGoogle, timed("g1", 9))
	f := newFixture(t, []provider.Adapter{google})

	got, err := f.engine.FetchAllEvents(context.Background(), user, windowStart, windowEnd)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, google.Calls())

	report, err := f.engine.FetchAllEventsReport(context.Background(), user, windowStart, windowEnd)
	require.NoError(t, err)
	assert.True(t, report.Unauthenticated)
	assert.Equal(t, instrumentation.OutcomeUnauthenticated, report.Outcome())
}

func TestFetchAllEvents_OnlyAuthorizedProviders(t *testing.T) {
	google := providertest.New(event.SourceGoogle, timed("g1", 9))
	outlook := providertest.New(event.SourceOutlook, timed("o1", 10))

	f := newFixture(t, []provider.Adapter{google, outlook})
	f.authorize(event.SourceOutlook)

	got, err := f.engine.FetchAllEvents(context.Background(), user, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, []event.Source{event.SourceOutlook}, sources(got))
	assert.Empty(t, google.Calls())
}

func TestFetchAllEvents_ExpiredCredentialIsAbsent(t *testing.T) {
	google := providertest.New(event.SourceGoogle, timed("g1", 9))
	f := newFixture(t, []provider.Adapter{google})
	f.engine.StoreAuthorizedCredential(user, event.SourceGoogle, credential.Credential{
		AccessToken: "stale",
		Expiry:      time.Now().Add(-time.Minute),
	})

	got, err := f.engine.FetchAllEvents(context.Background(), user, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, google.Calls())
}

func TestFetchAllEvents_UnconfiguredProviderSkipped(t *testing.T) {
	google := providertest.New(event.SourceGoogle, timed("g1", 9))
	outlook := providertest.New(event.SourceOutlook, timed("o1", 10))
	outlook.Configured = false

	f := newFixture(t, []provider.Adapter{google, outlook})
	f.authorize(event.SourceGoogle, event.SourceOutlook)

	got, err := f.engine.FetchAllEvents(context.Background(), user, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, []event.Source{event.SourceGoogle}, sources(got))
	assert.Empty(t, outlook.Calls())
}

func TestFetchAllEvents_NoConfiguredProviders(t *testing.T) {
	google := providertest.New(event.SourceGoogle)
	google.Configured = false
	f := newFixture(t, []provider.Adapter{google})
	f.authorize(event.SourceGoogle)

	_, err := f.engine.FetchAllEvents(context.Background(), user, windowStart, windowEnd)
	assert.ErrorIs(t, err, ErrNoConfiguredProviders)
}

func TestFetchAllEvents_InvalidRange(t *testing.T) {
	google := providertest.New(event.SourceGoogle)
	f := newFixture(t, []provider.Adapter{google})
	f.authorize(event.SourceGoogle)

	_, err := f.engine.FetchAllEvents(context.Background(), user, windowEnd, windowStart)
	var verr *event.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, google.Calls())
}

func TestCreateEvent_OneOfTwoSucceeds(t *testing.T) {
	google := providertest.New(event.SourceGoogle)
	outlook := providertest.New(event.SourceOutlook)
	outlook.Err = errors.New("403 forbidden")

	f := newFixture(t, []provider.Adapter{google, outlook})
	f.authorize(event.SourceGoogle, event.SourceOutlook)

	in, err := event.New("Review", time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC), time.Date(2025, 6, 3, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	got, err := f.engine.CreateEvent(context.Background(), user, in)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, event.SourceGoogle, got[0].Source)
	assert.Equal(t, "Review", got[0].Title)
	assert.NotEmpty(t, got[0].ID)

	require.Len(t, outlook.Calls(), 1, "the failing provider was attempted")
}

func TestCreateEvent_ValidationBeforeFanOut(t *testing.T) {
	google := providertest.New(event.SourceGoogle)
	f := newFixture(t, []provider.Adapter{google})
	f.authorize(event.SourceGoogle)

	_, err := f.engine.CreateEvent(context.Background(), user, event.Event{
		Title:     "Backwards",
		StartTime: time.Date(2025, 6, 3, 15, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC),
	})
	var verr *event.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, google.Calls())
}

func TestCreateEvent_ValidationPrecedesConfiguration(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.CreateEvent(context.Background(), user, event.Event{Title: "no times"})
	var verr *event.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateEvent_NoCredentials(t *testing.T) {
	google := providertest.New(event.SourceGoogle)
	f := newFixture(t, []provider.Adapter{google})

	in, err := event.New("Review", time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC), time.Date(2025, 6, 3, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	got, err := f.engine.CreateEvent(context.Background(), user, in)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCreateEvent_AllDayIsNormalized(t *testing.T) {
	google := providertest.New(event.SourceGoogle)
	f := newFixture(t, []provider.Adapter{google})
	f.authorize(event.SourceGoogle)

	got, err := f.engine.CreateEvent(context.Background(), user, event.Event{
		Title:     "Offsite",
		AllDay:    true,
		StartTime: time.Date(2025, 6, 5, 13, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, event.Date(2025, 6, 5), got[0].StartTime)
	assert.Equal(t, event.Date(2025, 6, 6), got[0].EndTime)
}

func TestUpdateEvent(t *testing.T) {
	google := providertest.New(event.SourceGoogle)
	outlook := providertest.New(event.SourceOutlook)

	f := newFixture(t, []provider.Adapter{google, outlook})
	f.authorize(event.SourceGoogle, event.SourceOutlook)

	in := timed("standup", 9)
	got, err := f.engine.UpdateEvent(context.Background(), user, in)
	require.NoError(t, err)
	assert.Equal(t, []event.Source{event.SourceGoogle, event.SourceOutlook}, sources(got))
	assert.Equal(t, "standup", google.Calls()[0].EventID)
}

func TestUpdateEvent_RequiresID(t *testing.T) {
	google := providertest.New(event.SourceGoogle)
	f := newFixture(t, []provider.Adapter{google})
	f.authorize(event.SourceGoogle)

	in := timed("x", 9)
	in.ID = ""
	_, err := f.engine.UpdateEvent(context.Background(), user, in)
	var verr *event.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)
	assert.Empty(t, google.Calls())
}

func TestDeleteEvent_BestEffortAcrossProviders(t *testing.T) {
	google := providertest.New(event.SourceGoogle)
	outlook := providertest.New(event.SourceOutlook)
	outlook.Err = provider.ErrNotFound

	f := newFixture(t, []provider.Adapter{google, outlook})
	f.authorize(event.SourceGoogle, event.SourceOutlook)

	require.NoError(t, f.engine.DeleteEvent(context.Background(), user, "evt-42"))
	assert.Equal(t, "evt-42", google.Calls()[0].EventID)
	assert.Equal(t, "evt-42", outlook.Calls()[0].EventID)

	report, err := f.engine.DeleteEventReport(context.Background(), user, "evt-42")
	require.NoError(t, err)
	require.Len(t, report.Failed(), 1)
	assert.True(t, provider.IsNotFound(report.Failed()[0].Err))
}

func TestDeleteEvent_RequiresID(t *testing.T) {
	f := newFixture(t, []provider.Adapter{providertest.New(event.SourceGoogle)})

	var verr *event.ValidationError
	require.ErrorAs(t, f.engine.DeleteEvent(context.Background(), user, ""), &verr)
}

func TestDeleteEvent_NoCredentialsIsNoop(t *testing.T) {
	google := providertest.New(event.SourceGoogle)
	f := newFixture(t, []provider.Adapter{google})

	require.NoError(t, f.engine.DeleteEvent(context.Background(), user, "evt"))
	assert.Empty(t, google.Calls())
}

func TestConfiguredProviders(t *testing.T) {
	google := providertest.New(event.SourceGoogle)
	outlook := providertest.New(event.SourceOutlook)
	outlook.Configured = false
	caldav := providertest.New(event.SourceCalDAV)

	f := newFixture(t, []provider.Adapter{google, outlook, caldav})

	assert.Equal(t, []string{"GOOGLE", "CALDAV"}, f.engine.ConfiguredProviders())

	f.authorize(event.SourceOutlook)
	assert.Equal(t, []string{"GOOGLE", "CALDAV"}, f.engine.ConfiguredProviders(), "independent of credentials")
}

func TestCancelledRequestCancelsBranches(t *testing.T) {
	slow := providertest.New(event.SourceGoogle, timed("slow", 9))
	slow.Delay = 5 * time.Second

	f := newFixture(t, []provider.Adapter{slow})
	f.authorize(event.SourceGoogle)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.engine.FetchAllEventsReport(ctx, user, windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, report.Failed(), 1)
	assert.ErrorIs(t, report.Failed()[0].Err, context.Canceled)
}

func TestAuditTrail(t *testing.T) {
	google := providertest.New(event.SourceGoogle)
	var audit bytes.Buffer
	al := instrumentation.NewAuditLogger(slog.New(slog.NewTextHandler(&audit, nil)),
		instrumentation.AuditLoggingConfig{Enabled: true})

	f := newFixture(t, []provider.Adapter{google}, WithAuditLogger(al))
	f.authorize(event.SourceGoogle)

	require.NoError(t, f.engine.DeleteEvent(context.Background(), user, "evt-7"))
	assert.Contains(t, audit.String(), "calendar_change")
	assert.Contains(t, audit.String(), "event_id=evt-7")
	assert.NotContains(t, audit.String(), user)

	_, err := f.engine.FetchAllEvents(context.Background(), user, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(audit.Bytes(), []byte("calendar_change")), "reads are not audited")
}
