package outlook

import (
	"strconv"
	"time"

	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/provider"
)

// graphLayout is the wall clock format Graph uses in DateTimeTimeZone.
const graphLayout = "2006-01-02T15:04:05.0000000"

const utcZone = "UTC"

var graphParseLayouts = []string{
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Codec maps canonical events to and from Microsoft Graph events.
type Codec struct{}

var _ provider.Codec[models.Eventable] = Codec{}

// Encode converts a canonical event into a Graph event. Times are sent as UTC
// wall clock values.
func (Codec) Encode(e event.Event) models.Eventable {
	ev := models.NewEvent()
	if e.Title != "" {
		ev.SetSubject(ptr(e.Title))
	}
	if e.Description != "" {
		body := models.NewItemBody()
		body.SetContent(ptr(e.Description))
		body.SetContentType(ptr(models.TEXT_BODYTYPE))
		ev.SetBody(body)
	}
	if e.Location != "" {
		loc := models.NewLocation()
		loc.SetDisplayName(ptr(e.Location))
		ev.SetLocation(loc)
	}
	if showAs, ok := encodeShowAs(e.Status); ok {
		ev.SetShowAs(&showAs)
	}

	if e.AllDay {
		e.Normalize()
		ev.SetIsAllDay(ptr(true))
	}
	if !e.StartTime.IsZero() {
		ev.SetStart(dateTimeTimeZone(e.StartTime))
	}
	if !e.EndTime.IsZero() {
		ev.SetEnd(dateTimeTimeZone(e.EndTime))
	}
	return ev
}

func dateTimeTimeZone(t time.Time) models.DateTimeTimeZoneable {
	dt := models.NewDateTimeTimeZone()
	dt.SetDateTime(ptr(t.UTC().Format(graphLayout)))
	dt.SetTimeZone(ptr(utcZone))
	return dt
}

// Decode converts a Graph event into a canonical event.
func (Codec) Decode(ev models.Eventable) (event.Event, error) {
	if ev == nil {
		return event.Event{}, &provider.DecodeError{Provider: event.SourceOutlook, Field: "event", Value: "<nil>"}
	}

	status, err := decodeStatus(ev)
	if err != nil {
		return event.Event{}, err
	}

	start, err := parseDateTimeTimeZone("start", ev.GetStart())
	if err != nil {
		return event.Event{}, err
	}
	end, err := parseDateTimeTimeZone("end", ev.GetEnd())
	if err != nil {
		return event.Event{}, err
	}

	out := event.Event{
		ID:          deref(ev.GetId()),
		Title:       deref(ev.GetSubject()),
		Description: description(ev),
		StartTime:   start,
		EndTime:     end,
		AllDay:      deref(ev.GetIsAllDay()),
		Status:      status,
		Source:      event.SourceOutlook,
	}
	if loc := ev.GetLocation(); loc != nil {
		out.Location = deref(loc.GetDisplayName())
	}
	if out.AllDay {
		out.Normalize()
	}
	return out, nil
}

// description prefers the plain text body and falls back to the preview when
// the body is HTML.
func description(ev models.Eventable) string {
	if body := ev.GetBody(); body != nil && body.GetContent() != nil {
		ct := body.GetContentType()
		if ct == nil || *ct == models.TEXT_BODYTYPE {
			return *body.GetContent()
		}
	}
	return deref(ev.GetBodyPreview())
}

func parseDateTimeTimeZone(field string, dt models.DateTimeTimeZoneable) (time.Time, error) {
	if dt == nil || deref(dt.GetDateTime()) == "" {
		return time.Time{}, nil
	}
	raw := *dt.GetDateTime()

	loc := time.UTC
	if tz := deref(dt.GetTimeZone()); tz != "" && tz != utcZone {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, &provider.DecodeError{Provider: event.SourceOutlook, Field: field + ".timeZone", Value: tz, Err: err}
		}
		loc = l
	}

	var lastErr error
	for _, layout := range graphParseLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, &provider.DecodeError{Provider: event.SourceOutlook, Field: field, Value: raw, Err: lastErr}
}

func encodeShowAs(s event.Status) (models.FreeBusyStatus, bool) {
	switch s {
	case event.StatusFree:
		return models.FREE_FREEBUSYSTATUS, true
	case event.StatusTentative:
		return models.TENTATIVE_FREEBUSYSTATUS, true
	case event.StatusBusy, event.StatusConfirmed:
		return models.BUSY_FREEBUSYSTATUS, true
	case event.StatusOutOfOffice:
		return models.OOF_FREEBUSYSTATUS, true
	case event.StatusWorkingElsewhere:
		return models.WORKINGELSEWHERE_FREEBUSYSTATUS, true
	case event.StatusUnknown:
		return models.UNKNOWN_FREEBUSYSTATUS, true
	default:
		// Cancellation is not writable through showAs.
		return 0, false
	}
}

func decodeStatus(ev models.Eventable) (event.Status, error) {
	if deref(ev.GetIsCancelled()) {
		return event.StatusCancelled, nil
	}

	showAs := ev.GetShowAs()
	if showAs == nil {
		return event.StatusUnknown, nil
	}
	switch *showAs {
	case models.FREE_FREEBUSYSTATUS:
		return event.StatusFree, nil
	case models.TENTATIVE_FREEBUSYSTATUS:
		return event.StatusTentative, nil
	case models.BUSY_FREEBUSYSTATUS:
		return event.StatusBusy, nil
	case models.OOF_FREEBUSYSTATUS:
		return event.StatusOutOfOffice, nil
	case models.WORKINGELSEWHERE_FREEBUSYSTATUS:
		return event.StatusWorkingElsewhere, nil
	case models.UNKNOWN_FREEBUSYSTATUS:
		return event.StatusUnknown, nil
	default:
		return "", &provider.DecodeError{Provider: event.SourceOutlook, Field: "showAs", Value: strconv.Itoa(int(*showAs))}
	}
}

func ptr[T any](v T) *T {
	return &v
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
