package google

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/provider"
)

const dateLayout = "2006-01-02"

// Google event status values.
const (
	statusConfirmed = "confirmed"
	statusTentative = "tentative"
	statusCancelled = "cancelled"
)

// Codec maps canonical events to and from Calendar API v3 events.
type Codec struct {
	// Location is used to render timed events. Nil means UTC.
	Location *time.Location
}

var _ provider.Codec[*calendar.Event] = Codec{}

// Encode converts a canonical event into a Calendar API event.
func (c Codec) Encode(e event.Event) *calendar.Event {
	ge := &calendar.Event{
		Id:          e.ID,
		Summary:     e.Title,
		Description: e.Description,
		Location:    e.Location,
		Status:      encodeStatus(e.Status),
	}

	if e.AllDay {
		e.Normalize()
		if !e.StartTime.IsZero() {
			ge.Start = &calendar.EventDateTime{Date: e.StartTime.Format(dateLayout)}
			ge.End = &calendar.EventDateTime{Date: e.EndTime.Format(dateLayout)}
		}
		return ge
	}

	if !e.StartTime.IsZero() {
		ge.Start = c.dateTime(e.StartTime)
	}
	if !e.EndTime.IsZero() {
		ge.End = c.dateTime(e.EndTime)
	}
	return ge
}

func (c Codec) dateTime(t time.Time) *calendar.EventDateTime {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return &calendar.EventDateTime{
		DateTime: t.In(loc).Format(time.RFC3339),
		TimeZone: loc.String(),
	}
}

// Decode converts a Calendar API event into a canonical event.
func (c Codec) Decode(ge *calendar.Event) (event.Event, error) {
	if ge == nil {
		return event.Event{}, &provider.DecodeError{Provider: event.SourceGoogle, Field: "event", Value: "<nil>"}
	}

	status, err := decodeStatus(ge.Status)
	if err != nil {
		return event.Event{}, err
	}

	start, allDay, err := decodeDateTime("start", ge.Start)
	if err != nil {
		return event.Event{}, err
	}
	end, _, err := decodeDateTime("end", ge.End)
	if err != nil {
		return event.Event{}, err
	}

	return event.Event{
		ID:          ge.Id,
		Title:       ge.Summary,
		Description: ge.Description,
		Location:    ge.Location,
		StartTime:   start,
		EndTime:     end,
		AllDay:      allDay,
		Status:      status,
		Source:      event.SourceGoogle,
	}, nil
}

func decodeDateTime(field string, edt *calendar.EventDateTime) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, nil
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false, &provider.DecodeError{Provider: event.SourceGoogle, Field: field, Value: edt.DateTime, Err: err}
		}
		return t, false, nil
	}
	if edt.Date != "" {
		t, err := time.Parse(dateLayout, edt.Date)
		if err != nil {
			return time.Time{}, false, &provider.DecodeError{Provider: event.SourceGoogle, Field: field, Value: edt.Date, Err: err}
		}
		return t, true, nil
	}
	return time.Time{}, false, nil
}

func encodeStatus(s event.Status) string {
	switch s {
	case event.StatusConfirmed:
		return statusConfirmed
	case event.StatusTentative:
		return statusTentative
	case event.StatusCancelled:
		return statusCancelled
	default:
		// Availability states have no Google equivalent.
		return ""
	}
}

func decodeStatus(s string) (event.Status, error) {
	switch s {
	case "":
		return event.StatusUnknown, nil
	case statusConfirmed:
		return event.StatusConfirmed, nil
	case statusTentative:
		return event.StatusTentative, nil
	case statusCancelled:
		return event.StatusCancelled, nil
	default:
		return "", &provider.DecodeError{Provider: event.SourceGoogle, Field: "status", Value: s}
	}
}
