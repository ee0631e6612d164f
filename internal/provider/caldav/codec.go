package caldav

import (
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/teemow/calbridge/internal/event"
	"github.com/teemow/calbridge/internal/provider"
)

const productID = "-//calbridge//EN"

// Codec maps canonical events to and from iCalendar objects holding one VEVENT.
type Codec struct {
	// Now stamps DTSTAMP. Nil means time.Now.
	Now func() time.Time
}

var _ provider.Codec[*ical.Calendar] = Codec{}

// Encode renders e as a VCALENDAR with a single VEVENT whose UID is e.ID.
func (c Codec) Encode(e event.Event) *ical.Calendar {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, e.ID)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now().UTC())
	if e.Title != "" {
		ve.Props.SetText(ical.PropSummary, e.Title)
	}
	if e.Description != "" {
		ve.Props.SetText(ical.PropDescription, e.Description)
	}
	if e.Location != "" {
		ve.Props.SetText(ical.PropLocation, e.Location)
	}
	if status, ok := encodeStatus(e.Status); ok {
		ve.Props.SetText(ical.PropStatus, string(status))
	}

	if e.AllDay {
		e.Normalize()
		if !e.StartTime.IsZero() {
			ve.Props.SetDate(ical.PropDateTimeStart, e.StartTime)
			ve.Props.SetDate(ical.PropDateTimeEnd, e.EndTime)
		}
	} else {
		if !e.StartTime.IsZero() {
			ve.Props.SetDateTime(ical.PropDateTimeStart, e.StartTime.UTC())
		}
		if !e.EndTime.IsZero() {
			ve.Props.SetDateTime(ical.PropDateTimeEnd, e.EndTime.UTC())
		}
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, ve)
	return cal
}

// Decode reads the master VEVENT of cal. Recurrence rules are ignored.
func (c Codec) Decode(cal *ical.Calendar) (event.Event, error) {
	ve := firstEvent(cal)
	if ve == nil {
		return event.Event{}, &provider.DecodeError{Provider: event.SourceCalDAV, Field: "component", Value: ical.CompEvent}
	}
	return decodeComponent(ve)
}

// Expand decodes cal into the events overlapping [start, end], ordered by
// start. A master VEVENT with an RRULE yields one event per occurrence in the
// window, honoring EXDATE; a VEVENT carrying a RECURRENCE-ID replaces the
// occurrence it names. All occurrences keep the master's UID.
func (c Codec) Expand(cal *ical.Calendar, start, end time.Time) ([]event.Event, error) {
	master := firstEvent(cal)
	if master == nil {
		return nil, &provider.DecodeError{Provider: event.SourceCalDAV, Field: "component", Value: ical.CompEvent}
	}
	base, err := decodeComponent(master)
	if err != nil {
		return nil, err
	}

	set, err := master.RecurrenceSet(time.UTC)
	if err != nil {
		return nil, &provider.DecodeError{Provider: event.SourceCalDAV, Field: ical.PropRecurrenceRule, Value: propValue(master, ical.PropRecurrenceRule), Err: err}
	}
	if set == nil {
		return []event.Event{base}, nil
	}

	overrides := make(map[int64]*ical.Component)
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent || child == master {
			continue
		}
		rid := child.Props.Get(ical.PropRecurrenceID)
		if rid == nil {
			continue
		}
		at, err := rid.DateTime(time.UTC)
		if err != nil {
			return nil, &provider.DecodeError{Provider: event.SourceCalDAV, Field: ical.PropRecurrenceID, Value: rid.Value, Err: err}
		}
		overrides[at.Unix()] = child
	}

	length := base.EndTime.Sub(base.StartTime)
	var out []event.Event
	for _, at := range set.Between(start.Add(-length), end, true) {
		if _, ok := overrides[at.Unix()]; ok {
			continue
		}
		occ := base
		occ.StartTime = at.UTC()
		occ.EndTime = occ.StartTime.Add(length)
		if overlaps(occ, start, end) {
			out = append(out, occ)
		}
	}
	for _, comp := range overrides {
		occ, err := decodeComponent(comp)
		if err != nil {
			return nil, err
		}
		occ.ID = base.ID
		if overlaps(occ, start, end) {
			out = append(out, occ)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func overlaps(e event.Event, start, end time.Time) bool {
	return !e.StartTime.After(end) && !e.EndTime.Before(start)
}

func decodeComponent(ve *ical.Component) (event.Event, error) {
	status, err := decodeStatus(ve)
	if err != nil {
		return event.Event{}, err
	}

	start, allDay, err := decodeTime(ve, ical.PropDateTimeStart)
	if err != nil {
		return event.Event{}, err
	}
	end, _, err := decodeTime(ve, ical.PropDateTimeEnd)
	if err != nil {
		return event.Event{}, err
	}
	if end.IsZero() && !start.IsZero() {
		if prop := ve.Props.Get(ical.PropDuration); prop != nil {
			d, err := prop.Duration()
			if err != nil {
				return event.Event{}, &provider.DecodeError{Provider: event.SourceCalDAV, Field: ical.PropDuration, Value: prop.Value, Err: err}
			}
			end = start.Add(d)
		}
	}

	out := event.Event{
		ID:          text(ve, ical.PropUID),
		Title:       text(ve, ical.PropSummary),
		Description: text(ve, ical.PropDescription),
		Location:    text(ve, ical.PropLocation),
		StartTime:   start,
		EndTime:     end,
		AllDay:      allDay,
		Status:      status,
		Source:      event.SourceCalDAV,
	}
	out.Normalize()
	return out, nil
}

// firstEvent returns the master VEVENT of cal: the first one without a
// RECURRENCE-ID, else the first VEVENT.
func firstEvent(cal *ical.Calendar) *ical.Component {
	if cal == nil || cal.Component == nil {
		return nil
	}
	var first *ical.Component
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		if child.Props.Get(ical.PropRecurrenceID) == nil {
			return child
		}
		if first == nil {
			first = child
		}
	}
	return first
}

func propValue(comp *ical.Component, name string) string {
	if prop := comp.Props.Get(name); prop != nil {
		return prop.Value
	}
	return ""
}

func text(comp *ical.Component, name string) string {
	v, err := comp.Props.Text(name)
	if err != nil {
		return ""
	}
	return v
}

func decodeTime(comp *ical.Component, name string) (time.Time, bool, error) {
	prop := comp.Props.Get(name)
	if prop == nil {
		return time.Time{}, false, nil
	}
	allDay := prop.ValueType() == ical.ValueDate
	t, err := prop.DateTime(time.UTC)
	if err != nil {
		return time.Time{}, false, &provider.DecodeError{Provider: event.SourceCalDAV, Field: name, Value: prop.Value, Err: err}
	}
	return t, allDay, nil
}

func encodeStatus(s event.Status) (ical.EventStatus, bool) {
	switch s {
	case event.StatusConfirmed:
		return ical.EventConfirmed, true
	case event.StatusTentative:
		return ical.EventTentative, true
	case event.StatusCancelled:
		return ical.EventCancelled, true
	default:
		return "", false
	}
}

func decodeStatus(comp *ical.Component) (event.Status, error) {
	prop := comp.Props.Get(ical.PropStatus)
	if prop == nil {
		return event.StatusUnknown, nil
	}
	switch ical.EventStatus(strings.ToUpper(prop.Value)) {
	case ical.EventConfirmed:
		return event.StatusConfirmed, nil
	case ical.EventTentative:
		return event.StatusTentative, nil
	case ical.EventCancelled:
		return event.StatusCancelled, nil
	default:
		return "", &provider.DecodeError{Provider: event.SourceCalDAV, Field: "status", Value: prop.Value}
	}
}
