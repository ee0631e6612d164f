// Package event defines the canonical calendar event shared by every backend.
//
// An Event is independent of any backend wire format. Backend codecs in
// internal/provider translate it to and from the native shapes of Google
// Calendar, Microsoft Graph and CalDAV servers.
//
// All-day events carry dates rather than instants: StartTime is the first day
// at 00:00 UTC and EndTime the exclusive end day at 00:00 UTC. A zero EndTime
// on an all-day event means a single day.
package event
