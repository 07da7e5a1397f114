// Package layout assigns display columns to calendar events so that
// overlapping events sit side by side in a day or week view.
//
// Timed events and all-day events are laid out in two independent passes
// with separate column spaces. Within a pass, events are scanned in
// canonical order (see Compare) and each one takes the lowest free column
// of its overlap group. Every member of a group is told how wide the group
// got (MaxColumns) so a renderer can divide the available width evenly.
package layout

import "time"

const (
	// MinutesPerDay is the upper bound of StartMinute/EndMinute.
	MinutesPerDay = 24 * 60

	dayMillis = int64(24 * time.Hour / time.Millisecond)

	// julianEpochOffset is the Julian day number of 1970-01-01.
	julianEpochOffset = 2440588
)

// Event is the input record of the layout engine. The layout fields are
// StartDay..EndMillis and AllDay; the rest is payload carried through for
// renderers and never inspected by Compute except Title, which breaks
// ordering ties.
type Event struct {
	ID       string
	SourceID string
	Kind     string
	Title    string
	Location string
	Color    string

	AllDay bool

	// StartDay and EndDay are Julian day numbers in the display time zone.
	// EndDay is inclusive.
	StartDay int
	EndDay   int

	// StartMinute and EndMinute are minutes since midnight of StartDay and
	// EndDay respectively, in [0, MinutesPerDay].
	StartMinute int
	EndMinute   int

	// StartMillis and EndMillis are UTC milliseconds since the epoch.
	StartMillis int64
	EndMillis   int64
}

// FromTimes fills the layout fields of an Event from a start/end pair. The
// times are interpreted in their own location, which should be the display
// time zone. An end falling exactly on midnight is folded onto the previous
// day as minute 1440, so an event ending at 00:00 does not spill into the
// next day.
func FromTimes(start, end time.Time, allDay bool) Event {
	if end.Before(start) {
		end = start
	}

	ev := Event{
		AllDay:      allDay,
		StartDay:    JulianDay(start),
		StartMinute: start.Hour()*60 + start.Minute(),
		StartMillis: start.UnixMilli(),
		EndMillis:   end.UnixMilli(),
	}

	endDay := JulianDay(end)
	endMinute := end.Hour()*60 + end.Minute()
	if endMinute == 0 && end.Second() == 0 && end.Nanosecond() == 0 && endDay > ev.StartDay {
		endDay--
		endMinute = MinutesPerDay
	}
	ev.EndDay = endDay
	ev.EndMinute = endMinute

	return ev
}

// IsAllDay reports whether the event is laid out in the all-day pass. Events
// lasting at least 24 hours count even without the flag, which catches
// multi-day events synced from calendars that never set it.
func (e *Event) IsAllDay() bool {
	return e.AllDay || e.EndMillis-e.StartMillis >= dayMillis
}

// DurationMillis returns EndMillis-StartMillis.
func (e *Event) DurationMillis() int64 {
	return e.EndMillis - e.StartMillis
}

// Intersects reports whether the event overlaps the minute range
// [startMinute, endMinute] of julianDay.
//
// An event that ends exactly at startMinute does not intersect, except for
// zero-length events on a single day: those would otherwise never match any
// range at all.
func (e *Event) Intersects(julianDay, startMinute, endMinute int) bool {
	if e.EndDay < julianDay {
		return false
	}
	if e.StartDay > julianDay {
		return false
	}

	if e.EndDay == julianDay {
		if e.EndMinute < startMinute {
			return false
		}
		if e.EndMinute == startMinute && (e.StartMinute != e.EndMinute || e.StartDay != e.EndDay) {
			return false
		}
	}

	if e.StartDay == julianDay && e.StartMinute > endMinute {
		return false
	}

	return true
}

// JulianDay returns the Julian day number of t's calendar date in t's
// location.
func JulianDay(t time.Time) int {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(midnight.Unix()/86400) + julianEpochOffset
}

// DateOf returns midnight of the given Julian day in loc.
func DateOf(julianDay int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	utc := time.Unix(int64(julianDay-julianEpochOffset)*86400, 0).UTC()
	y, m, d := utc.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
