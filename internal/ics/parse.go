package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "daylayout/internal/log"
)

// Event is one VEVENT before recurrence expansion.
type Event struct {
	Feed Feed

	UID      string
	Sequence int

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time

	// RecurrenceID is set on VEVENTs overriding one instance of a
	// recurring event.
	RecurrenceID *time.Time
}

// IsOverride reports whether the event replaces one recurrence instance.
func (e Event) IsOverride() bool {
	return e.RecurrenceID != nil
}

// Parse decodes an ICS payload. VEVENTs that cannot be decoded are logged
// and skipped.
func Parse(feed Feed, body []byte) ([]Event, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse feed %s: %w", feed.ID, err)
	}

	events := make([]Event, 0)
	for _, ve := range cal.Events() {
		ev, err := decodeVEvent(feed, ve)
		if err != nil {
			appLog.Warn("ics vevent skipped", "id", feed.ID, "reason", err)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", feed.ID, "event_count", len(events))
	return events, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

func propParam(p *ical.IANAProperty, name string) string {
	if p == nil || p.ICalParameters == nil {
		return ""
	}
	if vs := p.ICalParameters[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func decodeVEvent(feed Feed, ve *ical.VEvent) (Event, error) {
	ev := Event{Feed: feed}

	ev.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	if ev.UID == "" {
		return ev, errors.New("missing UID")
	}
	if n, err := strconv.Atoi(strings.TrimSpace(propValue(ve, ical.ComponentPropertySequence))); err == nil {
		ev.Sequence = n
	}
	ev.Summary = propValue(ve, ical.ComponentPropertySummary)
	ev.Description = propValue(ve, ical.ComponentPropertyDescription)
	ev.Location = propValue(ve, ical.ComponentPropertyLocation)

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, errors.New("missing DTSTART")
	}
	// VALUE=DATE, or a bare YYYYMMDD value, marks an all-day event.
	ev.AllDay = strings.EqualFold(propParam(dtStart, "VALUE"), "DATE") || !strings.Contains(dtStart.Value, "T")

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("DTSTART: %w", err)
	}
	ev.Start = start

	end, err := ve.GetEndAt()
	switch {
	case err == nil && !end.Before(start):
		ev.End = end
	case ev.AllDay:
		// RFC 5545: an all-day event without DTEND lasts one day.
		ev.End = start.AddDate(0, 0, 1)
	default:
		ev.End = start
	}

	ev.RRule = propValue(ve, ical.ComponentPropertyRrule)

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseTime(part, propParam(p, "TZID"), start.Location()); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); rid != nil {
		if t, err := parseTime(rid.Value, propParam(rid, "TZID"), start.Location()); err == nil {
			ev.RecurrenceID = &t
		}
	}

	return ev, nil
}

// parseTime parses DATE / DATE-TIME values of EXDATE and RECURRENCE-ID.
// Floating values are read in tzid when it names a known zone, otherwise in
// fallback (the zone of the event's DTSTART).
func parseTime(v, tzid string, fallback *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	loc := fallback
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	if loc == nil {
		loc = time.Local
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
