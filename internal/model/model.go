package model

import "time"

// Kind tells which data source produced an occurrence.
type Kind string

const (
	KindEvent       Kind = "event"        // subscribed ICS calendar
	KindDailyStatus Kind = "daily_status" // personal health log entry
	KindTherapy     Kind = "therapy"      // medication reminder
)

// Occurrence represents a single concrete instance of an event
// (after recurrence expansion and timezone normalization). Every data
// source hands its entries to the layout pipeline in this shape.
type Occurrence struct {
	Kind     Kind
	SourceID string // calendar source ID
	UID      string // iCalendar UID, or a synthetic ID for diary entries

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string

	// Color is a CSS color; empty means the renderer's default.
	Color string

	AllDay bool

	// Start / End are in the configured display timezone. End is exclusive.
	Start time.Time
	End   time.Time
}

// Key returns an identifier that is unique across sources and instances.
func (o Occurrence) Key() string {
	return o.SourceID + "/" + o.UID + "@" + o.InstanceKey
}

// Overlaps reports whether the occurrence touches [from, to). Zero-length
// occurrences count when they sit inside the window.
func (o Occurrence) Overlaps(from, to time.Time) bool {
	if !o.Start.Before(to) {
		return false
	}
	if o.End.Equal(o.Start) {
		return !o.Start.Before(from)
	}
	return o.End.After(from)
}
