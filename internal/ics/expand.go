package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "daylayout/internal/log"
	"daylayout/internal/model"
)

const defaultMaxOccurrences = 5000

// Window selects which occurrences Expand produces.
type Window struct {
	// Location is the display zone of the produced occurrences. Nil means
	// time.Local.
	Location *time.Location

	// From / To bound the occurrences; both ends are inclusive so that an
	// instance starting exactly at To is kept (Expand callers clip later).
	From time.Time
	To   time.Time

	// MaxPerEvent caps the instances of one recurring event. Zero means
	// 5000.
	MaxPerEvent int
}

// Expansion is the outcome of Expand.
type Expansion struct {
	Occurrences []model.Occurrence
	// Truncated lists UIDs that hit MaxPerEvent.
	Truncated []string
}

// Expand turns parsed events into concrete occurrences within w:
// single events, RRULE recurrences with EXDATE removal, and
// RECURRENCE-ID overrides replacing individual instances.
func Expand(events []Event, w Window) (Expansion, error) {
	var out Expansion

	if w.To.Before(w.From) {
		return out, errors.New("ics: window ends before it starts")
	}
	if w.Location == nil {
		w.Location = time.Local
	}
	if w.MaxPerEvent <= 0 {
		w.MaxPerEvent = defaultMaxOccurrences
	}

	masters := make(map[string][]Event)
	overrides := make(map[string][]Event)
	var uids []string
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := masters[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		masters[ev.UID] = append(masters[ev.UID], ev)
	}

	for _, uid := range uids {
		for _, ev := range masters[uid] {
			occs, capped := expandOne(ev, overrides[uid], w)
			out.Occurrences = append(out.Occurrences, occs...)
			if capped {
				out.Truncated = append(out.Truncated, uid)
				appLog.Warn("ics expansion truncated", "uid", uid, "cap", w.MaxPerEvent)
			}
		}
	}

	return out, nil
}

func expandOne(ev Event, overrides []Event, w Window) ([]model.Occurrence, bool) {
	if ev.RRule == "" {
		if !spansOverlap(ev.Start, ev.End, w.From, w.To) {
			return nil, false
		}
		return []model.Occurrence{instance(ev, ev.Start, overrides, w.Location)}, false
	}

	starts, capped, err := recurrenceStarts(ev, w)
	if err != nil {
		appLog.Error("ics rrule rejected", err, "uid", ev.UID, "rrule", ev.RRule)
		return nil, false
	}

	out := make([]model.Occurrence, 0, len(starts))
	for _, s := range starts {
		out = append(out, instance(ev, s, overrides, w.Location))
	}
	return out, capped
}

func recurrenceStarts(ev Event, w Window) ([]time.Time, bool, error) {
	rule, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, false, fmt.Errorf("parse RRULE: %w", err)
	}
	rule.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Instances that started before From but are still running count too.
	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	starts := set.Between(w.From.Add(-dur).In(loc), w.To.In(loc), true)

	kept := starts[:0]
	for _, s := range starts {
		if spansOverlap(s, s.Add(dur), w.From, w.To) {
			kept = append(kept, s)
		}
	}

	if len(kept) > w.MaxPerEvent {
		return kept[:w.MaxPerEvent], true, nil
	}
	return kept, false, nil
}

// instance builds the occurrence starting at start, honoring an override
// whose RECURRENCE-ID matches it.
func instance(ev Event, start time.Time, overrides []Event, loc *time.Location) model.Occurrence {
	end := start.Add(ev.End.Sub(ev.Start))
	if ev.AllDay {
		// Whole calendar days in the event's zone, DST or not.
		days := int(ev.End.Sub(ev.Start).Hours()+12) / 24
		if days < 1 {
			days = 1
		}
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
		end = start.AddDate(0, 0, days)
	}

	src := ev
	for _, ov := range overrides {
		if ov.RecurrenceID != nil && ov.RecurrenceID.Equal(start) {
			src, start, end = ov, ov.Start, ov.End
			break
		}
	}

	return toOccurrence(src, start, end, loc)
}

func toOccurrence(ev Event, start, end time.Time, loc *time.Location) model.Occurrence {
	if ev.AllDay {
		// All-day events keep their calendar dates; converting the
		// midnight instant would shift them a day west of the feed's zone.
		sy, sm, sd := start.Date()
		ey, em, ed := end.Date()
		start = time.Date(sy, sm, sd, 0, 0, 0, 0, loc)
		end = time.Date(ey, em, ed, 0, 0, 0, 0, loc)
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
	} else {
		start = start.In(loc)
		end = end.In(loc)
	}

	return model.Occurrence{
		Kind:        model.KindEvent,
		SourceID:    ev.Feed.ID,
		UID:         ev.UID,
		InstanceKey: start.Format(time.RFC3339Nano),
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       start,
		End:         end,
	}
}

func spansOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
