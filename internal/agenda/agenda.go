// Package agenda collects occurrences from every data source, lays them out
// with the layout engine, and caches the resulting views.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"daylayout/internal/clock"
	"daylayout/internal/layout"
	appLog "daylayout/internal/log"
	"daylayout/internal/model"
)

// Placed is one laid-out occurrence.
type Placed struct {
	Occurrence model.Occurrence
	Event      layout.Event
	Layout     layout.Result
}

// View is the layout of a window of whole days.
type View struct {
	Start    time.Time // midnight of the first day, display zone
	Days     int
	StartDay int // Julian day of Start
	Location *time.Location

	// AllDay and Timed are in canonical layout order.
	AllDay []Placed
	Timed  []Placed

	GeneratedAt time.Time
	// Warnings lists sources that failed; the view was built without them.
	Warnings []string
}

// EndDay returns the last Julian day of the view.
func (v *View) EndDay() int {
	return v.StartDay + v.Days - 1
}

// ToEvent converts an occurrence into a layout event in loc.
func ToEvent(occ model.Occurrence, loc *time.Location) layout.Event {
	ev := layout.FromTimes(occ.Start.In(loc), occ.End.In(loc), occ.AllDay)
	ev.ID = occ.Key()
	ev.SourceID = occ.SourceID
	ev.Kind = string(occ.Kind)
	ev.Title = occ.Summary
	ev.Location = occ.Location
	ev.Color = occ.Color
	return ev
}

// Builder turns sources into views.
type Builder struct {
	Sources  []Source
	Location *time.Location
	Options  layout.Options
	Clock    clock.Clock
}

// Build lays out the days [day, day+days) in the builder's location. day may
// be any instant of the first day. A failing source is logged and left out;
// only a layout failure fails the build.
func (b *Builder) Build(ctx context.Context, day time.Time, days int) (*View, error) {
	loc := b.Location
	if loc == nil {
		loc = time.Local
	}
	if days <= 0 {
		days = 1
	}
	clk := b.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}

	d := day.In(loc)
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, days)

	view := &View{
		Start:       from,
		Days:        days,
		StartDay:    layout.JulianDay(from),
		Location:    loc,
		GeneratedAt: clk.Now(),
	}

	var occs []model.Occurrence
	for _, src := range b.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := src.Occurrences(ctx, from, to)
		if err != nil {
			appLog.Error("agenda: source failed", err, "source", src.Name())
			view.Warnings = append(view.Warnings, fmt.Sprintf("%s: %v", src.Name(), err))
		}
		for _, occ := range got {
			if occ.Overlaps(from, to) {
				occs = append(occs, occ)
			}
		}
	}

	events := make([]layout.Event, len(occs))
	for i, occ := range occs {
		events[i] = ToEvent(occ, loc)
	}

	// Sort a permutation so occurrences stay paired with their events.
	perm := make([]int, len(events))
	for i := range perm {
		perm[i] = i
	}
	sortPerm(perm, events)
	sortedEvents := make([]layout.Event, len(events))
	sortedOccs := make([]model.Occurrence, len(events))
	for i, p := range perm {
		sortedEvents[i] = events[p]
		sortedOccs[i] = occs[p]
	}

	results, err := layout.Compute(sortedEvents, b.Options)
	if err != nil {
		return nil, fmt.Errorf("agenda: layout: %w", err)
	}

	for i := range sortedEvents {
		p := Placed{Occurrence: sortedOccs[i], Event: sortedEvents[i], Layout: results[i]}
		if p.Event.IsAllDay() {
			view.AllDay = append(view.AllDay, p)
		} else {
			view.Timed = append(view.Timed, p)
		}
	}

	appLog.Debug("agenda: view built",
		"start", from.Format(time.DateOnly),
		"days", days,
		"all_day", len(view.AllDay),
		"timed", len(view.Timed),
		"warnings", len(view.Warnings),
	)
	return view, nil
}

func sortPerm(perm []int, events []layout.Event) {
	slices.SortStableFunc(perm, func(a, b int) int {
		return layout.Compare(&events[a], &events[b])
	})
}

// IsLayoutError reports whether err came from the layout engine rejecting
// its input rather than from the sources.
func IsLayoutError(err error) bool {
	return errors.Is(err, layout.ErrUnsorted) || errors.Is(err, layout.ErrColumnOverflow)
}
