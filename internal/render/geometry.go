// Package render turns laid-out views into something to look at: screen
// rectangles, a terminal listing, and an HTML page.
package render

import (
	"daylayout/internal/agenda"
	"daylayout/internal/layout"
)

// Geometry describes the drawing surface of a multi-day view, in pixels.
type Geometry struct {
	DayWidth     float64 // width of one day column
	HourHeight   float64 // height of one hour in the timed grid
	AllDayHeight float64 // height of one all-day row
	Gap          float64 // horizontal space between neighboring events
	MinHeight    float64 // shortest rectangle drawn for a timed event
}

// DefaultGeometry fits a one-day view on a 984px wide page.
func DefaultGeometry() Geometry {
	return Geometry{
		DayWidth:     900,
		HourHeight:   48,
		AllDayHeight: 24,
		Gap:          2,
		MinHeight:    16,
	}
}

// Rect is an event rectangle. Top is relative to its section: the all-day
// strip or the timed grid.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Box is one rectangle of a placed event. Timed events crossing midnight
// produce one box per day they touch.
type Box struct {
	Placed *agenda.Placed
	Day    int // 0-based day within the view
	AllDay bool
	Rect   Rect
}

// GridHeight is the height of the timed grid.
func (g Geometry) GridHeight() float64 {
	return 24 * g.HourHeight
}

// AllDayRows returns the number of all-day rows the view needs.
func AllDayRows(v *agenda.View) int {
	rows := 0
	for _, p := range v.AllDay {
		rows = max(rows, p.Layout.MaxColumns)
	}
	return rows
}

// Boxes computes the rectangles of every event in v. Timed events split the
// day width into MaxColumns slots; all-day events stack in rows, one row per
// column index, spanning the days they cover.
func Boxes(v *agenda.View, g Geometry) []Box {
	var out []Box

	for i := range v.AllDay {
		p := &v.AllDay[i]
		first := max(p.Event.StartDay, v.StartDay) - v.StartDay
		last := min(p.Event.EndDay, v.EndDay()) - v.StartDay
		if last < first {
			continue
		}
		top := float64(p.Layout.Column) * g.AllDayHeight
		out = append(out, Box{
			Placed: p,
			Day:    first,
			AllDay: true,
			Rect: Rect{
				Left:   float64(first)*g.DayWidth + g.Gap,
				Top:    top,
				Right:  float64(last+1)*g.DayWidth - g.Gap,
				Bottom: top + g.AllDayHeight - g.Gap,
			},
		})
	}

	for i := range v.Timed {
		p := &v.Timed[i]
		for d := 0; d < v.Days; d++ {
			jd := v.StartDay + d
			if !p.Event.Intersects(jd, 0, layout.MinutesPerDay) {
				continue
			}
			out = append(out, Box{Placed: p, Day: d, Rect: timedRect(p, jd, d, g)})
		}
	}

	return out
}

func timedRect(p *agenda.Placed, jd, day int, g Geometry) Rect {
	startMin, endMin := 0, layout.MinutesPerDay
	if p.Event.StartDay == jd {
		startMin = p.Event.StartMinute
	}
	if p.Event.EndDay == jd {
		endMin = p.Event.EndMinute
	}

	cols := max(p.Layout.MaxColumns, 1)
	width := g.DayWidth / float64(cols)
	left := float64(day)*g.DayWidth + float64(p.Layout.Column)*width

	top := float64(startMin) * g.HourHeight / 60
	bottom := float64(endMin) * g.HourHeight / 60
	if bottom-top < g.MinHeight {
		bottom = min(top+g.MinHeight, g.GridHeight())
		top = bottom - g.MinHeight
	}

	return Rect{
		Left:   left + g.Gap,
		Top:    top,
		Right:  left + width - g.Gap,
		Bottom: bottom,
	}
}
