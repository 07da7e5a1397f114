package render

import (
	"fmt"
	"html/template"
	"io"

	"daylayout/internal/agenda"
	"daylayout/internal/layout"
)

type htmlBox struct {
	Title  string
	Time   string
	Color  string
	Kind   string
	Column int
	Max    int
	Style  template.CSS
}

type htmlDay struct {
	Label string
	Left  float64
}

type htmlPage struct {
	Title        string
	Width        float64
	AllDayHeight float64
	GridHeight   float64
	Days         []htmlDay
	DayWidth     float64
	Hours        []htmlHour
	AllDay       []htmlBox
	Timed        []htmlBox
	Warnings     []string
}

type htmlHour struct {
	Label string
	Top   float64
}

var pageTmpl = template.Must(template.New("day").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; font-family: sans-serif; font-size: 12px; }
.section { position: relative; width: {{.Width}}px; }
.box { position: absolute; box-sizing: border-box; overflow: hidden; padding: 2px 4px; border-radius: 3px; border: 1px solid #333; background: #eee; }
.hour { position: absolute; left: 0; right: 0; border-top: 1px solid #ddd; color: #999; }
.day { position: absolute; top: 0; font-weight: bold; }
.warn { color: #a00; }
</style>
</head>
<body>
<div id="root" data-ready="true">
<div class="section" style="height: 20px">
{{range .Days}}<div class="day" style="left: {{.Left}}px">{{.Label}}</div>
{{end}}</div>
<div class="section allday" style="height: {{.AllDayHeight}}px">
{{range .AllDay}}<div class="box {{.Kind}}" data-column="{{.Column}}" data-max-columns="{{.Max}}" style="{{.Style}}">{{.Title}}</div>
{{end}}</div>
<div class="section grid" style="height: {{.GridHeight}}px">
{{range .Hours}}<div class="hour" style="top: {{.Top}}px">{{.Label}}</div>
{{end}}{{range .Timed}}<div class="box {{.Kind}}" data-column="{{.Column}}" data-max-columns="{{.Max}}" style="{{.Style}}">{{.Time}} {{.Title}}</div>
{{end}}</div>
{{range .Warnings}}<p class="warn">{{.}}</p>
{{end}}</div>
</body>
</html>
`))

// HTML writes v as a standalone page with absolutely positioned event boxes.
// The root element carries data-ready="true" for headless capture.
func HTML(w io.Writer, v *agenda.View, g Geometry, showAllDay bool) error {
	page := htmlPage{
		Title:      "Day view " + v.Start.Format("2006-01-02"),
		Width:      float64(v.Days) * g.DayWidth,
		GridHeight: g.GridHeight(),
		DayWidth:   g.DayWidth,
		Warnings:   v.Warnings,
	}
	if showAllDay {
		page.AllDayHeight = float64(AllDayRows(v)) * g.AllDayHeight
	}

	for d := 0; d < v.Days; d++ {
		page.Days = append(page.Days, htmlDay{
			Label: layout.DateOf(v.StartDay+d, v.Location).Format("Mon Jan 02"),
			Left:  float64(d) * g.DayWidth,
		})
	}
	for h := 0; h < 24; h++ {
		page.Hours = append(page.Hours, htmlHour{Label: fmt.Sprintf("%02d:00", h), Top: float64(h) * g.HourHeight})
	}

	for _, b := range Boxes(v, g) {
		hb := htmlBox{
			Title:  b.Placed.Occurrence.Summary,
			Color:  b.Placed.Occurrence.Color,
			Kind:   string(b.Placed.Occurrence.Kind),
			Column: b.Placed.Layout.Column,
			Max:    b.Placed.Layout.MaxColumns,
			Style:  boxStyle(b),
		}
		if b.AllDay {
			if showAllDay {
				page.AllDay = append(page.AllDay, hb)
			}
			continue
		}
		hb.Time = span(b.Placed, v.StartDay+b.Day)
		page.Timed = append(page.Timed, hb)
	}

	return pageTmpl.Execute(w, page)
}

func boxStyle(b Box) template.CSS {
	css := fmt.Sprintf("left: %.1fpx; top: %.1fpx; width: %.1fpx; height: %.1fpx;",
		b.Rect.Left, b.Rect.Top, b.Rect.Right-b.Rect.Left, b.Rect.Bottom-b.Rect.Top)
	if c := b.Placed.Occurrence.Color; isCSSColor(c) {
		css += " background: " + c + ";"
	}
	return template.CSS(css)
}

// isCSSColor accepts #rgb and #rrggbb only; colors come from feeds and
// config and end up in a style attribute.
func isCSSColor(s string) bool {
	if len(s) != 4 && len(s) != 7 {
		return false
	}
	if s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
