package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"daylayout/internal/agenda"
	"daylayout/internal/layout"
)

// TextOptions controls Text.
type TextOptions struct {
	Width      int  // total line width; below 40 counts as 40
	ShowAllDay bool // include the all-day section
	Indent     int  // spaces per column of nesting; 0 means 4
}

type textStyles struct {
	header lipgloss.Style
	muted  lipgloss.Style
	time   lipgloss.Style
}

func newTextStyles() textStyles {
	return textStyles{
		header: lipgloss.NewStyle().Bold(true).Underline(true),
		muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		time:   lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
	}
}

// Text renders v as a plain terminal agenda. Overlapping timed events are
// indented by their column so the layout stays visible without a grid.
func Text(v *agenda.View, opts TextOptions) string {
	if opts.Width < 40 {
		opts.Width = 40
	}
	if opts.Indent <= 0 {
		opts.Indent = 4
	}
	st := newTextStyles()

	var sections []string
	for d := 0; d < v.Days; d++ {
		jd := v.StartDay + d
		lines := []string{st.header.Render(layout.DateOf(jd, v.Location).Format("Mon Jan 02"))}

		if opts.ShowAllDay {
			for i := range v.AllDay {
				p := &v.AllDay[i]
				if jd < p.Event.StartDay || jd > p.Event.EndDay {
					continue
				}
				prefix := "  all-day     "
				lines = append(lines, entryLines(st, prefix, p, opts)...)
			}
		}

		empty := true
		for i := range v.Timed {
			p := &v.Timed[i]
			if !p.Event.Intersects(jd, 0, layout.MinutesPerDay) {
				continue
			}
			empty = false
			prefix := "  " + st.time.Render(span(p, jd)) + " "
			lines = append(lines, entryLines(st, prefix, p, opts)...)
		}
		if empty {
			lines = append(lines, st.muted.Render("  (no timed events)"))
		}

		sections = append(sections, lipgloss.JoinVertical(lipgloss.Left, lines...))
	}

	if len(v.Warnings) > 0 {
		warn := make([]string, 0, len(v.Warnings)+1)
		warn = append(warn, st.muted.Render("warnings:"))
		for _, w := range v.Warnings {
			warn = append(warn, st.muted.Render("  "+w))
		}
		sections = append(sections, lipgloss.JoinVertical(lipgloss.Left, warn...))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

// entryLines renders one event: prefix, column indentation, marker and the
// title wrapped to what is left of the line.
func entryLines(st textStyles, prefix string, p *agenda.Placed, opts TextOptions) []string {
	indent := strings.Repeat(" ", p.Layout.Column*opts.Indent)
	marker := fmt.Sprintf("[%d/%d] ", p.Layout.Column+1, p.Layout.MaxColumns)
	if p.Occurrence.Color != "" {
		marker = lipgloss.NewStyle().Foreground(lipgloss.Color(p.Occurrence.Color)).Render(marker)
	}

	lead := prefix + indent + marker
	room := opts.Width - lipgloss.Width(lead)
	if room < 10 {
		room = 10
	}

	title := p.Occurrence.Summary
	if p.Occurrence.Location != "" {
		title += " @ " + p.Occurrence.Location
	}
	wrapped := strings.Split(wordwrap.String(title, room), "\n")

	out := make([]string, 0, len(wrapped))
	pad := strings.Repeat(" ", lipgloss.Width(lead))
	for i, w := range wrapped {
		if i == 0 {
			out = append(out, lead+w)
			continue
		}
		out = append(out, pad+w)
	}
	return out
}

// span formats the part of p that falls on jd as HH:MM-HH:MM.
func span(p *agenda.Placed, jd int) string {
	start, end := 0, layout.MinutesPerDay
	if p.Event.StartDay == jd {
		start = p.Event.StartMinute
	}
	if p.Event.EndDay == jd {
		end = p.Event.EndMinute
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d", start/60, start%60, end/60, end%60)
}
