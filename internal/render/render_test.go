package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"daylayout/internal/agenda"
	"daylayout/internal/layout"
	"daylayout/internal/model"
)

var day0 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func placed(title string, start, end time.Time, allDay bool, res layout.Result) agenda.Placed {
	occ := model.Occurrence{
		Kind:     model.KindEvent,
		SourceID: "work",
		UID:      title,
		Summary:  title,
		AllDay:   allDay,
		Start:    start,
		End:      end,
	}
	return agenda.Placed{Occurrence: occ, Event: agenda.ToEvent(occ, time.UTC), Layout: res}
}

func testView() *agenda.View {
	h := func(day, hour, minute int) time.Time {
		return day0.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	}
	return &agenda.View{
		Start:    day0,
		Days:     2,
		StartDay: layout.JulianDay(day0),
		Location: time.UTC,
		AllDay: []agenda.Placed{
			placed("offsite", day0, day0.AddDate(0, 0, 2), true, layout.Result{Column: 0, MaxColumns: 2}),
			placed("holiday", day0, day0.AddDate(0, 0, 1), true, layout.Result{Column: 1, MaxColumns: 2}),
		},
		Timed: []agenda.Placed{
			placed("planning", h(0, 9, 0), h(0, 10, 0), false, layout.Result{Column: 0, MaxColumns: 2}),
			placed("sync", h(0, 9, 30), h(0, 9, 35), false, layout.Result{Column: 1, MaxColumns: 2}),
			placed("night shift", h(0, 22, 0), h(1, 2, 0), false, layout.Result{Column: 0, MaxColumns: 1}),
		},
	}
}

func TestBoxes(t *testing.T) {
	t.Parallel()

	g := Geometry{DayWidth: 100, HourHeight: 60, AllDayHeight: 20, Gap: 1, MinHeight: 15}
	boxes := Boxes(testView(), g)

	byTitle := map[string][]Box{}
	for _, b := range boxes {
		byTitle[b.Placed.Occurrence.Summary] = append(byTitle[b.Placed.Occurrence.Summary], b)
	}

	tests := []struct {
		title string
		day   int
		want  Rect
	}{
		{"offsite", 0, Rect{Left: 1, Top: 0, Right: 199, Bottom: 19}},
		{"holiday", 0, Rect{Left: 1, Top: 20, Right: 99, Bottom: 39}},
		{"planning", 0, Rect{Left: 1, Top: 540, Right: 49, Bottom: 600}},
		// 5 minutes is shorter than MinHeight.
		{"sync", 0, Rect{Left: 51, Top: 570, Right: 99, Bottom: 585}},
		{"night shift", 0, Rect{Left: 1, Top: 1320, Right: 99, Bottom: 1440}},
		{"night shift", 1, Rect{Left: 101, Top: 0, Right: 199, Bottom: 120}},
	}
	for _, tt := range tests {
		var found bool
		for _, b := range byTitle[tt.title] {
			if b.Day != tt.day {
				continue
			}
			found = true
			if b.Rect != tt.want {
				t.Errorf("%s day %d: got %+v, want %+v", tt.title, tt.day, b.Rect, tt.want)
			}
		}
		if !found {
			t.Errorf("%s day %d: no box", tt.title, tt.day)
		}
	}
	if len(boxes) != len(tests) {
		t.Errorf("got %d boxes, want %d", len(boxes), len(tests))
	}
	if n := AllDayRows(testView()); n != 2 {
		t.Errorf("AllDayRows = %d, want 2", n)
	}
}

func TestMinHeightAtEndOfDay(t *testing.T) {
	t.Parallel()

	g := Geometry{DayWidth: 100, HourHeight: 60, MinHeight: 30}
	late := placed("late", day0.Add(23*time.Hour+55*time.Minute), day0.Add(24*time.Hour), false, layout.Result{MaxColumns: 1})
	r := timedRect(&late, layout.JulianDay(day0), 0, g)
	if r.Bottom != g.GridHeight() || r.Top != g.GridHeight()-30 {
		t.Fatalf("rect not kept inside the grid: %+v", r)
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	out := Text(testView(), TextOptions{Width: 60, ShowAllDay: true})

	for _, want := range []string{
		"Mon Mar 10",
		"Tue Mar 11",
		"09:00-10:00",
		"[1/2] planning",
		"[2/2] sync",
		"22:00-24:00",
		"00:00-02:00",
		"offsite",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// sync sits in the second column and is indented past planning.
	var planCol, syncCol int
	for _, line := range strings.Split(out, "\n") {
		if i := strings.Index(line, "planning"); i >= 0 {
			planCol = i
		}
		if i := strings.Index(line, "sync"); i >= 0 {
			syncCol = i
		}
	}
	if syncCol <= planCol {
		t.Errorf("sync at %d, planning at %d; expected column indent", syncCol, planCol)
	}

	if noAllDay := Text(testView(), TextOptions{Width: 60}); strings.Contains(noAllDay, "offsite") {
		t.Errorf("all-day events shown with ShowAllDay off")
	}
}

func TestTextWrapsLongTitles(t *testing.T) {
	t.Parallel()

	v := testView()
	v.Timed[0].Occurrence.Summary = strings.Repeat("quarterly ", 12) + "review"
	out := Text(v, TextOptions{Width: 50})
	for _, line := range strings.Split(out, "\n") {
		if w := len([]rune(line)); w > 50 && !strings.Contains(line, "\x1b") {
			t.Errorf("line longer than width: %q", line)
		}
	}
	if !strings.Contains(out, "review") {
		t.Errorf("wrapped title lost its tail:\n%s", out)
	}
}

func TestHTML(t *testing.T) {
	t.Parallel()

	v := testView()
	v.Timed[0].Occurrence.Summary = "<script>alert(1)</script>"
	v.Timed[0].Occurrence.Color = "#ff0000"
	v.Timed[1].Occurrence.Color = "red; position: fixed"
	v.Warnings = []string{"feed down"}

	var buf bytes.Buffer
	if err := HTML(&buf, v, DefaultGeometry(), true); err != nil {
		t.Fatalf("HTML: %v", err)
	}
	page := buf.String()

	for _, want := range []string{
		`data-ready="true"`,
		`data-column="1" data-max-columns="2"`,
		"background: #ff0000",
		"&lt;script&gt;",
		"feed down",
		"offsite",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(page, "<script>") || strings.Contains(page, "position: fixed") {
		t.Errorf("unsafe content rendered:\n%s", page)
	}
}

func TestIsCSSColor(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"#fff":     true,
		"#A0b1C2":  true,
		"":         false,
		"red":      false,
		"#ggg":     false,
		"#1234":    false,
		"#ff0000;": false,
	}
	for in, want := range tests {
		if got := isCSSColor(in); got != want {
			t.Errorf("isCSSColor(%q) = %v, want %v", in, got, want)
		}
	}
}
