// Package diary turns personal health-log entries (daily statuses) and
// medication reminders (therapies) into calendar occurrences, so they can be
// laid out next to regular events.
package diary

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"daylayout/internal/model"
)

const (
	dateLayout     = "2006-01-02"
	reminderLayout = "15:04"

	// ReminderDuration is how long a therapy reminder occupies the day view.
	ReminderDuration = time.Hour

	therapyColor = "#aaaaaa"
)

// levelColors is indexed by DailyStatus.Level modulo its length.
var levelColors = [...]string{"#99cc00", "#33b5e5", "#aa66cc", "#ffbb33", "#ff4444"}

// DoseUnit is the unit of Therapy.Dose.
type DoseUnit string

const (
	DoseCount      DoseUnit = "count"
	DoseMilliliter DoseUnit = "ml"
	DoseSeconds    DoseUnit = "seconds"
	DoseMinutes    DoseUnit = "minutes"
	DoseHours      DoseUnit = "hours"
)

// DailyStatus is one entry of the personal health log: how the body felt on
// a given day.
type DailyStatus struct {
	Name        string `yaml:"name" json:"name"`
	Level       int    `yaml:"level" json:"level"`
	Part        string `yaml:"part,omitempty" json:"part,omitempty"`
	Date        string `yaml:"date" json:"date"` // YYYY-MM-DD
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Private     bool   `yaml:"private,omitempty" json:"private,omitempty"`
}

func (d DailyStatus) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("name is empty")
	}
	if d.Level < 0 {
		return fmt.Errorf("level %d is negative", d.Level)
	}
	if _, err := time.Parse(dateLayout, d.Date); err != nil {
		return fmt.Errorf("date %q: %w", d.Date, err)
	}
	return nil
}

// Therapy is a medication or treatment taken on a day, optionally at fixed
// reminder times.
type Therapy struct {
	Name      string   `yaml:"name" json:"name"`
	Type      int      `yaml:"type,omitempty" json:"type,omitempty"`
	UsageRule string   `yaml:"usage_rule,omitempty" json:"usage_rule,omitempty"`
	Dose      int      `yaml:"dose,omitempty" json:"dose,omitempty"`
	DoseUnit  DoseUnit `yaml:"dose_unit,omitempty" json:"dose_unit,omitempty"`
	Date      string   `yaml:"date" json:"date"` // YYYY-MM-DD
	HasAlarm  bool     `yaml:"has_alarm,omitempty" json:"has_alarm,omitempty"`
	// Reminders are local times of day, "HH:MM".
	Reminders   []string `yaml:"reminders,omitempty" json:"reminders,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Private     bool     `yaml:"private,omitempty" json:"private,omitempty"`
}

func (t Therapy) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("name is empty")
	}
	if _, err := time.Parse(dateLayout, t.Date); err != nil {
		return fmt.Errorf("date %q: %w", t.Date, err)
	}
	switch t.DoseUnit {
	case "", DoseCount, DoseMilliliter, DoseSeconds, DoseMinutes, DoseHours:
	default:
		return fmt.Errorf("unknown dose unit %q", t.DoseUnit)
	}
	if t.Dose < 0 {
		return fmt.Errorf("dose %d is negative", t.Dose)
	}
	for _, r := range t.Reminders {
		if _, err := time.Parse(reminderLayout, r); err != nil {
			return fmt.Errorf("reminder %q: %w", r, err)
		}
	}
	return nil
}

// DoseLabel renders the dose as "2 ml"; a missing dose counts as one.
func (t Therapy) DoseLabel() string {
	n := t.Dose
	if n == 0 {
		n = 1
	}
	unit := t.DoseUnit
	if unit == "" {
		unit = DoseCount
	}
	if unit == DoseCount {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d %s", n, unit)
}

// StatusOccurrence turns a daily status into an all-day occurrence. index is
// the entry's position in its list and ends up in the title, which keeps
// otherwise identical entries apart.
func StatusOccurrence(index int, d DailyStatus, loc *time.Location) (model.Occurrence, error) {
	day, err := time.ParseInLocation(dateLayout, d.Date, loc)
	if err != nil {
		return model.Occurrence{}, fmt.Errorf("diary: daily status %q: %w", d.Name, err)
	}

	level := d.Level
	if level < 0 {
		level = 0
	}

	desc := d.Description
	if d.Part != "" {
		desc = strings.TrimSpace(d.Part + " " + desc)
	}

	return model.Occurrence{
		Kind:        model.KindDailyStatus,
		SourceID:    "daily_status",
		UID:         fmt.Sprintf("status-%d", index),
		InstanceKey: day.Format(dateLayout),
		Summary:     fmt.Sprintf("%s (%d)", d.Name, index),
		Description: desc,
		Color:       levelColors[level%len(levelColors)],
		AllDay:      true,
		Start:       day,
		End:         day.AddDate(0, 0, 1),
	}, nil
}

// TherapyOccurrences turns a therapy into one timed occurrence per reminder,
// each ReminderDuration long. Without reminders the therapy becomes a single
// zero-length occurrence at the start of its day.
func TherapyOccurrences(index int, t Therapy, loc *time.Location) ([]model.Occurrence, error) {
	day, err := time.ParseInLocation(dateLayout, t.Date, loc)
	if err != nil {
		return nil, fmt.Errorf("diary: therapy %q: %w", t.Name, err)
	}

	base := model.Occurrence{
		Kind:        model.KindTherapy,
		SourceID:    "therapy",
		UID:         fmt.Sprintf("therapy-%d", index),
		Summary:     fmt.Sprintf("%s (%d)", t.Name, index),
		Description: strings.TrimSpace(t.DoseLabel() + " " + t.UsageRule),
		Color:       therapyColor,
	}

	if len(t.Reminders) == 0 {
		occ := base
		occ.InstanceKey = day.Format(time.RFC3339)
		occ.Start = day
		occ.End = day
		return []model.Occurrence{occ}, nil
	}

	out := make([]model.Occurrence, 0, len(t.Reminders))
	for _, r := range t.Reminders {
		clock, err := time.Parse(reminderLayout, r)
		if err != nil {
			return nil, fmt.Errorf("diary: therapy %q reminder %q: %w", t.Name, r, err)
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)

		occ := base
		occ.InstanceKey = start.Format(time.RFC3339)
		occ.Start = start
		occ.End = start.Add(ReminderDuration)
		out = append(out, occ)
	}
	return out, nil
}

// Occurrences converts every entry and keeps those touching [from, to).
// Invalid entries are skipped and reported in the joined error; the valid
// ones are still returned.
func Occurrences(statuses []DailyStatus, therapies []Therapy, from, to time.Time, loc *time.Location) ([]model.Occurrence, error) {
	if loc == nil {
		loc = time.Local
	}

	var (
		out  []model.Occurrence
		errs []error
	)

	for i, d := range statuses {
		occ, err := StatusOccurrence(i, d, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if occ.Overlaps(from, to) {
			out = append(out, occ)
		}
	}

	for i, t := range therapies {
		occs, err := TherapyOccurrences(i, t, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, occ := range occs {
			if occ.Overlaps(from, to) {
				out = append(out, occ)
			}
		}
	}

	return out, errors.Join(errs...)
}
