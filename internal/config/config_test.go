package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"daylayout/internal/layout"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != defaultListen || cfg.HorizonDays != defaultHorizonDays {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Layout != cfg.Layout || again.Timezone != cfg.Timezone {
		t.Fatalf("round trip mismatch: %+v vs %+v", again, cfg)
	}
}

func TestLoadNormalizesPartialConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
timezone: UTC
layout:
  minimum_duration_minutes: -10
  max_columns: 500
  ordering: validate
ics:
  - url: https://example.com/cal.ics
    name: work
daily_status:
  - name: Headache
    level: 2
    date: "2025-03-10"
therapy:
  - name: Ibuprofen
    date: "2025-03-10"
    dose: 1
    dose_unit: count
    reminders: ["08:00"]
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen != defaultListen {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if !cfg.ShowAllDay {
		t.Error("ShowAllDay default lost")
	}
	if cfg.Layout.MinimumDurationMinutes != 0 || cfg.Layout.MaxColumns != layout.ColumnLimit || cfg.Layout.Saturation != "clamp" {
		t.Errorf("layout not normalized: %+v", cfg.Layout)
	}
	if cfg.ICS[0].SourceID() != "work" {
		t.Errorf("SourceID = %q", cfg.ICS[0].SourceID())
	}
	if len(cfg.DailyStatus) != 1 || len(cfg.Therapy) != 1 || cfg.Therapy[0].Reminders[0] != "08:00" {
		t.Errorf("diary entries not decoded: %+v %+v", cfg.DailyStatus, cfg.Therapy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	opts := cfg.LayoutOptions()
	if opts.Ordering != layout.OrderValidate || opts.Saturation != layout.SaturateClamp || opts.MinimumDuration != 0 {
		t.Errorf("LayoutOptions = %+v", opts)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("Location = %v", cfg.Location())
	}
}

func TestLayoutOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Layout = LayoutConfig{MinimumDurationMinutes: 45, MaxColumns: 8, Saturation: "reject", Ordering: "sort"}

	opts := cfg.LayoutOptions()
	want := layout.Options{
		MinimumDuration: 45 * time.Minute,
		MaxColumns:      8,
		Saturation:      layout.SaturateReject,
		Ordering:        layout.OrderSort,
	}
	if opts != want {
		t.Fatalf("got %+v, want %+v", opts, want)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Timezone = "Mars/Olympus"
	cfg.ICS = []ICSConfig{{Name: "no url"}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 2 {
		t.Fatalf("expected 2 joined errors, got %v", err)
	}
}

func TestValidateRejectsUnknownLayoutModes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("timezone: UTC\nlayout:\n  saturation: rejct\n  ordering: validat\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Layout.Saturation != "rejct" || cfg.Layout.Ordering != "validat" {
		t.Fatalf("typos silently replaced: %+v", cfg.Layout)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{`layout.saturation "rejct"`, `layout.ordering "validat"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
