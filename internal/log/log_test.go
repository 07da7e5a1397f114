package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestLevelsAndFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	t.Cleanup(func() {
		SetLevel(LevelInfo)
		SetOutput(os.Stderr)
	})

	Info("hidden", "k", 1)
	Warn("source skipped", "id", "work cal", "count", 3)
	Error("fetch failed", errors.New("boom"), "dangling")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line logged at WARN level: %q", out)
	}
	if !strings.Contains(out, `[WARN] source skipped id="work cal" count=3`) {
		t.Fatalf("unexpected warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] fetch failed err=boom") {
		t.Fatalf("unexpected error line: %q", out)
	}
	if strings.Contains(out, "dangling") {
		t.Fatalf("odd trailing key should be dropped: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{" WARN ", LevelWarn, false},
		{"", LevelInfo, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}
