package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"daylayout/internal/agenda"
	"daylayout/internal/clock"
	"daylayout/internal/config"
	"daylayout/internal/layout"
	"daylayout/internal/model"
)

var day0 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day0.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func event(uid string, start, end time.Time) model.Occurrence {
	return model.Occurrence{
		Kind:        model.KindEvent,
		SourceID:    "work",
		UID:         uid,
		InstanceKey: start.Format(time.RFC3339),
		Summary:     uid,
		Start:       start,
		End:         end,
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config, *agenda.Builder)) *httptest.Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "day.png")
	cfg.ICS = []config.ICSConfig{{ID: "work", URL: "https://calendar.example.com/private/secret.ics"}}

	b := &agenda.Builder{
		Sources: []agenda.Source{&agenda.StaticSource{Label: "work", Items: []model.Occurrence{
			event("planning", at(9, 0), at(10, 0)),
			event("sync", at(9, 30), at(9, 45)),
			event("review", at(11, 0), at(12, 0)),
		}}},
		Location: time.UTC,
		Options:  cfg.LayoutOptions(),
		Clock:    &clock.Fixed{T: at(8, 0)},
	}
	if mutate != nil {
		mutate(cfg, b)
	}

	srv := httptest.NewServer(NewServer(cfg, agenda.NewCache(b, time.Minute, 1)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLayoutEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	resp := get(t, srv.URL+"/api/layout?date=2025-03-10&days=1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, err := uuid.Parse(resp.Header.Get(RequestIDHeader)); err != nil {
		t.Errorf("missing request id: %q", resp.Header.Get(RequestIDHeader))
	}

	var body layoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Start != "2025-03-10" || body.Days != 1 || body.Timezone != "UTC" {
		t.Fatalf("window = %s +%d %s", body.Start, body.Days, body.Timezone)
	}

	want := map[string][2]int{
		"planning": {0, 2},
		"sync":     {1, 2},
		"review":   {0, 1},
	}
	if len(body.Timed) != len(want) {
		t.Fatalf("timed = %+v", body.Timed)
	}
	for _, p := range body.Timed {
		w := want[p.Summary]
		if p.Column != w[0] || p.MaxColumns != w[1] {
			t.Errorf("%s: column %d/%d, want %d/%d", p.Summary, p.Column, p.MaxColumns, w[0], w[1])
		}
		if len(p.Rects) != 1 || p.Rects[0].Day != 0 || p.Rects[0].Right <= p.Rects[0].Left {
			t.Errorf("%s: rects = %+v", p.Summary, p.Rects)
		}
	}
}

func TestLayoutEndpointDefaultsToToday(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	var body layoutResponse
	if err := json.NewDecoder(get(t, srv.URL+"/api/layout").Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Start != "2025-03-10" || body.Days != 1 {
		t.Fatalf("window = %s +%d", body.Start, body.Days)
	}
}

func TestLayoutEndpointErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	rejecting := newTestServer(t, func(_ *config.Config, b *agenda.Builder) {
		b.Options = layout.Options{MaxColumns: 1, Saturation: layout.SaturateReject, Ordering: layout.OrderSort}
	})

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"bad date", srv.URL + "/api/layout?date=10.03.2025", http.StatusBadRequest},
		{"zero days", srv.URL + "/api/layout?days=0", http.StatusBadRequest},
		{"too many days", srv.URL + "/api/layout?days=32", http.StatusBadRequest},
		{"non-numeric days", srv.URL + "/api/layout?days=week", http.StatusBadRequest},
		{"column overflow", rejecting.URL + "/api/layout?date=2025-03-10", http.StatusUnprocessableEntity},
		{"wrong method", srv.URL + "/api/refresh", http.StatusMethodNotAllowed},
		{"missing snapshot", srv.URL + "/snapshot.png", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := get(t, tt.url).StatusCode; got != tt.want {
				t.Fatalf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDayPage(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	resp := get(t, srv.URL+"/day?date=2025-03-10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	page := string(raw)
	for _, want := range []string{`data-ready="true"`, "planning", "sync", "review"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestSourcesRedactsURLs(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	var body sourcesResponse
	if err := json.NewDecoder(get(t, srv.URL+"/api/sources").Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.ICS) != 1 || body.ICS[0].ID != "work" {
		t.Fatalf("ics = %+v", body.ICS)
	}
	if strings.Contains(body.ICS[0].URL, "secret") {
		t.Fatalf("url not redacted: %s", body.ICS[0].URL)
	}
}

func TestRefreshAndSnapshot(t *testing.T) {
	t.Parallel()

	var snapshot string
	srv := newTestServer(t, func(cfg *config.Config, _ *agenda.Builder) {
		snapshot = cfg.SnapshotPath
	})

	resp, err := http.Post(srv.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}

	if err := os.WriteFile(snapshot, []byte("\x89PNG\r\n\x1a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := get(t, srv.URL+"/snapshot.png"); got.StatusCode != http.StatusOK || got.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("snapshot: %d %s", got.StatusCode, got.Header.Get("Content-Type"))
	}
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(cfg *config.Config, _ *agenda.Builder) {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}
	})

	if got := get(t, srv.URL+"/health").StatusCode; got != http.StatusOK {
		t.Fatalf("health status = %d", got)
	}
	resp := get(t, srv.URL+"/api/layout")
	if resp.StatusCode != http.StatusUnauthorized || resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("unauthenticated status = %d", resp.StatusCode)
	}

	for _, tt := range []struct {
		user, pass string
		want       int
	}{
		{"admin", "wrong", http.StatusUnauthorized},
		{"admin", "s3cret", http.StatusOK},
	} {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/layout", nil)
		req.SetBasicAuth(tt.user, tt.pass)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%s/%s: status = %d, want %d", tt.user, tt.pass, resp.StatusCode, tt.want)
		}
	}
}

func TestRequestIDPropagation(t *testing.T) {
	t.Parallel()

	var seen string
	h := withRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != id || rec.Header().Get(RequestIDHeader) != id {
		t.Fatalf("valid id not kept: seen %q header %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen == "<script>" {
		t.Fatal("malformed id was trusted")
	}
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("generated id %q: %v", seen, err)
	}
}
