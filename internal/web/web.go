// Package web serves the laid-out views over HTTP: a JSON API for clients
// and an HTML day page that doubles as the snapshot source.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"daylayout/internal/agenda"
	"daylayout/internal/config"
	"daylayout/internal/ics"
	appLog "daylayout/internal/log"
	"daylayout/internal/render"
)

// MaxDays bounds the days parameter.
const MaxDays = 31

// Server provides the HTTP API and the day page.
type Server struct {
	cfg      *config.Config
	cache    *agenda.Cache
	geometry render.Geometry
	mux      *http.ServeMux
}

// NewServer constructs a Server reading views from cache.
func NewServer(cfg *config.Config, cache *agenda.Cache) *Server {
	s := &Server{
		cfg:      cfg,
		cache:    cache,
		geometry: render.DefaultGeometry(),
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the server's handler with request IDs, request logging
// and, when configured, basic auth applied.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = basicAuth(s.cfg.BasicAuth.Username, s.cfg.BasicAuth.Password, h)
	}
	return withRequestID(logRequests(h))
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// 빈 사용자명 또는 비밀번호는 비활성화로 취급한다.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// ListenAndServe serves on cfg.Listen until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/layout", s.handleLayout)
	s.mux.HandleFunc("GET /api/sources", s.handleSources)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /day", s.handleDay)
	s.mux.HandleFunc("GET /snapshot.png", s.handleSnapshot)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type rectDTO struct {
	Day int `json:"day"`
	render.Rect
}

type placedDTO struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	Kind       string    `json:"kind"`
	Summary    string    `json:"summary"`
	Location   string    `json:"location,omitempty"`
	Color      string    `json:"color,omitempty"`
	AllDay     bool      `json:"all_day"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Column     int       `json:"column"`
	MaxColumns int       `json:"max_columns"`
	Rects      []rectDTO `json:"rects"`
}

// layoutResponse is the JSON shape of /api/layout.
type layoutResponse struct {
	Start       string      `json:"start"`
	Days        int         `json:"days"`
	Timezone    string      `json:"timezone"`
	GeneratedAt time.Time   `json:"generated_at"`
	AllDay      []placedDTO `json:"all_day"`
	Timed       []placedDTO `json:"timed"`
	Warnings    []string    `json:"warnings,omitempty"`
}

func newLayoutResponse(v *agenda.View, g render.Geometry) layoutResponse {
	rects := map[*agenda.Placed][]rectDTO{}
	for _, b := range render.Boxes(v, g) {
		rects[b.Placed] = append(rects[b.Placed], rectDTO{Day: b.Day, Rect: b.Rect})
	}

	convert := func(list []agenda.Placed) []placedDTO {
		out := make([]placedDTO, 0, len(list))
		for i := range list {
			p := &list[i]
			r := rects[p]
			if r == nil {
				r = []rectDTO{}
			}
			out = append(out, placedDTO{
				ID:         p.Event.ID,
				SourceID:   p.Occurrence.SourceID,
				Kind:       string(p.Occurrence.Kind),
				Summary:    p.Occurrence.Summary,
				Location:   p.Occurrence.Location,
				Color:      p.Occurrence.Color,
				AllDay:     p.Event.IsAllDay(),
				Start:      p.Occurrence.Start,
				End:        p.Occurrence.End,
				Column:     p.Layout.Column,
				MaxColumns: p.Layout.MaxColumns,
				Rects:      r,
			})
		}
		return out
	}

	return layoutResponse{
		Start:       v.Start.Format(time.DateOnly),
		Days:        v.Days,
		Timezone:    v.Location.String(),
		GeneratedAt: v.GeneratedAt,
		AllDay:      convert(v.AllDay),
		Timed:       convert(v.Timed),
		Warnings:    v.Warnings,
	}
}

// handleLayout returns the laid-out view.
//
// GET /api/layout?date=2025-03-10&days=7
//   - date: 첫째 날 (기본: 오늘, 표시 타임존 기준)
//   - days: 일 수 (기본: horizon_days, 최대 MaxDays)
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	view, ok := s.viewFor(w, r, s.cache.Horizon())
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newLayoutResponse(view, s.geometry))
}

// handleDay renders the HTML page captured by snapshots.
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	view, ok := s.viewFor(w, r, 1)
	if !ok {
		return
	}

	g := s.geometry
	if view.Days > 1 {
		g.DayWidth /= float64(view.Days)
	}

	var buf bytes.Buffer
	if err := render.HTML(&buf, view, g, s.cfg.ShowAllDay); err != nil {
		appLog.Error("day page render failed", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// viewFor parses date/days and loads the view, writing the error response
// itself when it returns false.
func (s *Server) viewFor(w http.ResponseWriter, r *http.Request, defDays int) (*agenda.View, bool) {
	q := r.URL.Query()

	day := s.cache.Today()
	if raw := q.Get("date"); raw != "" {
		d, err := time.ParseInLocation(time.DateOnly, raw, day.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return nil, false
		}
		day = d
	}

	days := defDays
	if raw := q.Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and "+strconv.Itoa(MaxDays))
			return nil, false
		}
		days = n
	}

	view, err := s.cache.Get(r.Context(), day, days)
	if err != nil {
		status := http.StatusInternalServerError
		if agenda.IsLayoutError(err) {
			status = http.StatusUnprocessableEntity
		}
		appLog.Error("view build failed", err,
			"date", day.Format(time.DateOnly),
			"days", days,
			"request_id", RequestID(r.Context()),
		)
		writeError(w, status, err.Error())
		return nil, false
	}
	return view, true
}

type feedDTO struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
}

type sourcesResponse struct {
	ICS         []feedDTO `json:"ics"`
	DailyStatus int       `json:"daily_status"`
	Therapy     int       `json:"therapy"`
	Refresh     string    `json:"refresh"`
	Timezone    string    `json:"timezone"`
}

// handleSources lists the configured sources. Feed URLs often embed a
// private token, so they are redacted.
func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	resp := sourcesResponse{
		ICS:         make([]feedDTO, 0, len(s.cfg.ICS)),
		DailyStatus: len(s.cfg.DailyStatus),
		Therapy:     len(s.cfg.Therapy),
		Refresh:     s.cfg.RefreshCron,
		Timezone:    s.cfg.Timezone,
	}
	for _, c := range s.cfg.ICS {
		resp.ICS = append(resp.ICS, feedDTO{ID: c.SourceID(), Name: c.Name, URL: ics.RedactURL(c.URL)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rebuilds the default window immediately.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Refresh(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if agenda.IsLayoutError(err) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cached_views": s.cache.Len()})
}

// handleSnapshot serves the last PNG written by the snapshot job.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	// ServeFile 이 404/500 상태코드를 알아서 반환한다.
	http.ServeFile(w, r, s.cfg.SnapshotPath)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
