package agenda

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"daylayout/internal/config"
	"daylayout/internal/diary"
	"daylayout/internal/ics"
	appLog "daylayout/internal/log"
	"daylayout/internal/model"
)

// Source produces the occurrences touching [from, to). A source may return
// occurrences together with an error when only part of it failed.
type Source interface {
	Name() string
	Occurrences(ctx context.Context, from, to time.Time) ([]model.Occurrence, error)
}

// ICSSource fetches, parses and expands subscribed ICS feeds.
type ICSSource struct {
	Fetcher     *ics.Fetcher
	Feeds       []ics.Feed
	Location    *time.Location
	MaxPerEvent int
}

// NewICSSource builds a source for every configured feed with a URL.
func NewICSSource(cfg *config.Config, client *http.Client) *ICSSource {
	feeds := make([]ics.Feed, 0, len(cfg.ICS))
	for _, c := range cfg.ICS {
		if c.URL == "" {
			continue
		}
		feeds = append(feeds, ics.Feed{ID: c.SourceID(), URL: c.URL})
	}
	return &ICSSource{
		Fetcher:  ics.NewFetcher(cfg.CacheDir, client),
		Feeds:    feeds,
		Location: cfg.Location(),
	}
}

func (s *ICSSource) Name() string { return "ics" }

func (s *ICSSource) Occurrences(ctx context.Context, from, to time.Time) ([]model.Occurrence, error) {
	if len(s.Feeds) == 0 {
		return nil, nil
	}

	payloads, fetchErr := s.Fetcher.FetchAll(ctx, s.Feeds)
	errs := []error{fetchErr}

	var parsed []ics.Event
	for _, p := range payloads {
		events, err := ics.Parse(p.Feed, p.Body)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		parsed = append(parsed, events...)
	}

	exp, err := ics.Expand(parsed, ics.Window{
		Location:    s.Location,
		From:        from,
		To:          to,
		MaxPerEvent: s.MaxPerEvent,
	})
	if err != nil {
		return nil, errors.Join(append(errs, err)...)
	}
	if len(exp.Truncated) > 0 {
		appLog.Warn("ics occurrences truncated", "uids", len(exp.Truncated))
	}
	return exp.Occurrences, errors.Join(errs...)
}

// DiarySource serves daily statuses and therapies from configuration.
type DiarySource struct {
	Statuses  []diary.DailyStatus
	Therapies []diary.Therapy
	Location  *time.Location
}

func (s *DiarySource) Name() string { return "diary" }

func (s *DiarySource) Occurrences(_ context.Context, from, to time.Time) ([]model.Occurrence, error) {
	occs, err := diary.Occurrences(s.Statuses, s.Therapies, from, to, s.Location)
	if err != nil {
		return occs, fmt.Errorf("diary: %w", err)
	}
	return occs, nil
}

// StaticSource returns a fixed list of occurrences. It backs tests and
// one-off renders of prepared data.
type StaticSource struct {
	Label string
	Items []model.Occurrence
	Err   error
}

func (s *StaticSource) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

func (s *StaticSource) Occurrences(_ context.Context, from, to time.Time) ([]model.Occurrence, error) {
	var out []model.Occurrence
	for _, occ := range s.Items {
		if occ.Overlaps(from, to) {
			out = append(out, occ)
		}
	}
	return out, s.Err
}

// SourcesFromConfig wires the ICS and diary sources.
func SourcesFromConfig(cfg *config.Config) []Source {
	return []Source{
		NewICSSource(cfg, nil),
		&DiarySource{
			Statuses:  cfg.DailyStatus,
			Therapies: cfg.Therapy,
			Location:  cfg.Location(),
		},
	}
}
