package agenda

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"daylayout/internal/clock"
	appLog "daylayout/internal/log"
)

// MaxCachedViews bounds the number of views a Cache holds.
const MaxCachedViews = 32

// Cache keeps recently built views so HTTP requests do not refetch every
// feed. Entries expire after TTL and are pruned whenever a new view is
// stored; Refresh rebuilds the default window and drops everything else.
// Concurrent misses on one window share a single build.
type Cache struct {
	builder *Builder
	ttl     time.Duration
	horizon int
	clock   clock.Clock

	flights singleflight.Group

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	view      *View
	updatedAt time.Time
}

// NewCache wraps builder. horizon is the number of days Refresh lays out.
func NewCache(builder *Builder, ttl time.Duration, horizon int) *Cache {
	clk := builder.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	if horizon <= 0 {
		horizon = 1
	}
	return &Cache{
		builder: builder,
		ttl:     ttl,
		horizon: horizon,
		clock:   clk,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) key(day time.Time, days int) string {
	loc := c.builder.Location
	if loc == nil {
		loc = time.Local
	}
	return fmt.Sprintf("%s+%d", day.In(loc).Format(time.DateOnly), days)
}

// Horizon returns the default number of days.
func (c *Cache) Horizon() int {
	return c.horizon
}

// Today returns the current time in the builder's location.
func (c *Cache) Today() time.Time {
	loc := c.builder.Location
	if loc == nil {
		loc = time.Local
	}
	return c.clock.Now().In(loc)
}

func (c *Cache) fresh(k string, now time.Time) (*View, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[k]
	if !ok || now.Sub(e.updatedAt) >= c.ttl {
		return nil, false
	}
	return e.view, true
}

// Get returns the view for [day, day+days), building it when missing or
// older than the TTL.
func (c *Cache) Get(ctx context.Context, day time.Time, days int) (*View, error) {
	k := c.key(day, days)
	if view, ok := c.fresh(k, c.clock.Now()); ok {
		return view, nil
	}

	v, err, _ := c.flights.Do(k, func() (any, error) {
		now := c.clock.Now()
		// A flight that just finished may have stored it.
		if view, ok := c.fresh(k, now); ok {
			return view, nil
		}
		view, err := c.builder.Build(ctx, day, days)
		if err != nil {
			return nil, err
		}
		c.store(k, view, now)
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*View), nil
}

// store adds a view, dropping expired entries and, past MaxCachedViews,
// the oldest ones.
func (c *Cache) store(k string, view *View, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if now.Sub(e.updatedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
	for len(c.entries) >= MaxCachedViews {
		oldest, first := "", true
		for key, e := range c.entries {
			if first || e.updatedAt.Before(c.entries[oldest].updatedAt) {
				oldest, first = key, false
			}
		}
		delete(c.entries, oldest)
	}
	c.entries[k] = cacheEntry{view: view, updatedAt: now}
}

// Refresh rebuilds the default window starting today and evicts every
// other entry. It is driven by the refresh schedule.
func (c *Cache) Refresh(ctx context.Context) error {
	today := c.Today()
	view, err := c.builder.Build(ctx, today, c.horizon)
	if err != nil {
		appLog.Error("agenda: refresh failed", err)
		return err
	}

	c.mu.Lock()
	c.entries = map[string]cacheEntry{
		c.key(today, c.horizon): {view: view, updatedAt: c.clock.Now()},
	}
	c.mu.Unlock()

	appLog.Info("agenda: refreshed",
		"start", view.Start.Format(time.DateOnly),
		"days", view.Days,
		"all_day", len(view.AllDay),
		"timed", len(view.Timed),
	)
	return nil
}

// Len returns the number of cached views.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
