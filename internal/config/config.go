package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"daylayout/internal/diary"
	"daylayout/internal/layout"
	appLog "daylayout/internal/log"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// SourceID returns ID, falling back to Name and then URL.
func (c ICSConfig) SourceID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LayoutConfig tunes the column layout engine.
type LayoutConfig struct {
	// MinimumDurationMinutes is the shortest slot a timed event occupies
	// when deciding overlaps.
	MinimumDurationMinutes int `yaml:"minimum_duration_minutes" json:"minimum_duration_minutes"`

	// MaxColumns caps the number of side-by-side columns (1..64).
	MaxColumns int `yaml:"max_columns" json:"max_columns"`

	// Saturation is "clamp" (default) or "reject".
	Saturation string `yaml:"saturation" json:"saturation"`

	// Ordering is "sort" (default) or "validate".
	Ordering string `yaml:"ordering" json:"ordering"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as canonical display zone (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic source refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the number of days laid out by default.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// ShowAllDay toggles the all-day section in the rendered views.
	ShowAllDay bool `yaml:"show_all_day" json:"show_all_day"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Layout LayoutConfig `yaml:"layout" json:"layout"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// SnapshotPath is where -snapshot writes the PNG day view.
	SnapshotPath string `yaml:"snapshot_path" json:"snapshot_path"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// DailyStatus and Therapy are personal entries shown next to the
	// calendar events.
	DailyStatus []diary.DailyStatus `yaml:"daily_status" json:"daily_status"`
	Therapy     []diary.Therapy     `yaml:"therapy" json:"therapy"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Asia/Seoul"
	defaultRefreshCron = "*/15 * * * *"
	defaultHorizonDays = 7
	defaultCacheDir    = "/var/lib/daylayout/ics-cache"
	defaultSnapshot    = "/var/lib/daylayout/day.png"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		Timezone:     defaultTimezone,
		RefreshCron:  defaultRefreshCron,
		HorizonDays:  defaultHorizonDays,
		ShowAllDay:   true,
		LogLevel:     "info",
		Layout:       LayoutConfig{MinimumDurationMinutes: 30, MaxColumns: layout.ColumnLimit, Saturation: "clamp", Ordering: "sort"},
		CacheDir:     defaultCacheDir,
		SnapshotPath: defaultSnapshot,
		ICS:          []ICSConfig{},
		DailyStatus:  []diary.DailyStatus{},
		Therapy:      []diary.Therapy{},
		BasicAuth:    nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil || c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = defaultSnapshot
	}

	if c.Layout.MinimumDurationMinutes < 0 {
		c.Layout.MinimumDurationMinutes = 0
	}
	if c.Layout.MaxColumns <= 0 || c.Layout.MaxColumns > layout.ColumnLimit {
		c.Layout.MaxColumns = layout.ColumnLimit
	}
	// Unknown values are left for Validate to report.
	if c.Layout.Saturation == "" {
		c.Layout.Saturation = "clamp"
	}
	if c.Layout.Ordering == "" {
		c.Layout.Ordering = "sort"
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.DailyStatus == nil {
		c.DailyStatus = []diary.DailyStatus{}
	}
	if c.Therapy == nil {
		c.Therapy = []diary.Therapy{}
	}
}

// Validate reports configuration that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: timezone %q: %w", c.Timezone, err))
	}
	switch c.Layout.Saturation {
	case "clamp", "reject":
	default:
		errs = append(errs, fmt.Errorf("config: layout.saturation %q: want clamp or reject", c.Layout.Saturation))
	}
	switch c.Layout.Ordering {
	case "sort", "validate":
	default:
		errs = append(errs, fmt.Errorf("config: layout.ordering %q: want sort or validate", c.Layout.Ordering))
	}
	for i, src := range c.ICS {
		if src.URL == "" {
			errs = append(errs, fmt.Errorf("config: ics[%d]: url is empty", i))
		}
	}
	for i, ds := range c.DailyStatus {
		if err := ds.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: daily_status[%d]: %w", i, err))
		}
	}
	for i, th := range c.Therapy {
		if err := th.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: therapy[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// LayoutOptions converts the layout section into engine options.
func (c *Config) LayoutOptions() layout.Options {
	opts := layout.Options{
		MinimumDuration: time.Duration(c.Layout.MinimumDurationMinutes) * time.Minute,
		MaxColumns:      c.Layout.MaxColumns,
	}
	if c.Layout.Saturation == "reject" {
		opts.Saturation = layout.SaturateReject
	}
	if c.Layout.Ordering == "validate" {
		opts.Ordering = layout.OrderValidate
	} else {
		opts.Ordering = layout.OrderSort
	}
	return opts
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Start from defaults so that booleans missing from the file (e.g.
	// show_all_day) keep their default instead of the zero value.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".daylayout-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
