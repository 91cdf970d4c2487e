package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Page layouts understood by the renderer.
const (
	LayoutConcert = "concert"
	LayoutEvent   = "event"
)

// FeedConfig describes one event document. Exactly one of Path or URL is
// expected; Path wins when both are set.
type FeedConfig struct {
	ID   string `yaml:"id" json:"id"`
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	URL  string `yaml:"url,omitempty" json:"url,omitempty"`
}

// ICSConfig describes an external iCalendar whose events are merged into a
// page.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// PageConfig is one navigable page of the site.
type PageConfig struct {
	// ID is used in URLs (/<id>.html) and API queries.
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	// Layout selects the card style: "concert" or "event".
	Layout string `yaml:"layout" json:"layout"`
	// Intro is Markdown shown above the event lists.
	Intro string `yaml:"intro,omitempty" json:"intro,omitempty"`

	Feeds     []FeedConfig `yaml:"feeds" json:"feeds"`
	Calendars []ICSConfig  `yaml:"calendars,omitempty" json:"calendars,omitempty"`

	// Gallery is an optional path to a JSON array of gallery images.
	Gallery string `yaml:"gallery,omitempty" json:"gallery,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for admin endpoints.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// PreviewConfig controls the headless-browser page capture.
type PreviewConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Page    string `yaml:"page" json:"page"`
	Path    string `yaml:"path" json:"path"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
}

// Config is the top-level application configuration.
type Config struct {
	// SiteName appears in the navbar, footer and calendar name.
	SiteName string `yaml:"site_name" json:"site_name"`

	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone in which event dates and times are read.
	// Empty means the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron schedule (e.g. "*/15 * * * *") for reloading
	// feeds and rebuilding the static output.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays / BackfillDays bound recurring ICS imports.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	// EventDuration is the DTEND offset for timed events in the exported feed.
	EventDuration time.Duration `yaml:"event_duration" json:"event_duration"`

	// CacheDir holds HTTP caches for remote feeds and calendars.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// AssetsDir is served under /assets/.
	AssetsDir string `yaml:"assets_dir" json:"assets_dir"`
	// OutputDir, when set, receives a static build after each refresh.
	OutputDir string `yaml:"output_dir,omitempty" json:"output_dir,omitempty"`

	Pages []PageConfig `yaml:"pages" json:"pages"`

	Preview PreviewConfig `yaml:"preview" json:"preview"`

	// BasicAuth, if non-nil, protects admin endpoints.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration mirroring the
// site's stock data layout.
func DefaultConfig() *Config {
	c := &Config{
		SiteName:      "Astrodon Quartet",
		Listen:        "127.0.0.1:8080",
		LogLevel:      "info",
		RefreshCron:   "*/15 * * * *",
		HorizonDays:   365,
		BackfillDays:  365,
		EventDuration: 2 * time.Hour,
		CacheDir:      "./var/cache",
		AssetsDir:     "./assets",
		Pages: []PageConfig{
			{
				ID:     "concerts",
				Title:  "Concerts",
				Layout: LayoutConcert,
				Feeds:  []FeedConfig{{ID: "concerts", Path: "assets/data/concerts-data.json"}},
			},
			{
				ID:     "outreach",
				Title:  "Outreach",
				Layout: LayoutEvent,
				Feeds:  []FeedConfig{{ID: "outreach", Path: "assets/data/outreach-data.json"}},
			},
			{
				ID:      "community",
				Title:   "Community",
				Layout:  LayoutEvent,
				Feeds:   []FeedConfig{{ID: "community", Path: "assets/data/outreach-data.json"}},
				Gallery: "assets/data/gallery.json",
			},
		},
		Preview: PreviewConfig{
			Page:   "concerts",
			Path:   "./var/preview.png",
			Width:  1200,
			Height: 630,
		},
	}
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.SiteName == "" {
		c.SiteName = def.SiteName
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.EventDuration <= 0 {
		c.EventDuration = def.EventDuration
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.AssetsDir == "" {
		c.AssetsDir = def.AssetsDir
	}
	if c.Pages == nil {
		c.Pages = def.Pages
	}
	for i := range c.Pages {
		p := &c.Pages[i]
		switch p.Layout {
		case LayoutConcert, LayoutEvent:
		default:
			// Unknown or empty layout; the plain event card is the safe choice.
			p.Layout = LayoutEvent
		}
		if p.Title == "" {
			p.Title = p.ID
		}
		for j := range p.Feeds {
			if p.Feeds[j].ID == "" {
				p.Feeds[j].ID = p.ID
			}
		}
		for j := range p.Calendars {
			cal := &p.Calendars[j]
			if cal.ID == "" {
				if cal.Name != "" {
					cal.ID = cal.Name
				} else {
					cal.ID = cal.URL
				}
			}
		}
	}
	if c.Preview.Page == "" {
		c.Preview.Page = def.Preview.Page
	}
	if c.Preview.Path == "" {
		c.Preview.Path = def.Preview.Path
	}
	if c.Preview.Width <= 0 {
		c.Preview.Width = def.Preview.Width
	}
	if c.Preview.Height <= 0 {
		c.Preview.Height = def.Preview.Height
	}
}

// Page returns the page with the given ID.
func (c *Config) Page(id string) (PageConfig, bool) {
	for _, p := range c.Pages {
		if p.ID == id {
			return p, true
		}
	}
	return PageConfig{}, false
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// Environment variables that override file values.
const (
	EnvListen   = "ENSEMBLE_LISTEN"
	EnvTimezone = "ENSEMBLE_TIMEZONE"
	EnvLogLevel = "ENSEMBLE_LOG_LEVEL"
	EnvOutput   = "ENSEMBLE_OUTPUT_DIR"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnv overrides config fields from ENSEMBLE_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvOutput); v != "" {
		c.OutputDir = v
	}
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

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data next to path and renames it into place, so
// readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".ensemble-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
