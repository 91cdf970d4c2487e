package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Pages) != 3 || cfg.Pages[0].ID != "concerts" {
		t.Fatalf("unexpected default pages: %+v", cfg.Pages)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600 permissions, got %o", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.EventDuration != 2*time.Hour {
		t.Errorf("event duration not round-tripped: %s", again.EventDuration)
	}
}

func TestLoadNormalizesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
site_name: Test Ensemble
timezone: America/Chicago
event_duration: 90m
pages:
  - id: shows
    layout: gala
    feeds:
      - path: data/shows.json
    calendars:
      - url: https://example.com/venue.ics
        name: venue
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" || cfg.RefreshCron != "*/15 * * * *" {
		t.Errorf("defaults not applied: listen=%s refresh=%s", cfg.Listen, cfg.RefreshCron)
	}
	if cfg.EventDuration != 90*time.Minute {
		t.Errorf("event_duration = %s", cfg.EventDuration)
	}

	p, ok := cfg.Page("shows")
	if !ok {
		t.Fatal("page shows missing")
	}
	if p.Layout != LayoutEvent {
		t.Errorf("unknown layout should fall back to %q, got %q", LayoutEvent, p.Layout)
	}
	if p.Title != "shows" || p.Feeds[0].ID != "shows" || p.Calendars[0].ID != "venue" {
		t.Errorf("page defaults not applied: %+v", p)
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	if loc.String() != "America/Chicago" {
		t.Errorf("location = %s", loc)
	}
}

func TestApplyEnvAndEnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("ENSEMBLE_LISTEN=0.0.0.0:9000\nENSEMBLE_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvListen, "")
	t.Setenv(EnvLogLevel, "")
	os.Unsetenv(EnvListen)
	os.Unsetenv(EnvLogLevel)
	t.Setenv(EnvTimezone, "UTC")

	if err := LoadEnvFile(envPath); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if cfg.Listen != "0.0.0.0:9000" || cfg.LogLevel != "debug" || cfg.Timezone != "UTC" {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "index.html")
	if err := WriteFileAtomic(path, []byte("<html></html>"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "<html></html>" {
		t.Fatalf("unexpected content %q err=%v", data, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}
