package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ensemble/internal/catalog"
	"ensemble/internal/config"
	"ensemble/internal/feed"
	"ensemble/internal/site"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// newPartialPipeline has a valid concerts page and a community page whose
// gallery file is missing, so every refresh partly fails.
func newPartialPipeline(t *testing.T) (*pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	concerts := filepath.Join(dir, "concerts.json")
	if err := os.WriteFile(concerts, []byte(`{"concerts":[{"date":"2025-07-01","time":"7:00 PM","name":"Summer Serenade"}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	outreach := filepath.Join(dir, "outreach.json")
	if err := os.WriteFile(outreach, []byte(`{"upcoming":[],"past":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Pages = []config.PageConfig{
		{ID: "concerts", Title: "Concerts", Layout: config.LayoutConcert, Feeds: []config.FeedConfig{{Path: concerts}}},
		{ID: "community", Title: "Community", Layout: config.LayoutEvent, Feeds: []config.FeedConfig{{Path: outreach}},
			Gallery: filepath.Join(dir, "missing-gallery.json")},
	}
	cfg.Normalize()

	cat := catalog.New(cfg, time.UTC, feed.NewFetcher(filepath.Join(dir, "cache")), nil).
		WithClock(func() time.Time { return testNow })
	r, err := site.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	out := filepath.Join(dir, "public")
	return &pipeline{cat: cat, renderer: r, outputDir: out}, out
}

func TestRunOnceBuildsAfterPartialRefresh(t *testing.T) {
	p, out := newPartialPipeline(t)

	if err := runOnce(context.Background(), p); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	html, err := os.ReadFile(filepath.Join(out, "concerts.html"))
	if err != nil {
		t.Fatalf("concerts.html not built: %v", err)
	}
	if !strings.Contains(string(html), "Summer Serenade") {
		t.Error("built page is missing the loaded event")
	}
	if _, err := os.Stat(filepath.Join(out, "community.html")); err != nil {
		t.Errorf("community.html not built: %v", err)
	}
}

func TestRunBuildsAndReportsRefreshErrors(t *testing.T) {
	p, out := newPartialPipeline(t)

	err := p.run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing-gallery.json") {
		t.Errorf("run error = %v, want the gallery failure", err)
	}
	if _, err := os.Stat(filepath.Join(out, "concerts.html")); err != nil {
		t.Errorf("concerts.html not built: %v", err)
	}
}

func TestRunOnceFailsWhenBuildFails(t *testing.T) {
	p, out := newPartialPipeline(t)
	// A regular file where the output directory should be.
	if err := os.WriteFile(out, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := runOnce(context.Background(), p); err == nil {
		t.Error("expected build error")
	}
}

func TestRunOnceWithoutOutputDir(t *testing.T) {
	p, _ := newPartialPipeline(t)
	p.outputDir = ""
	if err := runOnce(context.Background(), p); err != nil {
		t.Errorf("runOnce: %v", err)
	}
	if _, ok := p.cat.Snapshot().Page("concerts"); !ok {
		t.Error("refresh did not publish a snapshot")
	}
}

func TestCheckPreview(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := checkPreview(cfg); err != nil {
		t.Errorf("disabled preview: %v", err)
	}

	cfg.Preview.Enabled = true
	cfg.Preview.Page = "concerts"
	if err := checkPreview(cfg); err != nil {
		t.Errorf("valid preview page: %v", err)
	}

	cfg.Preview.Page = "gallery"
	if err := checkPreview(cfg); err == nil {
		t.Error("expected error for unknown preview page")
	}
}
