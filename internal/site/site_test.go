package site

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
	"ensemble/internal/model"
	"ensemble/internal/schedule"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestFormatDate(t *testing.T) {
	tests := map[string]string{
		"2025-11-10": "November 10, 2025",
		"2025-1-5":   "January 5, 2025",
		"soon":       "soon",
	}
	for in, want := range tests {
		if got := FormatDate(in); got != want {
			t.Errorf("FormatDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderConcertPage(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	pages := []config.PageConfig{
		{ID: "concerts", Title: "Concerts", Layout: config.LayoutConcert},
		{ID: "outreach", Title: "Outreach", Layout: config.LayoutEvent},
	}
	classified := schedule.Classified{
		Upcoming: []model.Event{{
			Date:       "2025-11-10",
			Time:       "3:00 PM",
			Name:       "Fall Recital",
			Location:   "St. Mark's",
			GoogleMaps: "https://maps.example/stmarks",
			Info:       "https://tickets.example/fall",
			Note:       "Contact us for **tickets** <script>alert(1)</script>",
			Program:    []model.ProgramItem{{Composer: "Haydn"}, {Composer: "Shostakovich"}},
		}},
	}

	var sb strings.Builder
	view := r.View("Test Quartet", pages, pages[0], classified, nil, testNow)
	if err := r.Render(&sb, view); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := sb.String()

	for _, want := range []string{
		"<title>Concerts | Test Quartet</title>",
		`data-ready="true"`,
		"November 10, 2025",
		"3:00 PM",
		`<a href="https://maps.example/stmarks"`,
		"<strong>tickets</strong>",
		"Haydn</span><span class=\"text-gray-400 mx-1\">&bull;</span><span class=\"text-gray-700\">Shostakovich",
		"More Info",
		"No concerts scheduled.",
		`href="/concerts.html" class="nav-link text-gray-900 font-medium"`,
		`href="/outreach.html" class="nav-link text-gray-500"`,
		"&copy; 2025 Test Quartet",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page missing %q", want)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Error("raw HTML from note leaked into page")
	}
}

func TestRenderEventPageWithGallery(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	page := config.PageConfig{ID: "community", Title: "Community", Layout: config.LayoutEvent}
	classified := schedule.Classified{
		Past: []model.Event{{Date: "2025-01-05", Name: "School Visit", Location: "Lincoln Elementary", Type: "Workshop"}},
	}
	gallery := []model.GalleryImage{{Src: "a.webp", FullSize: "a-full.webp", Alt: "Greeting students", Caption: "After the concert"}}

	var sb strings.Builder
	if err := r.Render(&sb, r.View("Q", []config.PageConfig{page}, page, classified, gallery, testNow)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := sb.String()

	for _, want := range []string{
		"No events scheduled.",
		"January 5, 2025",
		"Workshop",
		`id="photo-gallery"`,
		`<img src="a.webp" alt="Greeting students"`,
		"After the concert",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page missing %q", want)
		}
	}
}

func newCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "concerts.json")
	doc := `{"concerts":[{"date":"2025-06-20","time":"7:30 PM","name":"Solstice"},{"date":"2025-05-01","name":"May Day"}]}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.SiteName = "Test Quartet"
	cfg.Pages = []config.PageConfig{{ID: "concerts", Title: "Concerts", Layout: config.LayoutConcert, Feeds: []config.FeedConfig{{ID: "c", Path: path}}}}
	cfg.Normalize()

	cat := catalog.New(cfg, time.UTC, feed.NewFetcher(filepath.Join(dir, "cache")), nil).
		WithClock(func() time.Time { return testNow })
	if _, err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return cat
}

func TestBuild(t *testing.T) {
	cat := newCatalog(t)
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	out := t.TempDir()
	if err := r.Build(cat, out, testNow); err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, name := range []string{"index.html", "concerts.html", "calendar.ics", "calendar-concerts.ics"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	page, _ := os.ReadFile(filepath.Join(out, "concerts.html"))
	up := strings.Index(string(page), "Solstice")
	past := strings.Index(string(page), "May Day")
	if up < 0 || past < 0 || up > past {
		t.Errorf("expected Solstice in upcoming before May Day in past")
	}
	if !strings.Contains(string(page), `href="/calendar-concerts.ics"`) {
		t.Error("static page should link its own calendar file")
	}
	if strings.Contains(string(page), "/calendar.ics?page=") {
		t.Error("static page links the server-only calendar route")
	}
	pageCal, _ := os.ReadFile(filepath.Join(out, "calendar-concerts.ics"))
	if !strings.Contains(string(pageCal), "X-WR-CALNAME:Test Quartet Concerts") {
		t.Errorf("page calendar not scoped to the page:\n%s", pageCal)
	}
	cal, _ := os.ReadFile(filepath.Join(out, "calendar.ics"))
	if strings.Count(string(cal), "BEGIN:VEVENT") != 2 {
		t.Errorf("calendar should contain 2 events:\n%s", cal)
	}
}

func TestRenderPageLinksServedCalendar(t *testing.T) {
	cat := newCatalog(t)
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	html, err := r.RenderPage(cat, "concerts", testNow)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if !strings.Contains(string(html), `href="/calendar.ics?page=concerts"`) {
		t.Error("served page should link the calendar route")
	}
}

func TestRenderPageUnknown(t *testing.T) {
	cat := newCatalog(t)
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	if _, err := r.RenderPage(cat, "missing", testNow); err == nil {
		t.Error("expected error for unknown page")
	}
	if _, err := RenderCalendar(cat, "missing", testNow); err == nil {
		t.Error("expected error for unknown calendar page")
	}
}
