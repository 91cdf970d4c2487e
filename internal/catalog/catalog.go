// Package catalog keeps the site's current event data.
//
// A refresh loads every page's feeds and imported calendars, drops events
// whose date cannot be read, and swaps in a new immutable Snapshot.
// Classification into upcoming and past happens on demand against a caller
// supplied instant, so buckets stay correct between refreshes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ensemble/internal/config"
	"ensemble/internal/feed"
	"ensemble/internal/ics"
	appLog "ensemble/internal/log"
	"ensemble/internal/metrics"
	"ensemble/internal/model"
	"ensemble/internal/schedule"
)

var ErrUnknownPage = errors.New("unknown page")

// Page is one page's data as of a refresh.
type Page struct {
	Config   config.PageConfig
	Events   []model.Event
	Gallery  []model.GalleryImage
	Rejected int
}

// Snapshot is the result of a refresh. It is never modified after
// publication.
type Snapshot struct {
	GeneratedAt time.Time
	Pages       []Page
}

// Page returns the page with the given ID.
func (s *Snapshot) Page(id string) (Page, bool) {
	if s == nil {
		return Page{}, false
	}
	for _, p := range s.Pages {
		if p.Config.ID == id {
			return p, true
		}
	}
	return Page{}, false
}

// Catalog owns the current snapshot.
type Catalog struct {
	cfg     *config.Config
	loc     *time.Location
	fetcher *feed.Fetcher
	metrics *metrics.Metrics
	now     func() time.Time

	refreshMu sync.Mutex

	mu   sync.RWMutex
	snap *Snapshot
}

// New creates a Catalog. m may be nil.
func New(cfg *config.Config, loc *time.Location, fetcher *feed.Fetcher, m *metrics.Metrics) *Catalog {
	if loc == nil {
		loc = time.Local
	}
	return &Catalog{
		cfg:     cfg,
		loc:     loc,
		fetcher: fetcher,
		metrics: m,
		now:     time.Now,
		snap:    &Snapshot{},
	}
}

// WithClock replaces the wall clock, for tests.
func (c *Catalog) WithClock(now func() time.Time) *Catalog {
	c.now = now
	return c
}

// Now is the current instant in the site timezone.
func (c *Catalog) Now() time.Time {
	return c.now().In(c.loc)
}

// Location is the site timezone.
func (c *Catalog) Location() *time.Location { return c.loc }

// Config returns the configuration the catalog was built with.
func (c *Catalog) Config() *config.Config { return c.cfg }

// Snapshot returns the latest published snapshot.
func (c *Catalog) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Classify splits a page's events relative to now.
func (c *Catalog) Classify(pageID string, now time.Time) (schedule.Classified, error) {
	page, ok := c.Snapshot().Page(pageID)
	if !ok {
		return schedule.Classified{}, fmt.Errorf("%w: %q", ErrUnknownPage, pageID)
	}
	out, err := schedule.Classify(page.Events, now)
	if err != nil {
		return schedule.Classified{}, err
	}
	if c.metrics != nil {
		c.metrics.SetPageEvents(pageID, len(out.Upcoming), len(out.Past))
	}
	return out, nil
}

// Refresh reloads all pages and publishes a new snapshot. Individual feed
// failures do not abort the refresh: a page whose sources all fail keeps its
// previous events. The returned error joins every failure seen.
func (c *Catalog) Refresh(ctx context.Context) (*Snapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := time.Now()
	prev := c.Snapshot()
	now := c.Now()

	next := &Snapshot{GeneratedAt: now}
	var errs []error
	for _, pc := range c.cfg.Pages {
		old, _ := prev.Page(pc.ID)
		page, pageErrs := c.loadPage(ctx, pc, old, now)
		next.Pages = append(next.Pages, page)
		errs = append(errs, pageErrs...)

		if c.metrics != nil {
			c.metrics.AddRejected(pc.ID, page.Rejected)
			c.metrics.AddFeedErrors(pc.ID, len(pageErrs))
		}
	}

	c.mu.Lock()
	c.snap = next
	c.mu.Unlock()

	err := errors.Join(errs...)
	if c.metrics != nil {
		c.metrics.ObserveRefresh(start, err)
	}
	appLog.Info("catalog refreshed",
		"pages", len(next.Pages),
		"errors", len(errs),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return next, err
}

func (c *Catalog) loadPage(ctx context.Context, pc config.PageConfig, old Page, now time.Time) (Page, []error) {
	page := Page{Config: pc}
	var errs []error
	loaded := 0

	sources := make([]feed.Source, 0, len(pc.Feeds))
	for _, f := range pc.Feeds {
		sources = append(sources, feed.Source{ID: f.ID, Path: f.Path, URL: f.URL})
	}
	results, fetchErrs := c.fetcher.FetchAll(ctx, sources)
	errs = append(errs, fetchErrs...)

	var events []model.Event
	for _, res := range results {
		evs, err := feed.Decode(res.Body)
		if err != nil {
			appLog.Error("feed decode failed", err, "page", pc.ID, "id", res.Source.ID)
			errs = append(errs, fmt.Errorf("%s: %w", res.Source.ID, err))
			continue
		}
		loaded++
		events = append(events, evs...)
	}

	for _, cal := range pc.Calendars {
		evs, err := c.importCalendar(ctx, cal, now)
		if err != nil {
			appLog.Error("calendar import failed", err, "page", pc.ID, "id", cal.ID, "url", feed.RedactURL(cal.URL))
			errs = append(errs, fmt.Errorf("%s: %w", cal.ID, err))
			continue
		}
		loaded++
		events = append(events, evs...)
	}

	if loaded == 0 && len(pc.Feeds)+len(pc.Calendars) > 0 {
		appLog.Warn("no source loaded; keeping previous events", "page", pc.ID, "previous", len(old.Events))
		page.Events = old.Events
	} else {
		page.Events, page.Rejected = validEvents(pc.ID, events)
	}

	page.Gallery = old.Gallery
	if pc.Gallery != "" {
		imgs, err := c.loadGallery(ctx, pc.Gallery)
		if err != nil {
			appLog.Error("gallery load failed", err, "page", pc.ID, "path", pc.Gallery)
			errs = append(errs, fmt.Errorf("%s gallery: %w", pc.ID, err))
		} else {
			page.Gallery = imgs
		}
	}

	return page, errs
}

func (c *Catalog) importCalendar(ctx context.Context, cal config.ICSConfig, now time.Time) ([]model.Event, error) {
	res, err := c.fetcher.FetchOne(ctx, feed.Source{ID: cal.ID, URL: cal.URL})
	if err != nil {
		return nil, err
	}
	parsed, err := ics.ParseICS(cal.ID, res.Body)
	if err != nil {
		return nil, err
	}
	expanded, err := ics.Expand(parsed, ics.ExpandConfig{
		DisplayLocation: c.loc,
		RangeStart:      now.AddDate(0, 0, -c.cfg.BackfillDays),
		RangeEnd:        now.AddDate(0, 0, c.cfg.HorizonDays),
	})
	if err != nil {
		return nil, err
	}
	return expanded.Events, nil
}

func (c *Catalog) loadGallery(ctx context.Context, path string) ([]model.GalleryImage, error) {
	res, err := c.fetcher.FetchOne(ctx, feed.Source{ID: "gallery", Path: path})
	if err != nil {
		return nil, err
	}
	return feed.DecodeGallery(res.Body)
}

// validEvents drops events whose date cannot be classified.
func validEvents(pageID string, events []model.Event) ([]model.Event, int) {
	out := make([]model.Event, 0, len(events))
	rejected := 0
	for _, ev := range events {
		if err := schedule.Validate(ev); err != nil {
			rejected++
			appLog.Warn("event skipped", "page", pageID, "name", ev.Name, "date", ev.Date, "reason", err.Error())
			continue
		}
		out = append(out, ev)
	}
	return out, rejected
}
