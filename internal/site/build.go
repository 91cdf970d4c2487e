package site

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"ensemble/internal/catalog"
	"ensemble/internal/config"
	"ensemble/internal/ics"
	appLog "ensemble/internal/log"
)

// RenderPage renders one page of the catalog's current snapshot, classified
// against now, for the HTTP server.
func (r *Renderer) RenderPage(cat *catalog.Catalog, pageID string, now time.Time) ([]byte, error) {
	return r.renderPage(cat, pageID, now, CalendarHref)
}

func (r *Renderer) renderPage(cat *catalog.Catalog, pageID string, now time.Time, calendarHref func(string) string) ([]byte, error) {
	cfg := cat.Config()
	page, ok := cat.Snapshot().Page(pageID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownPage, pageID)
	}
	classified, err := cat.Classify(pageID, now)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	view := r.View(cfg.SiteName, cfg.Pages, page.Config, classified, page.Gallery, now)
	view.CalendarURL = calendarHref(pageID)
	if err := r.Render(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderCalendar exports a page's events, or every page's when pageID is
// empty, as an iCalendar feed.
func RenderCalendar(cat *catalog.Catalog, pageID string, now time.Time) ([]byte, error) {
	cfg := cat.Config()
	snap := cat.Snapshot()

	opts := ics.ExportOptions{
		Name:     cfg.SiteName,
		Scope:    pageID,
		Location: cat.Location(),
		Duration: cfg.EventDuration,
		Now:      now,
	}

	var buf bytes.Buffer
	if pageID != "" {
		page, ok := snap.Page(pageID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownPage, pageID)
		}
		opts.Name = cfg.SiteName + " " + page.Config.Title
		if err := ics.Export(&buf, page.Events, opts); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	// Merged feed: scope each event by its page so UIDs stay distinct.
	var merged []ics.ScopedEvent
	for _, p := range snap.Pages {
		for _, ev := range p.Events {
			merged = append(merged, ics.ScopedEvent{Scope: p.Config.ID, Event: ev})
		}
	}
	if err := ics.ExportScoped(&buf, merged, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Build writes every page with its calendar-<id>.ics, index.html (the first
// page) and the merged calendar.ics to dir. Each file is replaced atomically.
func (r *Renderer) Build(cat *catalog.Catalog, dir string, now time.Time) error {
	cfg := cat.Config()
	if len(cfg.Pages) == 0 {
		return errors.New("site: no pages configured")
	}

	for i, p := range cfg.Pages {
		html, err := r.renderPage(cat, p.ID, now, StaticCalendarHref)
		if err != nil {
			return fmt.Errorf("site: render %s: %w", p.ID, err)
		}
		if err := config.WriteFileAtomic(filepath.Join(dir, p.ID+".html"), html, 0o644); err != nil {
			return err
		}
		cal, err := RenderCalendar(cat, p.ID, now)
		if err != nil {
			return fmt.Errorf("site: render calendar %s: %w", p.ID, err)
		}
		if err := config.WriteFileAtomic(filepath.Join(dir, strings.TrimPrefix(StaticCalendarHref(p.ID), "/")), cal, 0o644); err != nil {
			return err
		}
		if i == 0 {
			if err := config.WriteFileAtomic(filepath.Join(dir, "index.html"), html, 0o644); err != nil {
				return err
			}
		}
	}

	cal, err := RenderCalendar(cat, "", now)
	if err != nil {
		return fmt.Errorf("site: render calendar: %w", err)
	}
	if err := config.WriteFileAtomic(filepath.Join(dir, "calendar.ics"), cal, 0o644); err != nil {
		return err
	}

	appLog.Info("static site built", "dir", dir, "pages", len(cfg.Pages))
	return nil
}
