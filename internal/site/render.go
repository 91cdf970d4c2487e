// Package site renders the ensemble's pages.
package site

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"ensemble/internal/config"
	"ensemble/internal/model"
	"ensemble/internal/schedule"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// displayDateLayout renders dates like "November 10, 2025".
const displayDateLayout = "January 2, 2006"

// NavLink is one navbar entry.
type NavLink struct {
	Title  string
	Href   string
	Active bool
}

// Card is the view of one event.
type Card struct {
	Date     string
	Time     string
	Name     string
	Location string
	MapsURL  string
	InfoURL  string
	Type     string
	Note     template.HTML
	Program  []string
}

// PageView is everything a page template needs.
type PageView struct {
	SiteName    string
	Title       string
	Layout      string
	Intro       template.HTML
	Nav         []NavLink
	Upcoming    []Card
	Past        []Card
	Gallery     []model.GalleryImage
	EmptyText   string
	CalendarURL string
	Year        int
	GeneratedAt time.Time
}

// bucketView feeds the "bucket" template one list of cards.
type bucketView struct {
	Layout string
	Events []Card
	Empty  string
}

// Renderer turns classified events into HTML pages.
type Renderer struct {
	tmpl *template.Template
	md   goldmark.Markdown
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"bucket": func(layout string, events []Card, empty string) bucketView {
			return bucketView{Layout: layout, Events: events, Empty: empty}
		},
	}
	tmpl, err := template.New("site").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("site: parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, md: goldmark.New()}, nil
}

// PageHref is the URL path of a page.
func PageHref(id string) string {
	return "/" + id + ".html"
}

// CalendarHref is the served subscription feed of a page.
func CalendarHref(id string) string {
	return "/calendar.ics?page=" + id
}

// StaticCalendarHref is the per-page feed file written by Build.
func StaticCalendarHref(id string) string {
	return "/calendar-" + id + ".ics"
}

// View assembles the view of page, classified against the instant the
// caller chose.
func (r *Renderer) View(siteName string, pages []config.PageConfig, page config.PageConfig, classified schedule.Classified, gallery []model.GalleryImage, now time.Time) PageView {
	v := PageView{
		SiteName:    siteName,
		Title:       page.Title,
		Layout:      page.Layout,
		Intro:       r.markdown(page.Intro),
		Upcoming:    r.cards(classified.Upcoming),
		Past:        r.cards(classified.Past),
		Gallery:     gallery,
		EmptyText:   "No events scheduled.",
		CalendarURL: CalendarHref(page.ID),
		Year:        now.Year(),
		GeneratedAt: now,
	}
	if page.Layout == config.LayoutConcert {
		v.EmptyText = "No concerts scheduled."
	}
	for _, p := range pages {
		v.Nav = append(v.Nav, NavLink{Title: p.Title, Href: PageHref(p.ID), Active: p.ID == page.ID})
	}
	return v
}

// Render writes the full HTML document for v.
func (r *Renderer) Render(w io.Writer, v PageView) error {
	return r.tmpl.ExecuteTemplate(w, "layout", v)
}

func (r *Renderer) cards(events []model.Event) []Card {
	out := make([]Card, 0, len(events))
	for _, ev := range events {
		c := Card{
			Date:     FormatDate(ev.Date),
			Time:     ev.Time,
			Name:     ev.Name,
			Location: ev.Location,
			MapsURL:  ev.GoogleMaps,
			InfoURL:  ev.Info,
			Type:     ev.Type,
			Note:     r.markdown(ev.Note),
		}
		for _, p := range ev.Program {
			if p.Composer != "" {
				c.Program = append(c.Program, p.Composer)
			}
		}
		out = append(out, c)
	}
	return out
}

// markdown renders note and intro copy. goldmark drops raw HTML by
// default.
func (r *Renderer) markdown(src string) template.HTML {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

// FormatDate renders a YYYY-MM-DD date for display. The date is read as a
// calendar date, so no timezone can shift it to the previous day. Unreadable
// input is returned unchanged.
func FormatDate(date string) string {
	d, err := schedule.ParseDate(date, time.UTC)
	if err != nil {
		return date
	}
	return d.Format(displayDateLayout)
}
