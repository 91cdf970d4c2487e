package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"ensemble/internal/catalog"
	"ensemble/internal/config"
	appLog "ensemble/internal/log"
	"ensemble/internal/metrics"
	"ensemble/internal/schedule"
	"ensemble/internal/site"
)

// Server serves the rendered pages, the events API, the calendar feed and
// metrics.
type Server struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	renderer *site.Renderer
	metrics  *metrics.Metrics
	mux      *http.ServeMux

	// refresh is called by POST /api/refresh; it defaults to a plain catalog
	// refresh.
	refresh func(ctx context.Context) error
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, cat *catalog.Catalog, r *site.Renderer, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		catalog:  cat,
		renderer: r,
		metrics:  m,
		mux:      http.NewServeMux(),
	}
	s.refresh = func(ctx context.Context) error {
		_, err := cat.Refresh(ctx)
		return err
	}
	s.registerRoutes()
	return s
}

// OnRefresh replaces what POST /api/refresh runs, so the caller can rebuild
// static output alongside the catalog.
func (s *Server) OnRefresh(fn func(ctx context.Context) error) {
	s.refresh = fn
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handle(pattern, route string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.metrics != nil {
		handler = s.metrics.Instrument(route, handler)
	}
	s.mux.Handle(pattern, handler)
}

func (s *Server) registerRoutes() {
	s.handle("GET /health", "health", s.handleHealth)
	s.handle("GET /api/events", "api_events", s.handleEvents)
	s.handle("POST /api/refresh", "api_refresh", s.requireAuth(s.handleRefresh))
	s.handle("GET /calendar.ics", "calendar", s.handleCalendar)
	s.handle("GET /preview.png", "preview", s.handlePreview)
	s.handle("GET /", "page", s.handlePage)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.cfg.AssetsDir != "" {
		s.mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(s.cfg.AssetsDir))))
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials mean auth is off.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// requireAuth wraps admin handlers with HTTP Basic Auth when configured.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.basicAuthEnabled() {
			next(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, s.cfg.BasicAuth.Username) || !secureCompare(p, s.cfg.BasicAuth.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ensemble", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePage serves / and /<page>.html; / and /index.html show the first
// configured page.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" {
		name = "index.html"
	}
	id, ok := strings.CutSuffix(name, ".html")
	if !ok || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if id == "index" {
		if len(s.cfg.Pages) == 0 {
			http.NotFound(w, r)
			return
		}
		id = s.cfg.Pages[0].ID
	}
	s.servePage(w, id)
}

func (s *Server) servePage(w http.ResponseWriter, id string) {
	html, err := s.renderer.RenderPage(s.catalog, id, s.catalog.Now())
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownPage) {
			http.Error(w, "page not found", http.StatusNotFound)
			return
		}
		appLog.Error("page render failed", err, "page", id)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Page        string    `json:"page"`
	Now         time.Time `json:"now"`
	GeneratedAt time.Time `json:"generated_at"`
	schedule.Classified
}

// handleEvents returns a page's events classified against the current time.
//
// GET /api/events?page=concerts
//   - page: page ID (default: first configured page)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	pageID := r.URL.Query().Get("page")
	if pageID == "" && len(s.cfg.Pages) > 0 {
		pageID = s.cfg.Pages[0].ID
	}

	now := s.catalog.Now()
	classified, err := s.catalog.Classify(pageID, now)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownPage) {
			writeError(w, http.StatusNotFound, "unknown page")
			return
		}
		appLog.Error("api events: classify failed", err, "page", pageID)
		writeError(w, http.StatusInternalServerError, "failed to classify events")
		return
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Page:        pageID,
		Now:         now,
		GeneratedAt: s.catalog.Snapshot().GeneratedAt,
		Classified:  classified,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.refresh(r.Context()); err != nil {
		// Partial failures still publish a snapshot; report them.
		appLog.Error("api refresh completed with errors", err)
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleCalendar serves the iCalendar subscription feed.
//
// GET /calendar.ics?page=concerts; without page every page is merged.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	pageID := r.URL.Query().Get("page")
	body, err := site.RenderCalendar(s.catalog, pageID, s.catalog.Now())
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownPage) {
			http.Error(w, "page not found", http.StatusNotFound)
			return
		}
		appLog.Error("calendar export failed", err, "page", pageID)
		http.Error(w, "failed to export calendar", http.StatusInternalServerError)
		return
	}
	// Inline, so calendar apps can subscribe.
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handlePreview serves the last captured page preview from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(s.cfg.Preview.Path); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.cfg.Preview.Path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
