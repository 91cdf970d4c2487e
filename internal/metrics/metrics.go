package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	lastRefreshTS   prometheus.Gauge
	pageEvents      *prometheus.GaugeVec
	rejectedEvents  *prometheus.CounterVec
	feedErrors      *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.refreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ensemble",
		Name:      "refresh_total",
		Help:      "Catalog refreshes by result",
	}, []string{"result"})
	m.refreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ensemble",
		Name:      "refresh_duration_seconds",
		Help:      "Time spent loading feeds and calendars",
		Buckets:   prometheus.DefBuckets,
	})
	m.lastRefreshTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ensemble",
		Name:      "last_refresh_timestamp_seconds",
		Help:      "Unix time of the last successful refresh",
	})
	m.pageEvents = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ensemble",
		Name:      "page_events",
		Help:      "Events per page and bucket at last classification",
	}, []string{"page", "bucket"})
	m.rejectedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ensemble",
		Name:      "rejected_events_total",
		Help:      "Events dropped because their date could not be read",
	}, []string{"page"})
	m.feedErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ensemble",
		Name:      "feed_errors_total",
		Help:      "Feed or calendar loads that failed",
	}, []string{"page"})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ensemble",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code",
	}, []string{"route", "code"})

	m.reg.MustRegister(
		m.refreshTotal,
		m.refreshDuration,
		m.lastRefreshTS,
		m.pageEvents,
		m.rejectedEvents,
		m.feedErrors,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRefresh(start time.Time, err error) {
	m.refreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.refreshTotal.WithLabelValues("error").Inc()
		return
	}
	m.refreshTotal.WithLabelValues("ok").Inc()
	m.lastRefreshTS.SetToCurrentTime()
}

func (m *Metrics) SetPageEvents(page string, upcoming, past int) {
	m.pageEvents.WithLabelValues(page, "upcoming").Set(float64(upcoming))
	m.pageEvents.WithLabelValues(page, "past").Set(float64(past))
}

func (m *Metrics) AddRejected(page string, n int) {
	if n > 0 {
		m.rejectedEvents.WithLabelValues(page).Add(float64(n))
	}
}

func (m *Metrics) AddFeedErrors(page string, n int) {
	if n > 0 {
		m.feedErrors.WithLabelValues(page).Add(float64(n))
	}
}

// Instrument counts requests to next under route, labelled by status code.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	counter := m.httpRequests.MustCurryWith(prometheus.Labels{"route": route})
	return promhttp.InstrumentHandlerCounter(counter, next)
}
