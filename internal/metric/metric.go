// Package metric holds the Prometheus instruments for the import pipeline.
// A nil *Metrics is valid and records nothing.
package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	GraphRequests   *prometheus.CounterVec
	AdsProcessed    *prometheus.CounterVec
	Downloads       *prometheus.CounterVec
	ScrapeAttempts  *prometheus.CounterVec
	CircuitTrips    prometheus.Counter
	ImportDuration  prometheus.Histogram
	ImportsFinished *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		GraphRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adimport",
			Name:      "graph_requests_total",
			Help:      "Ads graph API calls by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),
		AdsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adimport",
			Name:      "ads_processed_total",
			Help:      "Processed ad rows by outcome.",
		}, []string{"status"}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adimport",
			Name:      "asset_downloads_total",
			Help:      "Asset download attempts by result.",
		}, []string{"result"}),
		ScrapeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adimport",
			Name:      "scrape_attempts_total",
			Help:      "Scraper fallback attempts by result.",
		}, []string{"result"}),
		CircuitTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adimport",
			Name:      "circuit_breaker_trips_total",
			Help:      "Import runs that switched to degraded mode.",
		}),
		ImportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "adimport",
			Name:      "import_duration_seconds",
			Help:      "Wall time of complete import runs.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		ImportsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adimport",
			Name:      "imports_finished_total",
			Help:      "Import runs by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.GraphRequests, m.AdsProcessed, m.Downloads, m.ScrapeAttempts,
		m.CircuitTrips, m.ImportDuration, m.ImportsFinished,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) GraphRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	m.GraphRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (m *Metrics) AdProcessed(status string) {
	if m == nil {
		return
	}
	m.AdsProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) Download(result string) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(result).Inc()
}

func (m *Metrics) Scrape(result string) {
	if m == nil {
		return
	}
	m.ScrapeAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) CircuitTripped() {
	if m == nil {
		return
	}
	m.CircuitTrips.Inc()
}

func (m *Metrics) ImportFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ImportsFinished.WithLabelValues(outcome).Inc()
	m.ImportDuration.Observe(d.Seconds())
}
