// Package metrics exposes Prometheus collectors for the download pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all service collectors
type Metrics struct {
	registry *prometheus.Registry

	DownloadsSubmitted prometheus.Counter
	DownloadsCompleted prometheus.Counter
	DownloadsFailed    prometheus.Counter
	DownloadsInFlight  prometheus.Gauge
	RateLimited        prometheus.Counter

	DownloadDuration prometheus.Histogram

	SweepFilesDeleted   prometheus.Counter
	SweepRecordsDeleted prometheus.Counter
	SweepErrors         prometheus.Counter
}

// New creates and registers all collectors on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		DownloadsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiofetch_downloads_submitted_total",
			Help: "Number of accepted download submissions.",
		}),
		DownloadsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiofetch_downloads_completed_total",
			Help: "Number of downloads that reached the completed state.",
		}),
		DownloadsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiofetch_downloads_failed_total",
			Help: "Number of downloads that reached the failed state.",
		}),
		DownloadsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiofetch_downloads_in_flight",
			Help: "Number of downloads currently being processed.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiofetch_rate_limited_total",
			Help: "Number of submissions rejected by the rate limiter.",
		}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiofetch_download_duration_seconds",
			Help:    "Wall time of the fetch-and-encode pipeline per download.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		SweepFilesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiofetch_sweep_files_deleted_total",
			Help: "Number of artifact files removed by retention sweeps.",
		}),
		SweepRecordsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiofetch_sweep_records_deleted_total",
			Help: "Number of database records removed by retention sweeps.",
		}),
		SweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiofetch_sweep_errors_total",
			Help: "Number of errors encountered during retention sweeps.",
		}),
	}

	registry.MustRegister(
		m.DownloadsSubmitted,
		m.DownloadsCompleted,
		m.DownloadsFailed,
		m.DownloadsInFlight,
		m.RateLimited,
		m.DownloadDuration,
		m.SweepFilesDeleted,
		m.SweepRecordsDeleted,
		m.SweepErrors,
	)

	return m
}

// Handler returns the HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
