// Package metrics exposes crawl counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	articles      *prometheus.CounterVec
	feedErrors    *prometheus.CounterVec
	crawls        *prometheus.CounterVec
	crawlDuration *prometheus.HistogramVec
	images        *prometheus.CounterVec
	summaryFails  *prometheus.CounterVec
}

// New registers the crawl metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		articles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tldrbot_articles_total",
			Help: "Feed entries processed, by group and outcome.",
		}, []string{"group", "outcome"}),
		feedErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tldrbot_feed_errors_total",
			Help: "Feeds that could not be fetched or parsed.",
		}, []string{"group"}),
		crawls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tldrbot_crawls_total",
			Help: "Crawl invocations, by group and status.",
		}, []string{"group", "status"}),
		crawlDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tldrbot_crawl_duration_seconds",
			Help:    "Wall time of one crawl invocation.",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"group"}),
		images: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tldrbot_images_total",
			Help: "Thumbnail retrievals, by status.",
		}, []string{"status"}),
		summaryFails: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tldrbot_summary_failures_total",
			Help: "Entries the summarizer could not handle, by group and reason.",
		}, []string{"group", "reason"}),
	}
}

func (m *Metrics) ObserveArticle(group, outcome string) {
	if m == nil {
		return
	}
	m.articles.WithLabelValues(label(group), label(outcome)).Inc()
}

func (m *Metrics) ObserveFeedError(group string) {
	if m == nil {
		return
	}
	m.feedErrors.WithLabelValues(label(group)).Inc()
}

func (m *Metrics) ObserveCrawl(group string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.crawls.WithLabelValues(label(group), status).Inc()
	m.crawlDuration.WithLabelValues(label(group)).Observe(time.Since(start).Seconds())
}

// ObserveImage records a retrieval status: stored, ineligible or failed.
func (m *Metrics) ObserveImage(status string) {
	if m == nil {
		return
	}
	m.images.WithLabelValues(label(status)).Inc()
}

// ObserveSummaryFailure records why an entry got no summary: fetch,
// unsupported, extract, empty or other.
func (m *Metrics) ObserveSummaryFailure(group, reason string) {
	if m == nil {
		return
	}
	m.summaryFails.WithLabelValues(label(group), label(reason)).Inc()
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// StartServer serves /metrics for gatherer on addr until ctx is done.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}
