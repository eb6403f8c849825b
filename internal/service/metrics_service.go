package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the
// dispatcher, both engines, and the admin HTTP server.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	eventDuration     *prometheus.HistogramVec
	eventTotal        *prometheus.CounterVec
	eventPanics       *prometheus.CounterVec
	turnTotal         *prometheus.CounterVec
	moderationTotal   *prometheus.CounterVec
	publishedTotal    prometheus.Counter
	httpDuration      *prometheus.HistogramVec
	httpRequestsTotal *prometheus.CounterVec
}

// NewMetricsService registers the core collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	eventDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "event_handler_duration_seconds",
		Help:    "Duration of event handler executions",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	eventTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_dispatched_total",
		Help: "Total events handled, by kind",
	}, []string{"kind"})

	eventPanics := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_handler_panics_total",
		Help: "Handler executions that panicked",
	}, []string{"kind"})

	turnTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "game_turns_total",
		Help: "Evaluated counting-game turn attempts, by outcome",
	}, []string{"outcome"})

	moderationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_actions_total",
		Help: "Applied moderation transitions, by action",
	}, []string{"action"})

	publishedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "confessions_published_total",
		Help: "Accepted submissions published to the output channel",
	})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of admin HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpRequestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total admin HTTP requests",
	}, []string{"method", "path", "status"})

	registry.MustRegister(
		eventDuration,
		eventTotal,
		eventPanics,
		turnTotal,
		moderationTotal,
		publishedTotal,
		httpDuration,
		httpRequestsTotal,
	)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		eventDuration:     eventDuration,
		eventTotal:        eventTotal,
		eventPanics:       eventPanics,
		turnTotal:         turnTotal,
		moderationTotal:   moderationTotal,
		publishedTotal:    publishedTotal,
		httpDuration:      httpDuration,
		httpRequestsTotal: httpRequestsTotal,
	}
}

// Handler returns the scrape endpoint handler.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveEvent implements platform.Observer.
func (m *MetricsService) ObserveEvent(kind string, duration time.Duration) {
	m.eventTotal.WithLabelValues(kind).Inc()
	m.eventDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObservePanic implements platform.Observer.
func (m *MetricsService) ObservePanic(kind string) {
	m.eventPanics.WithLabelValues(kind).Inc()
}

// TurnEvaluated counts one evaluated turn attempt.
func (m *MetricsService) TurnEvaluated(outcome string) {
	m.turnTotal.WithLabelValues(outcome).Inc()
}

// ModerationApplied counts one applied moderation transition.
func (m *MetricsService) ModerationApplied(action string) {
	m.moderationTotal.WithLabelValues(action).Inc()
}

// Published counts one publication to the output channel.
func (m *MetricsService) Published() {
	m.publishedTotal.Inc()
}

// ObserveHTTPRequest records one admin request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	m.httpRequestsTotal.WithLabelValues(labels...).Inc()
	m.httpDuration.WithLabelValues(labels...).Observe(duration.Seconds())
}
