package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/wms-audit-api/internal/models"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
)

// Flag action outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
	OutcomeFailure  = "failure"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	flagActions     *prometheus.CounterVec
	degradedFetches prometheus.Counter
	hhdTransitions  *prometheus.CounterVec
	auditTrail      *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	flagActions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_flag_actions_total",
		Help: "Flag resolutions, rejections and recovery checks by outcome",
	}, []string{"type", "action", "outcome"})

	degradedFetches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_flag_degraded_fetches_total",
		Help: "Flag listings served from fixture data because the source was unavailable",
	})

	hhdTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_hhd_transitions_total",
		Help: "HHD audit actions by resulting step and outcome",
	}, []string{"action", "step", "outcome"})

	auditTrail := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_trail_entries_total",
		Help: "Audit trail entries by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		flagActions, degradedFetches, hhdTransitions, auditTrail, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		flagActions:     flagActions,
		degradedFetches: degradedFetches,
		hhdTransitions:  hhdTransitions,
		auditTrail:      auditTrail,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordFlagAction counts a flag action outcome.
func (m *MetricsService) RecordFlagAction(flagType models.FlagType, action, outcome string) {
	if m == nil {
		return
	}
	m.flagActions.WithLabelValues(string(flagType), action, outcome).Inc()
}

// RecordDegradedFetch counts a listing served from fixture data.
func (m *MetricsService) RecordDegradedFetch() {
	if m == nil {
		return
	}
	m.degradedFetches.Inc()
}

// RecordHHDTransition counts an HHD action.
func (m *MetricsService) RecordHHDTransition(action string, step models.AuditStep, outcome string) {
	if m == nil {
		return
	}
	m.hhdTransitions.WithLabelValues(action, string(step), outcome).Inc()
}

// RecordAuditTrail counts an audit trail write outcome.
func (m *MetricsService) RecordAuditTrail(outcome string) {
	if m == nil {
		return
	}
	m.auditTrail.WithLabelValues(outcome).Inc()
}

// outcomeOf classifies an error for metric labels.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case appErrors.IsCode(err, appErrors.ErrValidation.Code):
		return OutcomeInvalid
	case appErrors.IsCode(err, appErrors.ErrIllegalState.Code),
		appErrors.IsCode(err, appErrors.ErrInFlight.Code),
		appErrors.IsCode(err, appErrors.ErrConflict.Code):
		return OutcomeConflict
	default:
		return OutcomeFailure
	}
}
