package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	ingestFiles     *prometheus.CounterVec
	rateLimited     prometheus.Counter
	views           *prometheus.CounterVec
	selfDestructs   prometheus.Counter
	storeOps        *prometheus.HistogramVec
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

	ingestFiles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgdrop_ingest_files_total",
		Help: "Uploaded files by ingestion outcome",
	}, []string{"outcome"})

	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imgdrop_rate_limited_total",
		Help: "Upload batches rejected by the rate limiter",
	})

	views := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgdrop_views_total",
		Help: "Resolved views by ledger outcome",
	}, []string{"outcome"})

	selfDestructs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imgdrop_self_destruct_total",
		Help: "Artifacts destroyed after their view budget ran out",
	})

	storeOps := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "imgdrop_store_op_seconds",
		Help:    "Latency of artifact store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, ingestFiles, rateLimited, views, selfDestructs, storeOps, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		ingestFiles:     ingestFiles,
		rateLimited:     rateLimited,
		views:           views,
		selfDestructs:   selfDestructs,
		storeOps:        storeOps,
	}
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

// RecordIngestFile counts one uploaded file by outcome (stored, rejected, transform_failed, store_failed).
func (m *MetricsService) RecordIngestFile(outcome string) {
	if m == nil {
		return
	}
	m.ingestFiles.WithLabelValues(outcome).Inc()
}

// RecordRateLimited counts one rejected batch.
func (m *MetricsService) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// RecordView counts one resolved view.
func (m *MetricsService) RecordView(outcome string) {
	if m == nil {
		return
	}
	m.views.WithLabelValues(outcome).Inc()
}

// RecordSelfDestruct counts one destroyed artifact.
func (m *MetricsService) RecordSelfDestruct() {
	if m == nil {
		return
	}
	m.selfDestructs.Inc()
}

// ObserveStoreOp records artifact store latency.
func (m *MetricsService) ObserveStoreOp(op string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(op).Observe(duration.Seconds())
}
