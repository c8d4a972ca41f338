package metrics

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/psantana5/ytconvert/internal/report"
	"github.com/psantana5/ytconvert/pkg/models"
)

const namespace = "convertd"

// Outcome labels for conversions_total
const (
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeCanceled   = "canceled"
	OutcomeInvalid    = "invalid"
	OutcomeSpawnError = "spawn_error"
	OutcomePreBody    = "upstream_pre_body"
)

// Metrics holds the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	conversions   *prometheus.CounterVec
	active        prometheus.Gauge
	bytesRelayed  *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	firstByte     *prometheus.HistogramVec
	probes        *prometheus.CounterVec
	requests      *prometheus.CounterVec
	responseBytes *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Conversion requests by output format and outcome",
		}, []string{"format", "outcome"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversions_active",
			Help:      "Conversions currently streaming",
		}),
		bytesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_bytes_total",
			Help:      "Media bytes relayed to clients",
		}, []string{"format"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Wall time from spawn to process exit",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"format", "outcome"}),
		firstByte: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_to_first_byte_seconds",
			Help:      "Time from spawn to the first stdout byte",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"format"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Metadata lookups by result",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		responseBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_response_bytes_total",
			Help:      "HTTP response body bytes by method and route",
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.conversions,
		m.active,
		m.bytesRelayed,
		m.duration,
		m.firstByte,
		m.probes,
		m.requests,
		m.responseBytes,
		newSessionCollector(report.Global()),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ConversionStarted marks a session as streaming
func (m *Metrics) ConversionStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// ConversionFinished records a session that reached a terminal state
func (m *Metrics) ConversionFinished(format, outcome string, r *report.Result) {
	if m == nil {
		return
	}
	m.active.Dec()
	format = formatLabel(format)
	m.conversions.WithLabelValues(format, outcome).Inc()
	if r == nil {
		return
	}
	m.bytesRelayed.WithLabelValues(format).Add(float64(r.BytesRelayed))
	m.duration.WithLabelValues(format, outcome).Observe(r.Duration.Seconds())
	if r.TimeToFirstByte > 0 {
		m.firstByte.WithLabelValues(format).Observe(r.TimeToFirstByte.Seconds())
	}
}

// ConversionRejected records a request that never produced a stream
func (m *Metrics) ConversionRejected(format, outcome string) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(formatLabel(format), outcome).Inc()
}

// formatLabel keeps the format label to the known output kinds
func formatLabel(format string) string {
	if kind, ok := models.ParseOutputKind(format); ok {
		return string(kind)
	}
	return "unknown"
}

// ProbeResult records a metadata lookup
func (m *Metrics) ProbeResult(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "fallback"
	}
	m.probes.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteText dumps every metric family in text format
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Middleware counts requests and response bytes per route
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		defer func() {
			// a mid-stream abort panics through here; still count what was sent
			m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			m.responseBytes.WithLabelValues(r.Method, route).Add(float64(rw.bytesWritten))
		}()

		next.ServeHTTP(rw, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	bytesWritten int64
	statusCode   int
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
