package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	vitrineotel "vitrine/observability/otel"
)

type ObservabilityConfig struct {
	MetricsPrefix string
	LogRequests   bool
	Enabled       bool
}

// Observability records per-route request counts, latency, in-flight
// requests and response sizes, and opens a server span per request.
type Observability struct {
	cfg       ObservabilityConfig
	logger    *slog.Logger
	tracer    trace.Tracer
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	inflight  *prometheus.GaugeVec
	bytesOut  *prometheus.CounterVec
}

func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MetricsPrefix == "" {
		cfg.MetricsPrefix = "vitrine_http"
	}
	o := &Observability{
		cfg:      cfg,
		logger:   logger,
		tracer:   vitrineotel.Tracer(),
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.MetricsPrefix,
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status class.",
		}, []string{"route", "class"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.MetricsPrefix,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.MetricsPrefix,
			Name:      "requests_in_flight",
			Help:      "Requests currently being served.",
		}, []string{"route"}),
		bytesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.MetricsPrefix,
			Name:      "response_bytes_total",
			Help:      "Response body bytes written.",
		}, []string{"route"}),
	}
	o.registry.MustRegister(o.requests, o.durations, o.inflight, o.bytesOut)
	return o
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !o.cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inflight := o.inflight.WithLabelValues(route)
			inflight.Inc()
			defer inflight.Dec()

			start := time.Now()
			ctx, span := o.tracer.Start(r.Context(), "http "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.route", route),
					attribute.String("vitrine.request_id", RequestIDFromContext(r.Context())),
				))
			defer span.End()

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))
			duration := time.Since(start)

			span.SetAttributes(attribute.Int("http.status_code", recorder.status))
			if recorder.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(recorder.status))
			}
			o.requests.WithLabelValues(route, statusClass(recorder.status)).Inc()
			o.durations.WithLabelValues(route).Observe(duration.Seconds())
			o.bytesOut.WithLabelValues(route).Add(float64(recorder.written))
			if o.cfg.LogRequests {
				o.logger.Info("http request",
					slog.String("route", route),
					slog.String("path", r.URL.Path),
					slog.Int("status", recorder.status),
					slog.Int("bytes", recorder.written),
					slog.Duration("duration", duration),
					slog.String("request_id", RequestIDFromContext(r.Context())))
			}
		})
	}
}

// MetricsHandler serves the HTTP metrics together with every collector on
// the default registry.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{o.registry, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	n, err := s.ResponseWriter.Write(p)
	s.written += n
	return n, err
}
