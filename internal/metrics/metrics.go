// Package metrics exposes Prometheus collectors for submissions and HTTP traffic.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imageprompt/internal/domain"
)

// Collector owns a registry and the service's collectors.
type Collector struct {
	registry *prometheus.Registry

	submissions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	imageBytes  prometheus.Histogram
	httpReqs    *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "imageprompt_submissions_total",
			Help: "Settled image-to-prompt submissions by outcome.",
		}, []string{"status", "prompt_type"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "imageprompt_submission_duration_seconds",
			Help:    "Time from upload start until the submission settled.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90, 120},
		}, []string{"status"}),
		imageBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "imageprompt_image_bytes",
			Help:    "Size of submitted images.",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 7),
		}),
		httpReqs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "imageprompt_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "imageprompt_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Name() string { return "metrics" }

// SubmissionSettled records one settled submission.
func (c *Collector) SubmissionSettled(_ context.Context, o domain.Outcome) error {
	pt := string(o.PromptType)
	if pt == "" {
		pt = "unspecified"
	}
	c.submissions.WithLabelValues(string(o.Status), pt).Inc()
	c.duration.WithLabelValues(string(o.Status)).Observe(o.Duration.Seconds())
	if o.ImageBytes > 0 {
		c.imageBytes.Observe(float64(o.ImageBytes))
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Middleware counts requests by chi route pattern so path parameters do not
// explode label cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		c.httpReqs.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		c.httpLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
