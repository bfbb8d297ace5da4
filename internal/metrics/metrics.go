// Package metrics exposes layout and HTTP counters through Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "plantgrid"

// Recorder owns a private registry so independent instances never collide.
type Recorder struct {
	registry *prometheus.Registry

	layoutRuns     *prometheus.CounterVec
	layoutDuration *prometheus.HistogramVec
	csvRecords     prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New builds a Recorder. withRuntime adds the Go and process collectors.
func New(withRuntime bool) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		layoutRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "layout",
				Name:      "runs_total",
				Help:      "Layout runs by final status.",
			},
			[]string{"status"},
		),
		layoutDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "layout",
				Name:      "duration_seconds",
				Help:      "Wall time from serialization to process exit.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		csvRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csv",
			Name:      "records_total",
			Help:      "Plant records serialized to CSV.",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
	r.registry.MustRegister(r.layoutRuns, r.layoutDuration, r.csvRecords, r.httpRequests, r.httpDuration)
	if withRuntime {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// ObserveRun records a finished layout run.
func (r *Recorder) ObserveRun(status string, duration time.Duration, records int) {
	r.layoutRuns.WithLabelValues(status).Inc()
	r.layoutDuration.WithLabelValues(status).Observe(duration.Seconds())
	if records > 0 {
		r.csvRecords.Add(float64(records))
	}
}

// ObserveHTTP records one served request.
func (r *Recorder) ObserveHTTP(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	r.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	r.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
