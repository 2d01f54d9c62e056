// Package metrics exposes scheduler counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"herald/internal/publisher"
	"herald/internal/services"
)

// Recorder holds the scheduler collectors on a private registry.
type Recorder struct {
	registry     *prometheus.Registry
	runs         *prometheus.CounterVec
	published    prometheus.Counter
	unitFailures prometheus.Counter
	degraded     prometheus.Counter
	conflicts    prometheus.Counter
	invalidPosts prometheus.Gauge
	queueSize    prometheus.Gauge
	lastRun      prometheus.Gauge
	runDuration  prometheus.Histogram
}

// New registers the collectors plus the Go and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_runs_total",
			Help: "Scheduler runs by outcome",
		}, []string{"outcome"}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "herald_posts_published_total",
			Help: "Posts accepted by the platform",
		}),
		unitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "herald_unit_failures_total",
			Help: "Dispatch units that failed and were requeued",
		}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "herald_posts_degraded_total",
			Help: "Posts published without their image",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "herald_queue_conflicts_total",
			Help: "Conditional writes rejected because the queue changed",
		}),
		invalidPosts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "herald_invalid_posts",
			Help: "Queued posts with an unparsable schedule time at the last run",
		}),
		queueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "herald_queue_size",
			Help: "Posts in the queue when the last run loaded it",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "herald_last_run_timestamp_seconds",
			Help: "Start time of the last run",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "herald_run_duration_seconds",
			Help:    "Scheduler run duration",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	r.registry.MustRegister(
		r.runs, r.published, r.unitFailures, r.degraded, r.conflicts,
		r.invalidPosts, r.queueSize, r.lastRun, r.runDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	// Export the common outcomes at zero so scrapes see them before the first run.
	for _, outcome := range []string{"ok", "partial", "idle"} {
		r.runs.WithLabelValues(outcome)
	}
	return r
}

// Observe records one run. err is the structural error RunOnce returned.
func (r *Recorder) Observe(summary publisher.Summary, err error) {
	r.runs.WithLabelValues(Outcome(summary, err)).Inc()
	r.published.Add(float64(summary.Published))
	r.unitFailures.Add(float64(summary.FailedUnits))
	r.degraded.Add(float64(len(summary.Degraded)))
	if services.Kind(err) == services.KindConflict || summary.Retried {
		r.conflicts.Inc()
	}
	r.invalidPosts.Set(float64(len(summary.Warnings)))
	r.queueSize.Set(float64(summary.QueueSize))
	if !summary.StartedAt.IsZero() {
		r.lastRun.Set(float64(summary.StartedAt.Unix()))
	}
	r.runDuration.Observe(summary.Duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Outcome labels a run: "error" carries the error kind, otherwise "partial"
// when a unit failed, "idle" when nothing was due, and "ok".
func Outcome(summary publisher.Summary, err error) string {
	switch {
	case err != nil:
		return "error_" + services.Kind(err)
	case summary.FailedUnits > 0:
		return "partial"
	case summary.DueUnits == 0:
		return "idle"
	default:
		return "ok"
	}
}
