package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shellpool"

// Registry collects dispatcher and pool metrics. All methods are safe
// to call on a nil registry.
type Registry struct {
	registry *prometheus.Registry

	submitted    prometheus.Counter
	completed    *prometheus.CounterVec
	spawned      prometheus.Counter
	spawnFailed  prometheus.Counter
	retired      prometheus.Counter
	workers      prometheus.Gauge
	queued       prometheus.Gauge
	busy         prometheus.Gauge
	queueWait    prometheus.Histogram
	execDuration prometheus.Histogram
}

// New creates a registry with all collectors registered, including the
// go runtime and process collectors.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_submitted_total",
			Help:      "Number of commands accepted by the dispatcher.",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_completed_total",
			Help:      "Number of completed commands by outcome.",
		}, []string{"status"}),
		spawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_spawned_total",
			Help:      "Number of workers that started successfully.",
		}),
		spawnFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_spawn_failures_total",
			Help:      "Number of workers that failed to start.",
		}),
		retired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_retired_total",
			Help:      "Number of workers removed from the pool.",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Number of workers in the pool, including starting workers.",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "commands_queued",
			Help:      "Number of commands waiting for a worker.",
		}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Number of workers executing a command.",
		}),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_queue_wait_seconds",
			Help:      "Time a command spent in the queue.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		execDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_exec_seconds",
			Help:      "Time a worker spent executing a command.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.submitted,
		r.completed,
		r.spawned,
		r.spawnFailed,
		r.retired,
		r.workers,
		r.queued,
		r.busy,
		r.queueWait,
		r.execDuration,
	)

	return r
}

func (r *Registry) CommandSubmitted() {
	if r == nil {
		return
	}
	r.submitted.Inc()
}

func (r *Registry) CommandCompleted(duration time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.completed.WithLabelValues(status).Inc()
	r.execDuration.Observe(duration.Seconds())
}

func (r *Registry) CommandDequeued(wait time.Duration) {
	if r == nil {
		return
	}
	r.queueWait.Observe(wait.Seconds())
}

func (r *Registry) WorkerSpawned(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.spawnFailed.Inc()
		return
	}
	r.spawned.Inc()
}

func (r *Registry) WorkerRetired() {
	if r == nil {
		return
	}
	r.retired.Inc()
}

// SetPool records a snapshot of the pool and queue sizes.
func (r *Registry) SetPool(workers, queued, busy int) {
	if r == nil {
		return
	}
	r.workers.Set(float64(workers))
	r.queued.Set(float64(queued))
	r.busy.Set(float64(busy))
}

// Gatherer exposes the underlying registry, e.g. for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}
