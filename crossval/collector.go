package crossval

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/YuminosukeSato/lurcv/core/parallel"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

const metricsNamespace = "lurcv"

var _ parallel.Observer = (*Collector)(nil)

// Collector exports fold task counts and durations to Prometheus.
type Collector struct {
	strategy string
	tasks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// NewCollector registers the fold task metrics with reg; nil registers with
// the default registry.
func NewCollector(strategy string, reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		strategy: strategy,
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cv",
			Name:      "tasks_total",
			Help:      "Fold tasks finished, by strategy and status.",
		}, []string{"strategy", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "cv",
			Name:      "task_duration_seconds",
			Help:      "Wall time of fold tasks.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"strategy"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "cv",
			Name:      "tasks_running",
			Help:      "Fold tasks currently running.",
		}),
	}
	for _, col := range []prometheus.Collector{c.tasks, c.duration, c.inflight} {
		if err := reg.Register(col); err != nil {
			return nil, errors.Wrap(err, "failed to register metrics")
		}
	}
	return c, nil
}

// TaskStarted implements parallel.Observer.
func (c *Collector) TaskStarted(int) {
	c.inflight.Inc()
}

// TaskFinished implements parallel.Observer.
func (c *Collector) TaskFinished(_ int, elapsed time.Duration, err error) {
	c.inflight.Dec()
	status := "ok"
	if err != nil {
		status = "failed"
	}
	c.tasks.WithLabelValues(c.strategy, status).Inc()
	c.duration.WithLabelValues(c.strategy).Observe(elapsed.Seconds())
}
