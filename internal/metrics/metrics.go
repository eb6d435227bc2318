// Package metrics exposes Prometheus collectors for the reservation
// manager, the conflict resolver and the execution lock.
package metrics

import (
	"time"

	"recsched/internal/execlock"
	"recsched/internal/resolver"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "recsched"

// Metrics owns a private registry so tests and embedded uses do not
// collide on the global one.
type Metrics struct {
	Registry *prometheus.Registry

	Reservations     *prometheus.GaugeVec
	Operations       *prometheus.CounterVec
	ResolverPasses   prometheus.Counter
	ResolverDuration prometheus.Histogram
	ResolverConflict prometheus.Gauge
	LockWait         *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Reservations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reservations",
				Help:      "Number of reservations by state",
			},
			[]string{"state"},
		),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Reservation manager operations by result",
			},
			[]string{"op", "result"},
		),
		ResolverPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_passes_total",
			Help:      "Total number of conflict resolver passes",
		}),
		ResolverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolver_duration_seconds",
			Help:      "Duration of conflict resolver passes in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		ResolverConflict: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resolver_last_conflicts",
			Help:      "Conflicts found by the most recent resolver pass",
		}),
		LockWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent queued for the execution lock",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"priority"},
		),
	}
	m.Registry.MustRegister(
		m.Reservations,
		m.Operations,
		m.ResolverPasses,
		m.ResolverDuration,
		m.ResolverConflict,
		m.LockWait,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Operation counts one manager operation.
func (m *Metrics) Operation(op string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.Operations.WithLabelValues(op, result).Inc()
}

// SetReservations sets the per-state gauges.
func (m *Metrics) SetReservations(active, conflicts, skips int) {
	m.Reservations.WithLabelValues("active").Set(float64(active))
	m.Reservations.WithLabelValues("conflict").Set(float64(conflicts))
	m.Reservations.WithLabelValues("skip").Set(float64(skips))
}

// ObserveResolver is a resolver.WithObserver callback.
func (m *Metrics) ObserveResolver(s resolver.Stats) {
	m.ResolverPasses.Inc()
	m.ResolverDuration.Observe(s.Took.Seconds())
	m.ResolverConflict.Set(float64(s.Conflicts))
}

// ObserveLockWait is an execlock.WithWaitObserver callback.
func (m *Metrics) ObserveLockWait(priority int, waited time.Duration) {
	m.LockWait.WithLabelValues(priorityLabel(priority)).Observe(waited.Seconds())
}

// GaugeFunc registers a gauge read at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// CounterFunc registers a monotonic counter read at scrape time.
func (m *Metrics) CounterFunc(name, help string, fn func() float64) {
	m.Registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func priorityLabel(p int) string {
	switch p {
	case execlock.PriorityBackground:
		return "background"
	case execlock.PriorityUser:
		return "user"
	default:
		return "other"
	}
}

// Recorder adapts Metrics to the manager's recorder contract.
type Recorder struct{ M *Metrics }

func (r Recorder) Operation(op string, err error) { r.M.Operation(op, err) }

func (r Recorder) Reservations(active, conflicts, skips int) {
	r.M.SetReservations(active, conflicts, skips)
}
