package engine

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/dbsync/internal/store"
)

// Outcome labels for the operations counter.
const (
	OutcomeCommitted = "committed"
	OutcomePanic     = "panic"
	OutcomeError     = "error"
)

// Metrics holds the coordinator's Prometheus collectors.
type Metrics struct {
	QueueDepth prometheus.Gauge
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics creates the coordinator collectors and registers them on reg.
// A nil reg leaves the collectors unregistered.
//
//	metrics, err := engine.NewMetrics(prometheus.DefaultRegisterer)
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dbsync",
			Subsystem: "write",
			Name:      "queue_depth",
			Help:      "Operations submitted but not yet started.",
		}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbsync",
			Subsystem: "write",
			Name:      "operations_total",
			Help:      "Completed write operations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dbsync",
			Subsystem: "write",
			Name:      "operation_duration_seconds",
			Help:      "Time from dequeue to completion of write operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.QueueDepth, m.Operations, m.Duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// observe records one finished operation.
func (m *Metrics) observe(op *Operation, err error, elapsed time.Duration) {
	m.Operations.WithLabelValues(string(op.Kind), outcomeOf(err)).Inc()
	m.Duration.WithLabelValues(string(op.Kind)).Observe(elapsed.Seconds())
}

// outcomeOf maps an operation error to its counter label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeCommitted
	case IsPanicError(err):
		return OutcomePanic
	}
	if code := store.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return OutcomeError
}
