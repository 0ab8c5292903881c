// Package metrics provides Prometheus metrics for reconciliation and mask
// derivation.
//
// Each Metrics owns a private registry, so several services (and tests) can
// coexist in one process without colliding on the default registerer.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qcmask"

// Metrics holds the counters and histograms updated by the ingest service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ReconcileOutcomes   *prometheus.CounterVec
	RecordsSkipped      prometheus.Counter
	UnclassifiedRecords prometheus.Counter
	MasksDerived        *prometheus.CounterVec
	ReconcileDuration   prometheus.Histogram
}

// New registers a fresh metric set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ReconcileOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_outcomes_total",
				Help:      "Provider records reconciled, by outcome",
			},
			[]string{"outcome"},
		),
		RecordsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Provider records skipped because they were already ingested",
		}),
		UnclassifiedRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unclassified_records_total",
			Help:      "Provider records whose mask type code has no known classification",
		}),
		MasksDerived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "masks_derived_total",
				Help:      "Processing masks derived, by processing operation",
			},
			[]string{"operation"},
		),
		ReconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time to reconcile and persist one provider record",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),
	}
}

// Registry returns the private registry, for exposition or tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordOutcome counts one reconciliation and observes its duration.
func (m *Metrics) RecordOutcome(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReconcileOutcomes.WithLabelValues(outcome).Inc()
	m.ReconcileDuration.Observe(elapsed.Seconds())
}

// RecordSkipped counts a record that was already in the ledger.
func (m *Metrics) RecordSkipped() {
	if m == nil {
		return
	}
	m.RecordsSkipped.Inc()
}

// RecordUnclassified counts a record with an unknown mask type code.
func (m *Metrics) RecordUnclassified() {
	if m == nil {
		return
	}
	m.UnclassifiedRecords.Inc()
}

// RecordMasks counts n masks derived for operation.
func (m *Metrics) RecordMasks(operation string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.MasksDerived.WithLabelValues(operation).Add(float64(n))
}

// WriteTextfile writes the registry in the text exposition format, for the
// node exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
