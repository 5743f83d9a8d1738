// Package metrics records per-table sync outcomes in a private Prometheus
// registry and optionally pushes them to a Pushgateway at the end of a job.
//
// A nil *Recorder is valid and records nothing, so callers never need to
// guard metric calls.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Recorder struct {
	reg *prometheus.Registry

	records  *prometheus.CounterVec   // ledgerbridge_records_total{table,outcome}
	tables   *prometheus.CounterVec   // ledgerbridge_tables_total{state}
	attempts *prometheus.CounterVec   // ledgerbridge_attempts_total{table,stage}
	duration *prometheus.HistogramVec // ledgerbridge_table_duration_seconds{table}
}

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerbridge_records_total",
			Help: "Records processed per table and outcome (fetched, imported, skipped, failed).",
		}, []string{"table", "outcome"}),
		tables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerbridge_tables_total",
			Help: "Tables that reached a terminal state.",
		}, []string{"state"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerbridge_attempts_total",
			Help: "Remote fetch and sink write attempts, retries included.",
		}, []string{"table", "stage"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgerbridge_table_duration_seconds",
			Help:    "Wall time of one table pipeline.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"table"}),
	}
	r.reg.MustRegister(r.records, r.tables, r.attempts, r.duration)
	return r
}

// Table records the outcome of one table pipeline.
func (r *Recorder) Table(table, state string, fetched, imported, skipped, failed int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.records.WithLabelValues(table, "fetched").Add(float64(fetched))
	r.records.WithLabelValues(table, "imported").Add(float64(imported))
	r.records.WithLabelValues(table, "skipped").Add(float64(skipped))
	r.records.WithLabelValues(table, "failed").Add(float64(failed))
	r.tables.WithLabelValues(state).Inc()
	r.duration.WithLabelValues(table).Observe(elapsed.Seconds())
}

// Attempts adds n attempts for the given stage ("fetch" or "import").
func (r *Recorder) Attempts(table, stage string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.attempts.WithLabelValues(table, stage).Add(float64(n))
}

// Gatherer exposes the private registry, e.g. for tests or an HTTP handler.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// Push sends the collected metrics to a Pushgateway under the given job name.
func (r *Recorder) Push(gatewayURL, job string) error {
	if r == nil || gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(r.reg).Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
