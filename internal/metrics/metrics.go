// Package metrics provides Prometheus metrics for warehouse rebuilds.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "starload"

// Statement outcomes used as the status label.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Metrics holds the collectors of one process. Each instance has its own
// registry so tests and repeated runs never collide.
type Metrics struct {
	registry *prometheus.Registry

	StatementDuration *prometheus.HistogramVec
	Statements        *prometheus.CounterVec
	LastSuccess       prometheus.Gauge
	DuplicateKeys     *prometheus.GaugeVec
	TableRows         *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StatementDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "statement_duration_seconds",
				Help:      "Time spent executing catalog statements",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
		Statements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "statements_total",
				Help:      "Catalog statements executed, by outcome",
			},
			[]string{"stage", "status"},
		),
		LastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_last_success_timestamp_seconds",
				Help:      "Unix time of the last rebuild that completed every stage",
			},
		),
		DuplicateKeys: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "duplicate_keys",
				Help:      "Natural-key values occurring more than once after the last load",
			},
			[]string{"table"},
		),
		TableRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "table_rows",
				Help:      "Row count of each table after the last load",
			},
			[]string{"table"},
		),
	}
}

// Registry exposes the registry for scraping or inspection.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStatement records one executed statement.
func (m *Metrics) ObserveStatement(stage string, d time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusFailed
	}
	m.Statements.WithLabelValues(stage, status).Inc()
	m.StatementDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveCheck records the value of a post-load check.
func (m *Metrics) ObserveCheck(table string, duplicates bool, value int64) {
	if duplicates {
		m.DuplicateKeys.WithLabelValues(table).Set(float64(value))
		return
	}
	m.TableRows.WithLabelValues(table).Set(float64(value))
}

// MarkSuccess records a completed rebuild.
func (m *Metrics) MarkSuccess(at time.Time) {
	m.LastSuccess.Set(float64(at.Unix()))
}

// Push sends every collector to a Prometheus Pushgateway, grouped by run.
func (m *Metrics) Push(ctx context.Context, gatewayURL, runID string) error {
	err := push.New(gatewayURL, namespace).
		Gatherer(m.registry).
		Grouping("run_id", runID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
