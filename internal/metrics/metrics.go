// Package metrics holds the Prometheus collectors of a pipeline run. Runs are
// batch jobs, so metrics are pushed to a Pushgateway instead of scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry
	stage    string

	rowsProcessed  *prometheus.GaugeVec
	numLabels      prometheus.Gauge
	stepDuration   *prometheus.HistogramVec
	stepErrors     *prometheus.CounterVec
	tableRows      *prometheus.GaugeVec
	lastSuccessful prometheus.Gauge
}

// New registers the collectors of stage ("data_prep" or "model_prep") on a
// private registry.
func New(stage string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stage:    stage,
		rowsProcessed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "insuranceqa_rows",
				Help: "Rows per split handled by the stage",
			},
			[]string{"stage", "split"},
		),
		numLabels: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "insuranceqa_labels",
				Help:        "Size of the label vocabulary",
				ConstLabels: prometheus.Labels{"stage": stage},
			},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insuranceqa_step_duration_seconds",
				Help:    "Time taken by each pipeline step",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"stage", "step"},
		),
		stepErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insuranceqa_step_errors_total",
				Help: "Total number of failed pipeline steps",
			},
			[]string{"stage", "step"},
		),
		tableRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "insuranceqa_table_rows_written",
				Help: "Rows written to a managed table",
			},
			[]string{"table"},
		),
		lastSuccessful: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "insuranceqa_last_success_timestamp_seconds",
				Help:        "Unix time of the last successful run",
				ConstLabels: prometheus.Labels{"stage": stage},
			},
		),
	}

	// Register metrics
	m.registry.MustRegister(
		m.rowsProcessed,
		m.numLabels,
		m.stepDuration,
		m.stepErrors,
		m.tableRows,
		m.lastSuccessful,
	)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Step runs fn and records its duration, counting an error if it fails.
func (m *Metrics) Step(step string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.stepDuration.WithLabelValues(m.stage, step).Observe(time.Since(start).Seconds())
	if err != nil {
		m.stepErrors.WithLabelValues(m.stage, step).Inc()
	}
	return err
}

// SetRows records the row count of a split.
func (m *Metrics) SetRows(split string, n int) {
	m.rowsProcessed.WithLabelValues(m.stage, split).Set(float64(n))
}

// SetLabels records the label vocabulary size.
func (m *Metrics) SetLabels(n int) { m.numLabels.Set(float64(n)) }

// SetTableRows records rows written to a managed table.
func (m *Metrics) SetTableRows(table string, n int) {
	m.tableRows.WithLabelValues(table).Set(float64(n))
}

// MarkSuccess stamps the run as successful.
func (m *Metrics) MarkSuccess() { m.lastSuccessful.SetToCurrentTime() }

// Push replaces this job's metric group, keyed by run_id, on the Pushgateway at url.
func (m *Metrics) Push(ctx context.Context, url, job, runID string) error {
	p := push.New(url, job).Gatherer(m.registry)
	if runID != "" {
		p = p.Grouping("run_id", runID)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
