// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus counters for the grading, rule and
// curation stages. Metrics live on a private registry and are flushed to a
// node-exporter textfile at the end of a CLI run. A nil *Metrics is valid
// and records nothing.
// Implements: docs/ARCHITECTURE § Metrics.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

const namespace = "evidence_engine"

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	// Grades assigned by the aggregator, by grade
	GradesAssigned *prometheus.CounterVec

	// Per-tag filter decisions by reason and inclusion
	FilterDecisions *prometheus.CounterVec

	// Records dropped because no tag qualified
	RejectedAllTags prometheus.Counter

	// Suitability evaluations by outcome: hard_stop, caution, none
	RuleEvaluations *prometheus.CounterVec

	// Input lines skipped during ingestion
	IngestSkipped prometheus.Counter

	// Wall time per pipeline stage
	StageDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all collectors registered on a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		GradesAssigned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grades_assigned_total",
			Help:      "Evidence grades assigned by the aggregator",
		}, []string{"grade"}),

		FilterDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_decisions_total",
			Help:      "Per-tag corpus filter decisions by reason",
		}, []string{"reason", "include"}),

		RejectedAllTags: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_rejected_all_tags_total",
			Help:      "Records dropped because they qualified for no tag",
		}),

		RuleEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "Suitability evaluations by outcome",
		}, []string{"outcome"}),

		IngestSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_skipped_lines_total",
			Help:      "Input lines skipped as unparsable or missing an id",
		}),

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"stage"}),
	}
}

// Registry returns the private registry, or nil for a nil receiver.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveGrade records one aggregation result.
func (m *Metrics) ObserveGrade(g types.Grade) {
	if m != nil {
		m.GradesAssigned.WithLabelValues(string(g)).Inc()
	}
}

// ObserveDecision records one per-tag filter decision.
func (m *Metrics) ObserveDecision(d types.PaperQualityDecision) {
	if m != nil {
		m.FilterDecisions.WithLabelValues(string(d.Reason), strconv.FormatBool(d.Include)).Inc()
	}
}

// AddRejectedAllTags adds n records dropped by the filter.
func (m *Metrics) AddRejectedAllTags(n int) {
	if m != nil {
		m.RejectedAllTags.Add(float64(n))
	}
}

// ObserveSuitability records the outcome of one rule evaluation.
func (m *Metrics) ObserveSuitability(s types.Suitability) {
	if m == nil {
		return
	}
	outcome := "none"
	switch {
	case s.HardStop:
		outcome = "hard_stop"
	case len(s.MatchedRules) > 0:
		outcome = "caution"
	}
	m.RuleEvaluations.WithLabelValues(outcome).Inc()
}

// AddIngestSkipped adds n skipped input lines.
func (m *Metrics) AddIngestSkipped(n int) {
	if m != nil {
		m.IngestSkipped.Add(float64(n))
	}
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// WriteTextfile writes the current values to path in the Prometheus text
// format. It is a no-op for a nil receiver or an empty path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
