// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the evolution
// pipeline.
//
// # Description
//
// Metrics include:
//   - Generation attempts by outcome, and their latency
//   - Evolution cycles by final status
//   - Numeric field repairs performed by the response validator
//   - History entries archived, and archive sink failures
//
// Every recording method is safe to call on a nil *EvolutionMetrics, so
// components can be built without metrics in tests and tools.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "seekin"

// Subsystem for evolution pipeline metrics
const evolutionSubsystem = "evolution"

// Attempt outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeTransportError  = "transport_error"
	OutcomeInvalidResponse = "invalid_response"
)

// Cycle statuses.
const (
	StatusSuccess          = "success"
	StatusExhausted        = "exhausted"
	StatusPersistenceError = "persistence_error"
	StatusCancelled        = "cancelled"
)

// EvolutionMetrics holds all Prometheus metrics for the pipeline.
//
// # Fields
//
//   - AttemptsTotal: Generation attempts. Labels: outcome
//   - AttemptDurationSeconds: Latency of one generate+validate attempt.
//   - CyclesTotal: Completed cycles. Labels: status
//   - RepairsTotal: Cell fields repaired by the validator. Labels: field
//   - ArchivedEntriesTotal: History entries moved to archive sinks.
//   - ArchiveFailuresTotal: Failed archive sink writes. Labels: sink
type EvolutionMetrics struct {
	AttemptsTotal          *prometheus.CounterVec
	AttemptDurationSeconds prometheus.Histogram
	CyclesTotal            *prometheus.CounterVec
	RepairsTotal           *prometheus.CounterVec
	ArchivedEntriesTotal   prometheus.Counter
	ArchiveFailuresTotal   *prometheus.CounterVec
}

// NewEvolutionMetrics creates and registers all metrics on reg.
//
// # Inputs
//
//   - reg: Registry to register on. Pass prometheus.DefaultRegisterer in
//     production and prometheus.NewRegistry() in tests.
//
// # Outputs
//
//   - *EvolutionMetrics: The registered metrics.
//
// # Limitations
//
//   - Panics if called twice with the same registry (duplicate registration).
func NewEvolutionMetrics(reg prometheus.Registerer) *EvolutionMetrics {
	factory := promauto.With(reg)
	return &EvolutionMetrics{
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "attempts_total",
				Help:      "Generation attempts by outcome",
			},
			[]string{"outcome"},
		),

		AttemptDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "attempt_duration_seconds",
				Help:      "Duration of one generation attempt including validation",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "cycles_total",
				Help:      "Evolution cycles by final status",
			},
			[]string{"status"},
		),

		RepairsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "repairs_total",
				Help:      "Cell fields repaired by the response validator",
			},
			[]string{"field"},
		),

		ArchivedEntriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "archived_entries_total",
				Help:      "History entries moved to archive sinks",
			},
		),

		ArchiveFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "archive_failures_total",
				Help:      "Failed archive writes by sink",
			},
			[]string{"sink"},
		),
	}
}

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordAttempt records one generation attempt.
func (m *EvolutionMetrics) RecordAttempt(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
	m.AttemptDurationSeconds.Observe(d.Seconds())
}

// RecordCycle records the final status of a cycle.
func (m *EvolutionMetrics) RecordCycle(status string) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
}

// RecordRepair records one repaired cell field.
func (m *EvolutionMetrics) RecordRepair(field string) {
	if m == nil {
		return
	}
	m.RepairsTotal.WithLabelValues(field).Inc()
}

// RecordArchived records entries moved to the archive.
func (m *EvolutionMetrics) RecordArchived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ArchivedEntriesTotal.Add(float64(n))
}

// RecordArchiveFailure records a failed write to the named sink.
func (m *EvolutionMetrics) RecordArchiveFailure(sink string) {
	if m == nil {
		return
	}
	m.ArchiveFailuresTotal.WithLabelValues(sink).Inc()
}
