// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the realtime
// meeting-canvas service.
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "meetingcanvas"

const realtimeSubsystem = "realtime"

// RealtimeMetrics holds all Prometheus metrics for the realtime engine.
// Initialize once at startup via InitMetrics().
type RealtimeMetrics struct {
	// MessagesTotal counts inbound websocket messages by type.
	// Labels: type (transcript_event, run_ai, client_board_action, ...)
	MessagesTotal *prometheus.CounterVec

	// BroadcastsTotal counts outbound broadcast payloads by type.
	// Labels: type (board_actions, mindmap_actions, status, error)
	BroadcastsTotal *prometheus.CounterVec

	// ConnectedClients tracks currently connected websocket clients.
	ConnectedClients prometheus.Gauge

	// ProducerRunsTotal counts producer rounds by producer and outcome.
	// Labels: producer (board, mindmap), outcome (applied, conflict, empty, error)
	ProducerRunsTotal *prometheus.CounterVec

	// ThrottledCreatesTotal counts create_card actions dropped by the
	// rate limiter.
	ThrottledCreatesTotal prometheus.Counter

	// DedupedCreatesTotal counts creates rewritten into updates.
	DedupedCreatesTotal prometheus.Counter

	// ResearchTasksTotal counts research task executions.
	// Labels: tool, status (success, error, disabled)
	ResearchTasksTotal *prometheus.CounterVec

	// PersistWritesTotal counts durable state operations.
	// Labels: op (save, clear), status (success, error)
	PersistWritesTotal *prometheus.CounterVec

	// RunDurationSeconds measures producer round duration.
	// Labels: producer (board, mindmap)
	RunDurationSeconds *prometheus.HistogramVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *RealtimeMetrics

// InitMetrics creates and registers all metrics on the default registry.
// Call once at startup; a second call panics on duplicate registration.
func InitMetrics() *RealtimeMetrics {
	DefaultMetrics = &RealtimeMetrics{
		MessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "messages_total",
				Help:      "Total inbound websocket messages by type",
			},
			[]string{"type"},
		),

		BroadcastsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "broadcasts_total",
				Help:      "Total broadcast payloads by type",
			},
			[]string{"type"},
		),

		ConnectedClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "connected_clients",
				Help:      "Number of currently connected websocket clients",
			},
		),

		ProducerRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "producer_runs_total",
				Help:      "Total producer rounds by producer and outcome",
			},
			[]string{"producer", "outcome"},
		),

		ThrottledCreatesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "throttled_creates_total",
				Help:      "Total create_card actions dropped by rate limiting",
			},
		),

		DedupedCreatesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "deduped_creates_total",
				Help:      "Total create_card actions rewritten into updates",
			},
		),

		ResearchTasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "research_tasks_total",
				Help:      "Total research task executions by tool and status",
			},
			[]string{"tool", "status"},
		),

		PersistWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "persist_writes_total",
				Help:      "Total durable state operations by op and status",
			},
			[]string{"op", "status"},
		),

		RunDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: realtimeSubsystem,
				Name:      "run_duration_seconds",
				Help:      "Producer round duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"producer"},
		),
	}
	return DefaultMetrics
}
