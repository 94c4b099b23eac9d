// Package metrics exposes the control plane's Prometheus instrumentation
// (SPEC_FULL.md's DOMAIN STACK table): worker pool occupancy, event queue
// depth, per-agent cycle duration, and Carrier poll latency. The teacher
// repo carries github.com/prometheus/client_golang as a dependency but has
// no concrete registration site to ground this on directly (see DESIGN.md);
// the shape here follows promauto's standard idiom, the same library.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles the control plane's metrics. cmd/iddsd constructs one
// Registry per agent process and records CycleDuration for every agent
// cycle; no other package in this module records the remaining metrics.
type Registry struct {
	WorkerPoolOccupancy *prometheus.GaugeVec
	EventQueueDepth     *prometheus.GaugeVec
	CycleDuration       *prometheus.HistogramVec
	DriverRPCLatency    *prometheus.HistogramVec
	EventsProcessed     *prometheus.CounterVec
}

// New registers every metric against reg (pass prometheus.NewRegistry() for
// tests, or prometheus.DefaultRegisterer in production).
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		WorkerPoolOccupancy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "idds",
			Name:      "worker_pool_occupancy",
			Help:      "Number of worker pool slots currently in use, by agent.",
		}, []string{"agent"}),
		EventQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "idds",
			Name:      "event_queue_depth",
			Help:      "Number of pending events per event type.",
		}, []string{"event_type"}),
		CycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "idds",
			Name:      "agent_cycle_duration_seconds",
			Help:      "Wall-clock duration of one agent poll/dispatch cycle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent"}),
		DriverRPCLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "idds",
			Name:      "driver_rpc_latency_seconds",
			Help:      "Latency of outbound backend task driver RPCs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"driver", "operation"}),
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "idds",
			Name:      "events_processed_total",
			Help:      "Count of events processed by the runtime dispatcher, by type and outcome.",
		}, []string{"event_type", "outcome"}),
	}
}
