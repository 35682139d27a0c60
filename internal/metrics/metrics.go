// Package metrics exposes the node's prometheus gauges: ring factor,
// replication progress, and route table size, mirroring the teacher's
// practice of wiring github.com/prometheus/client_golang gauges
// alongside its structured logging rather than relying on log lines
// for operational visibility.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the gauges a running node updates.
type Registry struct {
	RingFactor          prometheus.Gauge
	RingPeerCount       prometheus.Gauge
	RouteTableSize      prometheus.Gauge
	ReplicationProgress prometheus.Gauge
	ReplicationMax      prometheus.Gauge
	PendingJoins        prometheus.Gauge
}

// NewRegistry constructs and registers every gauge against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		RingFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sharedlog",
			Subsystem: "ring",
			Name:      "local_factor",
			Help:      "This peer's current claimed replication factor on the ring.",
		}),
		RingPeerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sharedlog",
			Subsystem: "ring",
			Name:      "peer_count",
			Help:      "Number of peers currently present on the replication ring.",
		}),
		RouteTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sharedlog",
			Subsystem: "routing",
			Name:      "table_size",
			Help:      "Number of distinct targets with a learned route.",
		}),
		ReplicationProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sharedlog",
			Subsystem: "replication",
			Name:      "progress",
			Help:      "Confirmed replica count for the most recently tracked append.",
		}),
		ReplicationMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sharedlog",
			Subsystem: "replication",
			Name:      "target",
			Help:      "Target replica count (min_replicas) for the most recently tracked append.",
		}),
		PendingJoins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sharedlog",
			Subsystem: "log",
			Name:      "pending_joins",
			Help:      "Entries deferred awaiting missing causal parents.",
		}),
	}
	reg.MustRegister(
		m.RingFactor,
		m.RingPeerCount,
		m.RouteTableSize,
		m.ReplicationProgress,
		m.ReplicationMax,
		m.PendingJoins,
	)
	return m
}
