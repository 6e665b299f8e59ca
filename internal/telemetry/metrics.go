package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency, labeled by method/path/status.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "kubefleet",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// PoolSize reports the number of live client-pool entries, labeled by cluster.
var PoolSize = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "kubefleet",
		Subsystem: "clientpool",
		Name:      "entries",
		Help:      "Number of pooled API client entries per cluster.",
	},
	[]string{"cluster_id"},
)

// PoolEvictions counts client pool evictions, labeled by reason.
var PoolEvictions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kubefleet",
		Subsystem: "clientpool",
		Name:      "evictions_total",
		Help:      "Total number of client pool entries evicted.",
	},
	[]string{"reason"},
)

// WSConnections reports the number of live WebSocket connections.
var WSConnections = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "kubefleet",
		Subsystem: "wshub",
		Name:      "connections",
		Help:      "Number of live WebSocket connections.",
	},
)

// WSBroadcasts counts WebSocket broadcast operations, labeled by room kind.
var WSBroadcasts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kubefleet",
		Subsystem: "wshub",
		Name:      "broadcasts_total",
		Help:      "Total number of WebSocket room broadcasts performed.",
	},
	[]string{"room_kind"},
)

// WatcherStreams reports the number of live per-cluster watcher streams.
var WatcherStreams = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "kubefleet",
		Subsystem: "watcher",
		Name:      "streams",
		Help:      "Number of live resource watcher streams per cluster.",
	},
	[]string{"cluster_id"},
)

// AuditQueueDepth reports the current depth of the audit writer's buffer.
var AuditQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "kubefleet",
		Subsystem: "audit",
		Name:      "queue_depth",
		Help:      "Number of buffered audit entries awaiting flush.",
	},
)

// AuditDropped counts audit entries dropped because the buffer was full.
var AuditDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "kubefleet",
		Subsystem: "audit",
		Name:      "dropped_total",
		Help:      "Total number of audit entries dropped due to a full buffer.",
	},
)

// NewRegistry creates a Prometheus registry with Go/process collectors, the
// shared HTTP histogram, and all kubefleet-specific collectors registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
		PoolSize,
		PoolEvictions,
		WSConnections,
		WSBroadcasts,
		WatcherStreams,
		AuditQueueDepth,
		AuditDropped,
	)
	return reg
}
