package netctl

import "github.com/prometheus/client_golang/prometheus"

// Ambient observability (SPEC_FULL.md §2), carried regardless of the
// spec's own networking-only framing: a gauge tracking live connected
// peers and a counter tracking protocol-enable events, in the shape
// rpc.NewGRPCServer already instruments gRPC calls with via
// grpc_prometheus.
var (
	connectedPeersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "spectrum",
		Subsystem: "netctl",
		Name:      "connected_peers",
		Help:      "Number of peers currently in the Connected state.",
	})

	protocolEnabledCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spectrum",
		Subsystem: "netctl",
		Name:      "protocol_enabled_total",
		Help:      "Count of substreams that reached the Enabled state, by protocol id.",
	}, []string{"protocol"})
)

func init() {
	prometheus.MustRegister(connectedPeersGauge, protocolEnabledCounter)
}
