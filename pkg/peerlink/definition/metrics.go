package definition

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the Prometheus collectors the engine updates as
// peers connect, disconnect, and transfer file data. It replaces the
// teacher's direct dependency on the deprecated prometheus/common/log
// package (see DESIGN.md "Dropped teacher dependencies") with the
// client_golang collectors the rest of the retrieved corpus
// (DannyZB-torrent) uses for exactly this kind of daemon telemetry.
type Metrics struct {
	ConnectedPeers   prometheus.Gauge
	ActiveTransfers  prometheus.Gauge
	BytesSent        prometheus.Counter
	BytesReceived    prometheus.Counter
	PeersDropped     prometheus.Counter
	TransfersFailed  prometheus.Counter
}

// NewMetrics registers a fresh Metrics bundle against reg. Passing a
// nil registry is valid and yields unregistered (but still usable)
// collectors — handy for tests that don't care about exposition.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peerlink",
			Name:      "connected_peers",
			Help:      "Number of peers currently in the registry.",
		}),
		ActiveTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peerlink",
			Name:      "active_transfers",
			Help:      "Number of transfer records not yet in a terminal status.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerlink",
			Name:      "bytes_sent_total",
			Help:      "Total file-chunk bytes acknowledged by peers.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerlink",
			Name:      "bytes_received_total",
			Help:      "Total file-chunk bytes accepted from peers.",
		}),
		PeersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerlink",
			Name:      "peers_dropped_total",
			Help:      "Total times drop_peer has removed a session from the registry.",
		}),
		TransfersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerlink",
			Name:      "transfers_failed_total",
			Help:      "Total transfers that ended in Error, Cancelled, or Rejected.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectedPeers,
			m.ActiveTransfers,
			m.BytesSent,
			m.BytesReceived,
			m.PeersDropped,
			m.TransfersFailed,
		)
	}
	return m
}
