// Package core implements the peer session engine's working parts: the
// session reader/writer pair, the peer registry, the transfer table,
// and the inbound/outbound message handlers that drive spec.md's state
// machine. See pkg/mcast/core/peer.go in the teacher repository for the
// poll-loop-plus-collaborators shape this package generalizes from a
// multicast peer to a TCP peer.
package core

import (
	"github.com/kestrel-labs/peerlink/pkg/peerlink/definition"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
)

// Deps bundles every collaborator a session or command handler needs.
// One Deps is shared by the whole engine (one registry, one transfer
// table, one notification sender), the way the teacher's Peer struct
// bundles its transport/clock/deliver/log fields.
type Deps struct {
	Registry  *Registry
	Transfers *TransferTable
	Log       definition.Logger
	Metrics   *definition.Metrics

	// notify is the single outbound notification sender the whole
	// engine shares. Send through Deps.Notify, never directly, so a
	// full channel degrades to a dropped notification plus a log line
	// instead of blocking a peer's reader/writer loop (spec.md's
	// ordering/backpressure rules only promise order and bound on the
	// peer outbox, not on the frontend notification channel).
	notify chan<- types.Notification

	// Identity returns this engine's own ConnectionInfo, sent in every
	// ConnectRequest/ConnectResponse.
	Identity func() types.PeerIdentity

	// Running reports whether the engine's accept loop is currently
	// started — spec.md §4.3: "connect(address) fails if the engine is
	// stopped".
	Running func() bool
}

// NewDeps constructs the shared collaborator bundle. notifyCh is owned
// by the caller (the engine); Deps only ever sends on it.
func NewDeps(notifyCh chan<- types.Notification, log definition.Logger, metrics *definition.Metrics, identity func() types.PeerIdentity, running func() bool) *Deps {
	d := &Deps{
		Log:      log,
		Metrics:  metrics,
		notify:   notifyCh,
		Identity: identity,
		Running:  running,
	}
	d.Registry = NewRegistry(d)
	d.Transfers = NewTransferTable()
	return d
}

// Notify delivers n to the frontend, logging and discarding it if the
// channel is unexpectedly full rather than blocking the caller.
func (d *Deps) Notify(n types.Notification) {
	select {
	case d.notify <- n:
	default:
		d.Log.Warnf("notification channel full, dropping %T", n)
	}
}
