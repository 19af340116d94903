package core

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/config"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/wire"
)

// Registry is the peer registry from spec.md §3/§4.3: an associative
// map from PeerAddress to the live Session for that peer, exclusively
// owned under mu. Every state transition and every insert/remove goes
// through this one lock, so drop_peer's "remove, then notify" pair is
// atomic with respect to a concurrent drop_peer on the same address.
type Registry struct {
	mu    sync.Mutex
	peers map[types.PeerAddress]*Session

	deps *Deps
}

// NewRegistry builds an empty registry. deps is used for its
// Notify/Metrics/Log/Identity fields, for clearing a dropped peer's
// transfers, and for spawning sessions on Accept/BeginConnect; it is
// set once at engine construction (see Deps.Registry).
func NewRegistry(deps *Deps) *Registry {
	return &Registry{
		peers: make(map[types.PeerAddress]*Session),
		deps:  deps,
	}
}

// Get returns the session for addr, if any. The returned pointer
// remains valid to use (read Address, send on Outbox) after the lock is
// released; only its state field requires going back through the
// registry to mutate.
func (r *Registry) Get(addr types.PeerAddress) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.peers[addr]
	return s, ok
}

// Count returns the number of registered peers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Addresses returns a snapshot of every registered peer address, for
// callers (shutdown broadcast) that must iterate without holding the
// registry locked across blocking sends.
func (r *Registry) Addresses() []types.PeerAddress {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.PeerAddress, 0, len(r.peers))
	for a := range r.peers {
		out = append(out, a)
	}
	return out
}

// State returns the current PeerState for addr.
func (r *Registry) State(addr types.PeerAddress) (types.PeerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.peers[addr]
	if !ok {
		return types.PeerState{}, false
	}
	return s.state, true
}

// SetState overwrites addr's PeerState, returning false if addr is no
// longer registered (the caller lost a race with a concurrent
// drop_peer, and should treat the message/command that prompted the
// mutation as stale).
func (r *Registry) SetState(addr types.PeerAddress, state types.PeerState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.peers[addr]
	if !ok {
		return false
	}
	s.state = state
	return true
}

// WithState loads addr's session and current state under the registry
// lock and lets fn decide the next state. fn returns the new state and
// whether it applies; a false "apply" lets fn reject a guard (e.g. an
// illegal state transition) without a second lock round-trip. The
// Session pointer fn receives stays valid for use after WithState
// returns (e.g. to Enqueue a reply outside the lock).
func (r *Registry) WithState(addr types.PeerAddress, fn func(s *Session, state types.PeerState) (next types.PeerState, apply bool)) (session *Session, applied bool, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.peers[addr]
	if !ok {
		return nil, false, false
	}
	next, apply := fn(s, s.state)
	if apply {
		s.state = next
	}
	return s, apply, true
}

// acceptFrom registers a session for an already-established conn,
// arriving either from the accept loop or from a successful outbound
// dial. Returns ErrAlreadyConnected if addr is already present.
func (r *Registry) acceptFrom(conn net.Conn, addr types.PeerAddress) (*Session, error) {
	r.mu.Lock()
	if _, exists := r.peers[addr]; exists {
		r.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	s := newSession(conn, addr)
	r.peers[addr] = s
	count := len(r.peers)
	r.mu.Unlock()

	r.deps.Metrics.ConnectedPeers.Set(float64(count))
	return s, nil
}

// Accept registers an inbound connection accepted by the engine's
// listener and starts its reader/writer pair. It immediately sends its
// own ConnectRequest, the same as the dialing side does once Connect's
// poll finds the session — spec.md §8 scenario 1 has both ends
// exchange ConnectRequest from a single one-sided Connect command, and
// §4.4's tie-break rule is written to tolerate exactly this: both sides
// independently reaching Authenticated once they see the peer's Permit.
func (r *Registry) Accept(ctx context.Context, conn net.Conn) (*Session, error) {
	addr := types.PeerAddress(conn.RemoteAddr().String())
	s, err := r.acceptFrom(conn, addr)
	if err != nil {
		conn.Close()
		return nil, err
	}
	go s.Run(ctx, r.deps)
	s.Enqueue(wire.ConnectRequest{Info: identityToWire(r.deps.Identity())})
	return s, nil
}

// ErrAlreadyConnected is returned by BeginConnect/Accept when addr is
// already present in the registry.
var ErrAlreadyConnected = fmt.Errorf("peer already connected")

// BeginConnect fails fast if addr is already present (spec.md §4.3),
// otherwise dials it in the background and registers/starts a session
// on success; dial failures are logged, not returned, since the caller
// observes the outcome by polling State (spec.md §4.5's Connect command
// polls up to 20×500ms waiting for the session to appear). The
// engine-stopped half of §4.3's guard is checked by the caller (the
// ConnectCommand handler in outbound.go) via Deps.Running before
// calling BeginConnect.
func (r *Registry) BeginConnect(ctx context.Context, addr types.PeerAddress) error {
	if _, exists := r.Get(addr); exists {
		return ErrAlreadyConnected
	}

	go func() {
		dialer := net.Dialer{}
		dialCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
		defer cancel()
		conn, err := dialer.DialContext(dialCtx, "tcp", addr.String())
		if err != nil {
			r.deps.Log.Warnf("connect to %s failed: %v", addr, err)
			return
		}

		s, err := r.acceptFrom(conn, addr)
		if err != nil {
			conn.Close()
			return
		}
		go s.Run(ctx, r.deps)
	}()
	return nil
}

// DropPeer is the registry's single exit point (spec.md §4.3): it
// atomically removes addr, removes that peer's transfer records
// (closing any open file handle), and, depending on the state it held
// at removal, emits at most one upward notification. overrideReason, when
// non-nil, takes precedence over any reason already stored on the
// peer's Disconnecting state.
func (r *Registry) DropPeer(addr types.PeerAddress, overrideReason *string) {
	r.mu.Lock()
	s, ok := r.peers[addr]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.peers, addr)
	state := s.state
	count := len(r.peers)
	r.mu.Unlock()

	s.shutdown()

	for _, rec := range r.deps.Transfers.RemoveByPeer(addr) {
		if rec.Status.FileHandle != nil {
			rec.Status.FileHandle.Close()
		}
	}
	r.deps.Metrics.ActiveTransfers.Set(float64(r.deps.Transfers.Count()))

	r.deps.Metrics.PeersDropped.Inc()
	r.deps.Metrics.ConnectedPeers.Set(float64(count))

	switch state.Kind {
	case types.PeerAuthenticated:
		r.deps.Notify(types.ConnectionBroken{Peer: addr, Info: *state.Info, Message: overrideReason})
	case types.PeerDisconnecting:
		reason := overrideReason
		if reason == nil {
			reason = state.DisconnectReason
		}
		r.deps.Notify(types.ConnectionClose{Peer: addr, Info: *state.Info, Message: reason})
	case types.PeerConnected:
		// Never authenticated: nothing meaningful to tell the frontend.
	}
}
