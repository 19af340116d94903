package core

import (
	"context"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/wire"
)

// handleInbound dispatches one decoded peer message through the state
// machine in spec.md §4.4. It is called from the session's reader
// loop, so it runs on that peer's single reader goroutine — the
// ordering guarantee spec.md §5 promises for inbound messages.
func handleInbound(ctx context.Context, deps *Deps, s *Session, msg wire.Message) {
	switch m := msg.(type) {
	case wire.KeepAlive:
		scheduleKeepAliveReply(ctx, deps, s)

	case wire.ConnectRequest:
		onConnectRequest(deps, s, m)

	case wire.ConnectResponse:
		onConnectResponse(deps, s, m)

	case wire.DisconnectRequest:
		onDisconnectRequest(deps, s, m)

	case wire.DisconnectAck:
		deps.Registry.DropPeer(s.Address, nil)

	case wire.ImmediateConnectionClose:
		onImmediateConnectionClose(deps, s, m)

	case wire.FileOfferRequest:
		onFileOfferRequest(deps, s, m)

	case wire.FileOfferResponse:
		onFileOfferResponse(deps, s, m)

	case wire.FileChunk:
		onFileChunk(deps, s, m)

	case wire.FileChunkAck:
		onFileChunkAck(deps, s, m)

	case wire.FileDone:
		onFileDone(deps, s, m)

	case wire.FileDoneResult:
		onFileDoneResult(deps, s, m)

	default:
		deps.Log.Warnf("dropping peer %s: unhandled message %T", s.Address, msg)
		deps.Registry.DropPeer(s.Address, strPtr("unhandled message type"))
	}
}

func identityOf(info wire.ConnectionInfo) types.PeerIdentity {
	return types.PeerIdentity{
		Name:           info.Name,
		BackendVersion: info.BackendVersion,
		PublicKey:      info.Identity.PublicKey,
	}
}

func onConnectRequest(deps *Deps, s *Session, m wire.ConnectRequest) {
	info := identityOf(m.Info)

	var firstInfo bool
	_, applied, found := deps.Registry.WithState(s.Address, func(_ *Session, state types.PeerState) (types.PeerState, bool) {
		if state.Kind != types.PeerConnected {
			return state, false
		}
		firstInfo = !state.HasInfo()
		return state.WithInfo(info), true
	})
	if !found {
		return
	}
	if !applied {
		deps.Log.Warnf("dropping peer %s: ConnectRequest in state other than Connected", s.Address)
		deps.Registry.DropPeer(s.Address, strPtr("protocol violation: unexpected ConnectRequest"))
		return
	}

	deps.Notify(types.ConnectRequestNotification{Peer: s.Address, Info: info})
	if firstInfo {
		s.Enqueue(wire.KeepAlive{})
	}
}

func onConnectResponse(deps *Deps, s *Session, m wire.ConnectResponse) {
	if m.Deny {
		onConnectDeny(deps, s, m)
		return
	}

	info := identityOf(m.Permit.Info)
	_, applied, found := deps.Registry.WithState(s.Address, func(_ *Session, state types.PeerState) (types.PeerState, bool) {
		if state.Kind == types.PeerConnected && state.HasInfo() {
			return state.Authenticate(info), true
		}
		return state, false
	})
	if !found {
		return
	}
	if !applied {
		deps.Registry.DropPeer(s.Address, strPtr("protocol violation: unexpected ConnectResponse(Permit)"))
		return
	}
	deps.Notify(types.ConnectionRequestResponseNotification{Peer: s.Address, Accept: true})
}

func onConnectDeny(deps *Deps, s *Session, m wire.ConnectResponse) {
	state, ok := deps.Registry.State(s.Address)
	if !ok {
		return
	}
	if state.Kind != types.PeerConnected || !state.HasInfo() {
		deps.Registry.DropPeer(s.Address, strPtr("protocol violation: unexpected ConnectResponse(Deny)"))
		return
	}
	deps.Notify(types.ConnectionRequestResponseNotification{Peer: s.Address, Accept: false, Reason: m.Message})
	s.Enqueue(wire.DisconnectAck{})
	deps.Registry.DropPeer(s.Address, nil)
}

func onDisconnectRequest(deps *Deps, s *Session, m wire.DisconnectRequest) {
	_, applied, found := deps.Registry.WithState(s.Address, func(_ *Session, state types.PeerState) (types.PeerState, bool) {
		if state.Kind == types.PeerAuthenticated {
			return state.Disconnect(m.Message), true
		}
		return state, false
	})
	if !found {
		return
	}
	if !applied {
		deps.Registry.DropPeer(s.Address, strPtr("protocol violation: premature DisconnectRequest"))
		return
	}
	if s.Enqueue(wire.DisconnectAck{}) {
		deps.Registry.DropPeer(s.Address, nil)
	}
}

func onImmediateConnectionClose(deps *Deps, s *Session, m wire.ImmediateConnectionClose) {
	state, ok := deps.Registry.State(s.Address)
	if !ok {
		return
	}
	if state.Kind == types.PeerConnected && !state.HasInfo() {
		deps.Registry.DropPeer(s.Address, m.Message)
		return
	}
	if state.Kind != types.PeerDisconnecting {
		deps.Registry.SetState(s.Address, state.Disconnect(m.Message))
	}
	deps.Registry.DropPeer(s.Address, nil)
}

func onFileOfferRequest(deps *Deps, s *Session, m wire.FileOfferRequest) {
	state, ok := deps.Registry.State(s.Address)
	if !ok || state.Kind != types.PeerAuthenticated {
		deps.Registry.DropPeer(s.Address, strPtr("protocol violation: FileOfferRequest while not authenticated"))
		return
	}

	id := types.TransferID(m.Offer.ID)
	rec := &types.TransferRecord{
		ID:        id,
		Peer:      s.Address,
		Direction: types.Receiving(),
		Filename:  m.Offer.Filename,
		TotalSize: m.Offer.TotalSize,
		ChunkLen:  m.Offer.ChunkLen,
		Status:    types.WaitingForPeerResponse(),
	}
	deps.Transfers.Insert(rec)
	deps.Metrics.ActiveTransfers.Set(float64(deps.Transfers.Count()))

	deps.Notify(types.FileOfferNotification{
		Peer:     s.Address,
		Filename: m.Offer.Filename,
		ID:       id,
		Size:     m.Offer.TotalSize,
	})
}

func onFileOfferResponse(deps *Deps, s *Session, m wire.FileOfferResponse) {
	state, ok := deps.Registry.State(s.Address)
	if !ok || state.Kind != types.PeerAuthenticated {
		deps.Registry.DropPeer(s.Address, strPtr("protocol violation: FileOfferResponse while not authenticated"))
		return
	}

	id := types.TransferID(m.ID)
	rec, ok := deps.Transfers.Get(id)
	if !ok || rec.Direction.Kind != types.DirectionSending || rec.Peer != s.Address {
		deps.Registry.DropPeer(s.Address, strPtr("protocol violation: FileOfferResponse for unknown transfer"))
		return
	}

	if !m.Accept {
		rec.Status = types.Rejected()
		deps.Transfers.Remove(id)
		deps.Metrics.ActiveTransfers.Set(float64(deps.Transfers.Count()))
		deps.Metrics.TransfersFailed.Inc()
		return
	}

	startSendingTransfer(deps, s, rec)
}
