package core

import (
	"context"
	"crypto/sha256"
	"os"
	"time"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/config"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/wire"
)

// HandleCommand dispatches one frontend command through the handlers
// in spec.md §4.5. Lifecycle commands (FrontendReady/Start/Restart/
// Shutdown) are the engine's own concern and are handled there; this
// file covers the registry/transfer-table-driven commands.
func HandleCommand(ctx context.Context, deps *Deps, cmd types.Command) {
	switch c := cmd.(type) {
	case types.ConnectCommand:
		handleConnect(ctx, deps, c)
	case types.ConnectionRequestResponseCommand:
		handleConnectionRequestResponse(deps, c)
	case types.DisconnectCommand:
		handleDisconnect(deps, c)
	case types.TransmitFile:
		handleTransmitFile(deps, c)
	case types.FileOfferResponseCommand:
		handleFileOfferResponseCommand(deps, c)
	case types.CancelFileTransfer:
		handleCancelFileTransfer(deps, c)
	default:
		deps.Log.Warnf("unhandled command %T", cmd)
	}
}

func identityToWire(id types.PeerIdentity) wire.ConnectionInfo {
	return wire.ConnectionInfo{
		Name:           id.Name,
		BackendVersion: id.BackendVersion,
		Identity:       wire.Identity{PublicKey: id.PublicKey},
	}
}

func badCommand(deps *Deps, name, reason string) {
	deps.Notify(types.BadFrontendEvent{Command: name, Reason: reason})
}

func handleConnect(ctx context.Context, deps *Deps, c types.ConnectCommand) {
	const name = "ConnectRequest"

	addr, err := types.ParsePeerAddress(c.IP)
	if err != nil {
		badCommand(deps, name, err.Error())
		return
	}
	if !deps.Running() {
		badCommand(deps, name, "engine is stopped")
		return
	}
	if err := deps.Registry.BeginConnect(ctx, addr); err != nil {
		badCommand(deps, name, err.Error())
		return
	}

	// BeginConnect's dial already runs in its own goroutine; the poll
	// for it landing in the registry is itself up to config.ConnectPollBudget
	// of blocking (ConnectPollAttempts*ConnectPollInterval), so it gets
	// the same treatment — spawned here rather than run on the router
	// goroutine dispatch runs on, which must stay free for the next
	// command (spec.md §5's single-router-task invariant).
	go awaitConnected(deps, addr)
}

func awaitConnected(deps *Deps, addr types.PeerAddress) {
	const name = "ConnectRequest"

	for attempt := 0; attempt < config.ConnectPollAttempts; attempt++ {
		if state, ok := deps.Registry.State(addr); ok && state.Kind == types.PeerConnected {
			if s, ok := deps.Registry.Get(addr); ok {
				s.Enqueue(wire.ConnectRequest{Info: identityToWire(deps.Identity())})
			}
			return
		}
		time.Sleep(config.ConnectPollInterval)
	}
	badCommand(deps, name, "timed out waiting for connection")
}

func handleConnectionRequestResponse(deps *Deps, c types.ConnectionRequestResponseCommand) {
	const name = "ConnectionRequestResponse"

	addr, err := types.ParsePeerAddress(c.IP)
	if err != nil {
		badCommand(deps, name, err.Error())
		return
	}

	s, applied, found := deps.Registry.WithState(addr, func(_ *Session, state types.PeerState) (types.PeerState, bool) {
		if state.Kind != types.PeerConnected || !state.HasInfo() {
			return state, false
		}
		if c.Accept {
			return state.Authenticate(*state.Info), true
		}
		reason := c.Message
		if reason == nil {
			reason = strPtr("rejected by user")
		}
		return state.Disconnect(reason), true
	})
	if !found {
		badCommand(deps, name, "peer not present")
		return
	}
	if !applied {
		badCommand(deps, name, "peer is not in a state that can be answered")
		return
	}

	if c.Accept {
		s.Enqueue(wire.ConnectResponse{Permit: wire.ConnectPermit{Info: identityToWire(deps.Identity())}})
		deps.Notify(types.ConnectionRequestResponseNotification{Peer: addr, Accept: true})
	} else {
		s.Enqueue(wire.ConnectResponse{Deny: true, Message: c.Message})
	}
}

func handleDisconnect(deps *Deps, c types.DisconnectCommand) {
	const name = "DisconnectRequest"

	addr, err := types.ParsePeerAddress(c.IP)
	if err != nil {
		badCommand(deps, name, err.Error())
		return
	}

	s, applied, found := deps.Registry.WithState(addr, func(_ *Session, state types.PeerState) (types.PeerState, bool) {
		switch {
		case state.Kind == types.PeerAuthenticated, state.Kind == types.PeerConnected && state.HasInfo():
			return state.Disconnect(c.Message), true
		default:
			return state, false
		}
	})
	if !found {
		badCommand(deps, name, "peer not present")
		return
	}
	if !applied {
		// Already Disconnecting: a second Disconnect just finishes it.
		// Connected with no identity yet: dropped directly, with nothing
		// to report upward.
		deps.Registry.DropPeer(addr, nil)
		return
	}
	if !s.Enqueue(wire.DisconnectRequest{Message: c.Message}) {
		deps.Registry.DropPeer(addr, nil)
	}
}

func handleTransmitFile(deps *Deps, c types.TransmitFile) {
	const name = "TransmitFile"

	f, err := os.Open(c.Path)
	if err != nil {
		badCommand(deps, name, err.Error())
		return
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		badCommand(deps, name, err.Error())
		return
	}
	f.Close()

	addr, err := types.ParsePeerAddress(c.IP)
	if err != nil {
		badCommand(deps, name, err.Error())
		return
	}
	s, ok := deps.Registry.Get(addr)
	if !ok {
		badCommand(deps, name, "peer not present")
		return
	}

	id := types.NewTransferID()
	rec := &types.TransferRecord{
		ID:        id,
		Peer:      addr,
		Direction: types.SendingFrom(c.Path),
		Filename:  c.Filename,
		TotalSize: uint64(info.Size()),
		ChunkLen:  config.DefaultChunkLen,
		Status:    types.WaitingForPeerResponse(),
	}
	deps.Transfers.Insert(rec)
	deps.Metrics.ActiveTransfers.Set(float64(deps.Transfers.Count()))

	offer := wire.FileOffer{
		Filename:  c.Filename,
		ID:        idBytes(id),
		TotalSize: rec.TotalSize,
		ChunkLen:  rec.ChunkLen,
	}
	if !s.Enqueue(wire.FileOfferRequest{Offer: offer}) {
		deps.Transfers.Remove(id)
		deps.Registry.DropPeer(addr, nil)
	}
}

func handleFileOfferResponseCommand(deps *Deps, c types.FileOfferResponseCommand) {
	const name = "FileOfferResponse"

	rec, ok := deps.Transfers.Get(c.ID)
	if !ok || rec.Direction.Kind != types.DirectionReceiving {
		badCommand(deps, name, "unknown transfer, or not one this side can answer")
		return
	}
	s, ok := deps.Registry.Get(rec.Peer)
	if !ok {
		badCommand(deps, name, "peer no longer connected")
		return
	}

	if !c.Accept {
		rec.Status = types.Rejected()
		deps.Transfers.Remove(c.ID)
		deps.Metrics.ActiveTransfers.Set(float64(deps.Transfers.Count()))
		deps.Metrics.TransfersFailed.Inc()
		s.Enqueue(wire.FileOfferResponse{ID: idBytes(c.ID), Accept: false})
		return
	}

	f, err := os.Create(rec.Filename)
	if err != nil {
		badCommand(deps, name, err.Error())
		rec.Status = types.Errored(err.Error())
		deps.Transfers.Remove(c.ID)
		deps.Metrics.ActiveTransfers.Set(float64(deps.Transfers.Count()))
		deps.Metrics.TransfersFailed.Inc()
		return
	}
	rec.Status = types.InProgress(f)
	rec.NextChunkID = 0
	rec.Checksum = sha256.New()
	deps.Metrics.ActiveTransfers.Set(float64(deps.Transfers.Count()))
	s.Enqueue(wire.FileOfferResponse{ID: idBytes(c.ID), Accept: true})
}

func handleCancelFileTransfer(deps *Deps, c types.CancelFileTransfer) {
	const name = "CancelFileTransfer"

	rec, ok := deps.Transfers.Get(c.ID)
	if !ok {
		badCommand(deps, name, "unknown transfer")
		return
	}

	if s, ok := deps.Registry.Get(rec.Peer); ok {
		s.Enqueue(wire.FileDoneResult{ID: idBytes(c.ID), Success: false, Message: strPtr("cancelled")})
	}
	finishTransfer(deps, rec, false, strPtr("cancelled"))
}
