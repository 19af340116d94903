package core

import (
	"context"
	"testing"
	"time"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/wire"
)

func drainOutbox(t *testing.T, s *Session) wire.Message {
	t.Helper()
	select {
	case m := <-s.Outbox:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for an outbox message")
		return nil
	}
}

func TestConnectRequestFirstTimeBootstrapsKeepAlive(t *testing.T) {
	deps, notify := testDeps()
	addr := types.PeerAddress("127.0.0.1:9101")
	s, _ := mustAccept(t, deps, addr)

	handleInbound(context.Background(), deps, s, wire.ConnectRequest{
		Info: wire.ConnectionInfo{Name: "peer-b", BackendVersion: "1.0.0"},
	})

	state, ok := deps.Registry.State(addr)
	if !ok || state.Kind != types.PeerConnected || !state.HasInfo() {
		t.Fatalf("expected Connected(info), got %+v (found=%v)", state, ok)
	}
	if state.Info.Name != "peer-b" {
		t.Fatalf("expected stored name peer-b, got %q", state.Info.Name)
	}

	if n := drainNotification(t, notify); n == nil {
		t.Fatal("expected a ConnectRequest notification")
	}
	if _, ok := drainOutbox(t, s).(wire.KeepAlive); !ok {
		t.Fatal("expected the first ConnectRequest to bootstrap a KeepAlive reply")
	}
}

func TestConnectRequestSecondTimeDoesNotRebootstrap(t *testing.T) {
	deps, notify := testDeps()
	addr := types.PeerAddress("127.0.0.1:9102")
	s, _ := mustAccept(t, deps, addr)

	first := wire.ConnectionInfo{Name: "peer-b", BackendVersion: "1.0.0"}
	handleInbound(context.Background(), deps, s, wire.ConnectRequest{Info: first})
	drainNotification(t, notify)
	drainOutbox(t, s) // the bootstrap KeepAlive

	handleInbound(context.Background(), deps, s, wire.ConnectRequest{Info: first})
	drainNotification(t, notify)

	select {
	case m := <-s.Outbox:
		t.Fatalf("expected no second KeepAlive bootstrap, got %T", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnectRequestWhileAuthenticatedDropsPeer(t *testing.T) {
	deps, _ := testDeps()
	addr := types.PeerAddress("127.0.0.1:9103")
	s, _ := mustAccept(t, deps, addr)

	info := types.PeerIdentity{Name: "peer-b"}
	deps.Registry.SetState(addr, types.PeerState{Kind: types.PeerAuthenticated, Info: &info})

	handleInbound(context.Background(), deps, s, wire.ConnectRequest{Info: wire.ConnectionInfo{Name: "peer-b"}})

	if _, ok := deps.Registry.Get(addr); ok {
		t.Fatal("expected an already-Authenticated peer sending ConnectRequest again to be dropped")
	}
}

func TestConnectResponsePermitAuthenticates(t *testing.T) {
	deps, notify := testDeps()
	addr := types.PeerAddress("127.0.0.1:9104")
	s, _ := mustAccept(t, deps, addr)

	info := types.PeerIdentity{Name: "peer-b"}
	deps.Registry.SetState(addr, types.PeerState{Kind: types.PeerConnected, Info: &info})

	handleInbound(context.Background(), deps, s, wire.ConnectResponse{
		Permit: wire.ConnectPermit{Info: wire.ConnectionInfo{Name: "peer-b"}},
	})

	state, _ := deps.Registry.State(addr)
	if !state.IsAuthenticated() {
		t.Fatalf("expected Authenticated, got %s", state.Kind)
	}
	n := drainNotification(t, notify)
	resp, ok := n.(types.ConnectionRequestResponseNotification)
	if !ok || !resp.Accept {
		t.Fatalf("expected an accepted ConnectionRequestResponse notification, got %#v", n)
	}
}

func TestConnectResponseDenySendsAckAndDrops(t *testing.T) {
	deps, notify := testDeps()
	addr := types.PeerAddress("127.0.0.1:9105")
	s, _ := mustAccept(t, deps, addr)

	info := types.PeerIdentity{Name: "peer-b"}
	deps.Registry.SetState(addr, types.PeerState{Kind: types.PeerConnected, Info: &info})

	reason := "no thanks"
	handleInbound(context.Background(), deps, s, wire.ConnectResponse{Deny: true, Message: &reason})

	n := drainNotification(t, notify)
	resp, ok := n.(types.ConnectionRequestResponseNotification)
	if !ok || resp.Accept || resp.Reason == nil || *resp.Reason != reason {
		t.Fatalf("expected a rejected ConnectionRequestResponse with reason, got %#v", n)
	}
	if _, ok := drainOutbox(t, s).(wire.DisconnectAck); !ok {
		t.Fatal("expected a DisconnectAck to be enqueued")
	}
	if _, ok := deps.Registry.Get(addr); ok {
		t.Fatal("expected the peer to be dropped after a deny")
	}
}

func TestDisconnectRequestBeforeAuthenticatedIsProtocolViolation(t *testing.T) {
	deps, _ := testDeps()
	addr := types.PeerAddress("127.0.0.1:9106")
	s, _ := mustAccept(t, deps, addr)

	handleInbound(context.Background(), deps, s, wire.DisconnectRequest{})

	if _, ok := deps.Registry.Get(addr); ok {
		t.Fatal("expected a premature DisconnectRequest to drop the peer")
	}
}

func TestFileOfferRequestRequiresAuthenticated(t *testing.T) {
	deps, _ := testDeps()
	addr := types.PeerAddress("127.0.0.1:9107")
	s, _ := mustAccept(t, deps, addr)

	handleInbound(context.Background(), deps, s, wire.FileOfferRequest{
		Offer: wire.FileOffer{Filename: "x", TotalSize: 10, ChunkLen: 10},
	})

	if _, ok := deps.Registry.Get(addr); ok {
		t.Fatal("expected FileOfferRequest while not authenticated to drop the peer")
	}
}

func TestFileOfferRequestWhileAuthenticatedCreatesRecord(t *testing.T) {
	deps, notify := testDeps()
	addr := types.PeerAddress("127.0.0.1:9108")
	s, _ := mustAccept(t, deps, addr)

	info := types.PeerIdentity{Name: "peer-b"}
	deps.Registry.SetState(addr, types.PeerState{Kind: types.PeerAuthenticated, Info: &info})

	id := types.NewTransferID()
	handleInbound(context.Background(), deps, s, wire.FileOfferRequest{
		Offer: wire.FileOffer{Filename: "x", ID: idBytes(id), TotalSize: 3145728, ChunkLen: 1048576},
	})

	rec, ok := deps.Transfers.Get(id)
	if !ok {
		t.Fatal("expected a transfer record to be created")
	}
	if rec.Status.Kind != types.StatusWaitingForPeerResponse || rec.Direction.Kind != types.DirectionReceiving {
		t.Fatalf("unexpected record state: %+v", rec)
	}

	n := drainNotification(t, notify)
	if offer, ok := n.(types.FileOfferNotification); !ok || offer.Size != 3145728 {
		t.Fatalf("expected a FileOffer notification, got %#v", n)
	}
}
