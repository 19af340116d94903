package core

import (
	"net"
	"testing"
	"time"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/definition"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
)

func testDeps() (*Deps, chan types.Notification) {
	notify := make(chan types.Notification, 16)
	log := definition.NewLogger(nil)
	identity := func() types.PeerIdentity { return types.PeerIdentity{Name: "test", BackendVersion: "0.0.0-test"} }
	return NewDeps(notify, log, definition.NewMetrics(nil), identity, func() bool { return true }), notify
}

func mustAccept(t *testing.T, deps *Deps, addr types.PeerAddress) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	s, err := deps.Registry.acceptFrom(server, addr)
	if err != nil {
		t.Fatalf("acceptFrom(%s): %v", addr, err)
	}
	return s, client
}

func drainNotification(t *testing.T, ch <-chan types.Notification) types.Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a notification")
		return nil
	}
}

func TestDropPeerConnectedEmitsNothing(t *testing.T) {
	deps, notify := testDeps()
	addr := types.PeerAddress("127.0.0.1:9001")
	mustAccept(t, deps, addr)

	deps.Registry.DropPeer(addr, nil)

	select {
	case n := <-notify:
		t.Fatalf("expected no notification for a never-authenticated peer, got %T", n)
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := deps.Registry.Get(addr); ok {
		t.Fatal("peer still present after DropPeer")
	}
}

func TestDropPeerAuthenticatedEmitsConnectionBrokenExactlyOnce(t *testing.T) {
	deps, notify := testDeps()
	addr := types.PeerAddress("127.0.0.1:9002")
	mustAccept(t, deps, addr)

	info := types.PeerIdentity{Name: "peer-b"}
	if !deps.Registry.SetState(addr, types.PeerState{Kind: types.PeerAuthenticated, Info: &info}) {
		t.Fatal("peer vanished before SetState")
	}

	reason := "boom"
	deps.Registry.DropPeer(addr, &reason)
	deps.Registry.DropPeer(addr, &reason) // must be a no-op: already removed

	n := drainNotification(t, notify)
	broken, ok := n.(types.ConnectionBroken)
	if !ok {
		t.Fatalf("expected ConnectionBroken, got %T", n)
	}
	if broken.Message == nil || *broken.Message != reason {
		t.Fatalf("expected reason %q, got %v", reason, broken.Message)
	}

	select {
	case n := <-notify:
		t.Fatalf("expected exactly one notification, got a second: %T", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropPeerDisconnectingUsesStoredReasonWhenNoOverride(t *testing.T) {
	deps, notify := testDeps()
	addr := types.PeerAddress("127.0.0.1:9003")
	mustAccept(t, deps, addr)

	info := types.PeerIdentity{Name: "peer-b"}
	stored := "server maintenance"
	deps.Registry.SetState(addr, types.PeerState{Kind: types.PeerDisconnecting, Info: &info, DisconnectReason: &stored})

	deps.Registry.DropPeer(addr, nil)

	n := drainNotification(t, notify)
	closeMsg, ok := n.(types.ConnectionClose)
	if !ok {
		t.Fatalf("expected ConnectionClose, got %T", n)
	}
	if closeMsg.Message == nil || *closeMsg.Message != stored {
		t.Fatalf("expected stored reason %q, got %v", stored, closeMsg.Message)
	}
}

func TestAcceptFromRejectsDuplicateAddress(t *testing.T) {
	deps, _ := testDeps()
	addr := types.PeerAddress("127.0.0.1:9004")
	mustAccept(t, deps, addr)

	_, server2 := net.Pipe()
	defer server2.Close()
	if _, err := deps.Registry.acceptFrom(server2, addr); err != ErrAlreadyConnected {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
}
