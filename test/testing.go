// Package test holds whole-engine integration tests: two real
// engine.Engine instances wired over loopback TCP and driven through
// their command channels, the way the teacher repository's own test
// package stood up whole Unity clusters instead of testing a single
// peer in isolation.
package test

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/definition"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/engine"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
)

// node is one running engine plus the channel pair used to drive it.
type node struct {
	BindAddr string
	Commands chan types.Command
	Notify   chan types.Notification
	cancel   context.CancelFunc
}

// StartNode builds and starts an engine bound to bindAddr, returning
// once the engine has acknowledged BackendReady.
func StartNode(t *testing.T, name, bindAddr string) *node {
	t.Helper()

	log := definition.NewLogger(logrus.StandardLogger())
	metrics := definition.NewMetrics(prometheus.NewRegistry())
	commands := make(chan types.Command, 16)
	notify := make(chan types.Notification, 16)
	identity := types.PeerIdentity{Name: name, BackendVersion: "test"}

	e := engine.New(commands, notify, log, metrics, identity)
	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)

	n := &node{BindAddr: bindAddr, Commands: commands, Notify: notify, cancel: cancel}
	commands <- types.FrontendReady{BindAddr: bindAddr}
	n.ExpectNotification(t, func(got types.Notification) bool {
		_, ok := got.(types.BackendReady)
		return ok
	})
	return n
}

// Stop drives a real Shutdown through the engine before tearing the
// harness down, so every peer session's reader/writer pair and the
// accept loop actually exit instead of merely losing their command
// channel — a bare cancel+close leaves per-peer goroutines to notice
// independently (or not at all, if they're blocked on their outbox).
func (n *node) Stop() {
	n.Commands <- types.Shutdown{}
	close(n.Commands)
	n.cancel()
}

// ExpectNotification drains notifications until pred matches one,
// failing the test if none arrives within a reasonable window.
func (n *node) ExpectNotification(t *testing.T, pred func(types.Notification) bool) types.Notification {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-n.Notify:
			if pred(got) {
				return got
			}
		case <-deadline:
			t.Fatalf("%s: timed out waiting for a matching notification", t.Name())
			return nil
		}
	}
}

// ExpectNoNotification fails the test if any notification arrives
// within the window, used to assert that an idle, keep-alive-sustained
// session stays silent toward the UI.
func (n *node) ExpectNoNotification(t *testing.T, window time.Duration) {
	t.Helper()
	select {
	case got := <-n.Notify:
		t.Fatalf("%s: expected no notification, got %#v", t.Name(), got)
	case <-time.After(window):
	}
}

// PrintStackTrace dumps every goroutine's stack, for diagnosing a test
// that deadlocked instead of completing.
func PrintStackTrace(t *testing.T) {
	t.Helper()
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)
	t.Errorf("%s", buf[:n])
}

// WaitThisOrTimeout runs cb in its own goroutine and reports whether it
// finished within duration.
func WaitThisOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan struct{})
	go func() {
		cb()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}

// FreePort returns the fixed loopback address basePort+offset for a
// test node; it does not ask the OS whether that port is free. Each
// test uses its own basePort so the tests in this package do not
// collide with each other.
func FreePort(basePort int, offset int) string {
	return fmt.Sprintf("127.0.0.1:%d", basePort+offset)
}
