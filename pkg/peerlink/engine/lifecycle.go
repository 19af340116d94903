package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/wire"
)

// lifecycleState is the engine's single-slot shutdown_signal from
// spec.md §4.7: cancel present → running; absent → stopped. Guarded by
// its own mutex; Start/Restart/Shutdown run on the router goroutine,
// and IsRunning is exported and handed to core as Deps.Running.
type lifecycleState struct {
	mu       sync.Mutex
	cancel   context.CancelFunc
	listener net.Listener
}

// IsRunning reports whether the accept loop is currently started.
func (e *Engine) IsRunning() bool {
	e.lifecycle.mu.Lock()
	defer e.lifecycle.mu.Unlock()
	return e.lifecycle.cancel != nil
}

func (e *Engine) start(parent context.Context, bindAddr string) error {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", bindAddr, err)
	}

	ctx, cancel := context.WithCancel(parent)
	e.lifecycle.mu.Lock()
	e.lifecycle.cancel = cancel
	e.lifecycle.listener = ln
	e.lifecycle.mu.Unlock()

	go e.acceptLoop(ctx, ln)
	return nil
}

func (e *Engine) acceptLoop(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				e.log.Warnf("accept on %s: %v", ln.Addr(), err)
				return
			}
		}
		if _, err := e.deps.Registry.Accept(ctx, conn); err != nil {
			e.log.Warnf("register inbound connection from %s: %v", conn.RemoteAddr(), err)
		}
	}
}

func (e *Engine) handleStart(ctx context.Context, bindAddr string) {
	if e.IsRunning() {
		e.deps.Notify(types.BackendWarning{Message: "Start ignored: engine already running"})
		return
	}
	if err := e.start(ctx, bindAddr); err != nil {
		e.deps.Notify(types.BackendFatal{Message: err.Error()})
		return
	}
	e.deps.Notify(types.BackendReady{Version: e.identity.BackendVersion})
}

func (e *Engine) handleRestart(ctx context.Context, bindAddr string) {
	if e.IsRunning() {
		e.handleShutdown()
		time.Sleep(100 * time.Millisecond)
	}
	e.handleStart(ctx, bindAddr)
}

func (e *Engine) handleShutdown() {
	e.lifecycle.mu.Lock()
	cancel := e.lifecycle.cancel
	ln := e.lifecycle.listener
	if cancel == nil {
		e.lifecycle.mu.Unlock()
		e.deps.Notify(types.BackendWarning{Message: "Shutdown ignored: engine already stopped"})
		return
	}
	e.lifecycle.cancel = nil
	e.lifecycle.listener = nil
	e.lifecycle.mu.Unlock()

	cancel()
	if ln != nil {
		ln.Close()
	}

	for _, addr := range e.deps.Registry.Addresses() {
		if s, ok := e.deps.Registry.Get(addr); ok {
			s.Enqueue(wire.ImmediateConnectionClose{})
		}
		e.deps.Registry.DropPeer(addr, nil)
	}
	e.deps.Notify(types.BackendShutdown{})
}
