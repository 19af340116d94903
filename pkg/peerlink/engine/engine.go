// Package engine implements the event router from spec.md §4.7: the
// single task owning the frontend command channel, driving the peer
// registry through pkg/peerlink/core, and emitting notifications back.
//
// Grounded on the teacher's Peer.poll loop (pkg/mcast/core/peer.go),
// which selects over a context and a couple of channels and spawns a
// goroutine per unit of work — adapted here to command dispatch, which
// instead runs every command inline on the router goroutine (see
// dispatch).
package engine

import (
	"context"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/core"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/definition"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
)

// Engine is the whole peer session daemon: one registry, one transfer
// table, one TCP listener (while running), driven by a command channel
// and reporting through a notification channel.
type Engine struct {
	deps     *core.Deps
	commands <-chan types.Command
	log      definition.Logger
	identity types.PeerIdentity

	lifecycle lifecycleState
}

// New builds an Engine. commands is read exclusively by Run; notify is
// written exclusively by the engine and whatever it spawns — both are
// owned by the caller, who decides their buffering.
func New(commands <-chan types.Command, notify chan<- types.Notification, log definition.Logger, metrics *definition.Metrics, identity types.PeerIdentity) *Engine {
	e := &Engine{commands: commands, log: log, identity: identity}
	e.deps = core.NewDeps(notify, log, metrics, e.Identity, e.IsRunning)
	return e
}

// Identity returns the engine's own peer identity, sent in every
// handshake message.
func (e *Engine) Identity() types.PeerIdentity { return e.identity }

// Run awaits the startup handshake then processes commands until the
// command channel closes. It blocks the calling goroutine; callers that
// want a non-blocking engine should run it in its own goroutine.
func (e *Engine) Run(ctx context.Context) {
	first, ok := <-e.commands
	if !ok {
		return
	}
	ready, isReady := first.(types.FrontendReady)
	if !isReady {
		e.log.Errorf("first command was %T, not FrontendReady", first)
		e.deps.Notify(types.BackendFatal{Message: "first command must be FrontendReady"})
		return
	}
	if err := e.start(ctx, ready.BindAddr); err != nil {
		e.deps.Notify(types.BackendFatal{Message: err.Error()})
		return
	}
	e.deps.Notify(types.BackendReady{Version: e.identity.BackendVersion})

	for cmd := range e.commands {
		e.dispatch(ctx, cmd)
	}
	e.deps.Notify(types.FatalLostComms{Message: "command channel closed"})
}

// dispatch routes one command. spec.md §5's "single router task"
// invariant means every command — lifecycle or otherwise — runs inline
// on this goroutine, in submission order; a handler that must not block
// the next dequeue (a slow Connect dial, BeginConnect) forks its own
// goroutine internally instead of forking dispatch itself.
func (e *Engine) dispatch(ctx context.Context, cmd types.Command) {
	switch c := cmd.(type) {
	case types.FrontendReady:
		e.deps.Notify(types.BadFrontendEvent{Command: "FrontendReady", Reason: "engine already started"})
	case types.Start:
		e.handleStart(ctx, c.BindAddr)
	case types.Restart:
		e.handleRestart(ctx, c.BindAddr)
	case types.Shutdown:
		e.handleShutdown()
	default:
		core.HandleCommand(ctx, e.deps, cmd)
	}
}
