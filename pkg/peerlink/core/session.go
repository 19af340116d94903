package core

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/config"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/wire"
)

// Session is one peer connection: its socket, its outbound queue, and
// its PeerState. It is exclusively owned by the Registry under its
// address (spec.md §3) — state reads/writes always go through
// Registry.State/SetState, never by reaching into this struct from
// outside the core package.
//
// Grounded on the teacher's pkg/mcast/core/peer.go, which pairs a
// connection with a reader goroutine and a mutex-guarded state field;
// generalized here to a bounded outbox and a writer goroutine managed
// together by an errgroup, the pattern the prxssh-rabbit peer struct
// uses for its send/receive loop pair.
type Session struct {
	Address types.PeerAddress
	conn    net.Conn
	Outbox  chan wire.Message

	state types.PeerState // guarded by the owning Registry's mutex

	shutdownOnce sync.Once
	cancel       context.CancelFunc
}

func newSession(conn net.Conn, addr types.PeerAddress) *Session {
	return &Session{
		Address: addr,
		conn:    conn,
		Outbox:  make(chan wire.Message, config.OutboxCapacity),
		state:   types.NewConnectedState(),
	}
}

// shutdown tears down the session's I/O exactly once: closing the
// outbox unblocks the writer loop, closing the conn unblocks the
// reader loop's pending Read, and cancelling the derived context stops
// any pending keep-alive timer for this session.
func (s *Session) shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.Outbox)
		s.conn.Close()
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Enqueue delivers msg to the session's outbox in order, blocking under
// backpressure but giving up if the session is torn down first. The
// bool reports whether the message was actually queued.
func (s *Session) Enqueue(msg wire.Message) (queued bool) {
	defer func() {
		// A send on a closed channel panics; shutdown() may close
		// Outbox concurrently with this call losing the race.
		if recover() != nil {
			queued = false
		}
	}()
	s.Outbox <- msg
	return true
}

// Run drives the session's reader and writer loops until either one
// exits, then drops the peer. It is spawned with `go s.Run(ctx, deps)`
// by whichever path created the session (Registry.Accept/BeginConnect).
func (s *Session) Run(ctx context.Context, deps *Deps) {
	sessionCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	g, gctx := errgroup.WithContext(sessionCtx)
	g.Go(func() error {
		// readLoop returning nil (spec.md §4.2 point 6: silent EOF) is
		// not itself an error errgroup's context will cancel on, so
		// writeLoop would otherwise block on Outbox forever; cancel
		// unconditionally so writeLoop's ctx.Done() case always fires
		// once the reader is done, regardless of why it returned.
		defer cancel()
		return s.readLoop(gctx, deps)
	})
	g.Go(func() error { return s.writeLoop(gctx, deps) })

	var reason *string
	if err := g.Wait(); err != nil {
		deps.Log.With(map[string]interface{}{"peer": string(s.Address)}).Debugf("session ended: %v", err)
		if errors.Is(err, wire.ErrFrameTooLarge) {
			reason = strPtr("message larger than maximum size")
		} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
			reason = strPtr("read timeout")
		} else {
			reason = strPtr(err.Error())
		}
	}

	deps.Registry.DropPeer(s.Address, reason)
}

func strPtr(s string) *string { return &s }

func (s *Session) readLoop(ctx context.Context, deps *Deps) error {
	log := deps.Log.With(map[string]interface{}{"peer": string(s.Address)})
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(config.ReadInactivityTimeout)); err != nil {
			return err
		}

		payload, err := wire.ReadFrame(s.conn)
		if err != nil {
			if errors.Is(err, wire.ErrFrameTooLarge) {
				log.Warnf("dropping peer: %v", err)
				return err
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		msg, err := wire.Decode(payload)
		if err != nil {
			log.Warnf("dropping peer: protocol violation: %v", err)
			return err
		}

		handleInbound(ctx, deps, s, msg)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (s *Session) writeLoop(ctx context.Context, deps *Deps) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-s.Outbox:
			if !ok {
				return nil
			}

			payload, err := wire.Encode(msg)
			if err != nil {
				// Encoding is a programmer error, never a peer's fault;
				// log and skip rather than dropping the whole session
				// over it.
				deps.Log.Errorf("encode %T for %s: %v", msg, s.Address, err)
				continue
			}
			if err := wire.WriteFrame(s.conn, payload); err != nil {
				return err
			}
		}
	}
}
