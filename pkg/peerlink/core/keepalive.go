package core

import (
	"context"
	"time"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/config"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/wire"
)

// scheduleKeepAliveReply implements spec.md §4.4's keep-alive timing:
// ten seconds after a KeepAlive arrives, reply in kind if the peer is
// still registered. Keep-alive delay tasks may outlive their peer
// (spec.md §5); ctx is the session's own context, so a torn-down
// session cancels its pending replies instead of leaking a goroutine
// per ping.
func scheduleKeepAliveReply(ctx context.Context, deps *Deps, s *Session) {
	go func() {
		timer := time.NewTimer(config.KeepAliveReplyDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if _, ok := deps.Registry.Get(s.Address); !ok {
			return
		}
		s.Enqueue(wire.KeepAlive{})
	}()
}
