// Package config holds the tunables spec'd for the peer session engine.
//
// None of these are meant to be surfaced as user-facing knobs yet — the
// surrounding shell (out of scope, see spec.md §1) owns that decision.
// They live in one place so the wire/core/engine packages agree on them.
package config

import "time"

const (
	// MaxFrameBytes is the largest payload a single wire frame may carry.
	// A peer announcing a larger length is a protocol violation.
	MaxFrameBytes = 10 << 20 // 10 MiB

	// OutboxCapacity is the bound on a peer's outbound message queue.
	OutboxCapacity = 32

	// ReadInactivityTimeout is enforced at the socket level: if no bytes
	// arrive from a peer within this window, the reader treats it as a
	// dead connection.
	ReadInactivityTimeout = 30 * time.Second

	// KeepAliveReplyDelay is how long after a KeepAlive arrives the reply
	// is enqueued; the wait runs in its own goroutine, not in the reader.
	KeepAliveReplyDelay = 10 * time.Second

	// ConnectPollInterval and ConnectPollAttempts bound the Connect
	// command's wait for the dialed session to appear in the registry.
	ConnectPollInterval  = 500 * time.Millisecond
	ConnectPollAttempts  = 20
	ConnectPollBudget    = ConnectPollInterval * time.Duration(ConnectPollAttempts)

	// DefaultChunkLen is the chunk size TransmitFile declares for every
	// outbound transfer.
	DefaultChunkLen = 1 << 20 // 1 MiB

	// ProgressNotifyThrottle bounds how often FileTransferProgress is
	// emitted for a single transfer; the final chunk always emits
	// regardless of this window.
	ProgressNotifyThrottle = 100 * time.Millisecond

	// ChunkAckTimeout is not read by the chunk pump: a sender waits for
	// each FileChunkAck with no time limit of its own, and only the
	// session's ReadInactivityTimeout ends a silent peer.
	ChunkAckTimeout = 30 * time.Second

	// DialTimeout bounds an outbound TCP connect attempt.
	DialTimeout = 10 * time.Second
)
