package core

import (
	"bytes"
	"crypto/sha256"
	"io"
	"os"
	"time"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/config"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/wire"
)

// This file implements the chunk pump spec.md §4.6 leaves as a
// normative sketch: sequential, ack-gated FileChunk sends on the
// sender side and ordered acceptance plus checksum verification on the
// receiver side. See SPEC_FULL.md §4.6 for the concrete design.

func idBytes(id types.TransferID) [16]byte { return [16]byte(id) }

// chunkSize returns the number of bytes chunk chunkID carries: ChunkLen
// for every chunk but the last, which is whatever remains.
func chunkSize(rec *types.TransferRecord, chunkID uint64) uint64 {
	remaining := rec.TotalSize - chunkID*rec.ChunkLen
	if remaining < rec.ChunkLen {
		return remaining
	}
	return rec.ChunkLen
}

// startSendingTransfer opens the source file and sends the first chunk,
// on the sender's receipt of FileOfferResponse{accept: true}.
func startSendingTransfer(deps *Deps, s *Session, rec *types.TransferRecord) {
	f, err := os.Open(rec.Direction.SourcePath)
	if err != nil {
		deps.Log.Errorf("open %s for transfer %s: %v", rec.Direction.SourcePath, rec.ID, err)
		finishTransfer(deps, rec, false, strPtr(err.Error()))
		return
	}
	rec.Status = types.InProgress(f)
	rec.NextChunkID = 0
	rec.Checksum = sha256.New()
	deps.Metrics.ActiveTransfers.Set(float64(deps.Transfers.Count()))
	sendNextChunk(deps, s, rec)
}

// sendNextChunk sends rec.NextChunkID, or FileDone if every chunk has
// already been acked.
func sendNextChunk(deps *Deps, s *Session, rec *types.TransferRecord) {
	count := rec.ChunkCount()
	if rec.NextChunkID >= count {
		s.Enqueue(wire.FileDone{ID: idBytes(rec.ID), Checksum: rec.Checksum.Sum(nil)})
		return
	}

	size := chunkSize(rec, rec.NextChunkID)
	buf := make([]byte, size)
	if _, err := io.ReadFull(rec.Status.FileHandle, buf); err != nil {
		deps.Log.Errorf("read chunk %d for transfer %s: %v", rec.NextChunkID, rec.ID, err)
		finishTransfer(deps, rec, false, strPtr(err.Error()))
		return
	}
	rec.Checksum.Write(buf)
	s.Enqueue(wire.FileChunk{
		ID:         idBytes(rec.ID),
		ChunkID:    rec.NextChunkID,
		ChunkCount: count,
		Data:       buf,
	})
}

// notifyProgressThrottled emits FileTransferProgress at most once per
// config.ProgressNotifyThrottle, except the final chunk, which always
// emits so a UI sees 100% (SPEC_FULL.md §9, resolved open question 2).
func notifyProgressThrottled(deps *Deps, rec *types.TransferRecord, dir types.DirectionKind) {
	final := rec.NextChunkID >= rec.ChunkCount()
	now := time.Now()
	if !final && now.Sub(rec.LastProgressNotifyAt) < config.ProgressNotifyThrottle {
		return
	}
	rec.LastProgressNotifyAt = now
	deps.Notify(types.FileTransferProgress{
		ID:               rec.ID,
		BytesTransferred: rec.BytesTransferred,
		TotalBytes:       rec.TotalSize,
		Direction:        dir,
	})
}

// finishTransfer closes any open file handle, records the terminal
// status, removes rec from the table, and notifies the frontend.
func finishTransfer(deps *Deps, rec *types.TransferRecord, success bool, message *string) {
	if rec.Status.FileHandle != nil {
		rec.Status.FileHandle.Close()
	}

	if success {
		rec.Status = types.Completed()
		deps.Notify(types.FileTransferComplete{ID: rec.ID})
	} else {
		msg := "transfer failed"
		if message != nil {
			msg = *message
		}
		if msg == "cancelled" {
			rec.Status = types.Cancelled()
		} else {
			rec.Status = types.Errored(msg)
		}
		deps.Notify(types.FileTransferError{ID: rec.ID, Message: msg})
		deps.Metrics.TransfersFailed.Inc()
	}

	deps.Transfers.Remove(rec.ID)
	deps.Metrics.ActiveTransfers.Set(float64(deps.Transfers.Count()))
}

func onFileChunk(deps *Deps, s *Session, m wire.FileChunk) {
	id := types.TransferID(m.ID)
	rec, ok := deps.Transfers.Get(id)
	if !ok || rec.Direction.Kind != types.DirectionReceiving || rec.Peer != s.Address ||
		rec.Status.Kind != types.StatusInProgress || m.ChunkID != rec.NextChunkID {
		deps.Registry.DropPeer(s.Address, strPtr("protocol violation: unexpected FileChunk"))
		return
	}

	if _, err := rec.Status.FileHandle.Write(m.Data); err != nil {
		deps.Log.Errorf("write chunk %d for transfer %s: %v", m.ChunkID, rec.ID, err)
		finishTransfer(deps, rec, false, strPtr(err.Error()))
		return
	}
	rec.Checksum.Write(m.Data)
	rec.BytesTransferred += uint64(len(m.Data))
	rec.NextChunkID++
	deps.Metrics.BytesReceived.Add(float64(len(m.Data)))

	notifyProgressThrottled(deps, rec, types.DirectionReceiving)
	s.Enqueue(wire.FileChunkAck{ID: m.ID, ChunkID: m.ChunkID})
}

func onFileChunkAck(deps *Deps, s *Session, m wire.FileChunkAck) {
	id := types.TransferID(m.ID)
	rec, ok := deps.Transfers.Get(id)
	if !ok || rec.Direction.Kind != types.DirectionSending || rec.Peer != s.Address ||
		rec.Status.Kind != types.StatusInProgress || m.ChunkID != rec.NextChunkID {
		deps.Registry.DropPeer(s.Address, strPtr("protocol violation: unexpected FileChunkAck"))
		return
	}

	size := chunkSize(rec, rec.NextChunkID)
	rec.BytesTransferred += size
	rec.NextChunkID++
	deps.Metrics.BytesSent.Add(float64(size))

	notifyProgressThrottled(deps, rec, types.DirectionSending)
	sendNextChunk(deps, s, rec)
}

func onFileDone(deps *Deps, s *Session, m wire.FileDone) {
	id := types.TransferID(m.ID)
	rec, ok := deps.Transfers.Get(id)
	if !ok || rec.Direction.Kind != types.DirectionReceiving || rec.Peer != s.Address ||
		rec.Status.Kind != types.StatusInProgress || rec.NextChunkID != rec.ChunkCount() {
		deps.Registry.DropPeer(s.Address, strPtr("protocol violation: unexpected FileDone"))
		return
	}

	sum := rec.Checksum.Sum(nil)
	success := bytes.Equal(sum, m.Checksum)
	var message *string
	if !success {
		message = strPtr("checksum mismatch")
	}
	s.Enqueue(wire.FileDoneResult{ID: m.ID, Success: success, Message: message})
	finishTransfer(deps, rec, success, message)
}

// onFileDoneResult applies depending on which direction this transfer
// runs locally: for a Sending record it's the receiver's verdict on a
// completed transfer; for a Receiving record it's the sender cancelling
// or erroring out (SPEC_FULL.md §4.6's reuse of this frame as the
// cancellation signal).
func onFileDoneResult(deps *Deps, s *Session, m wire.FileDoneResult) {
	id := types.TransferID(m.ID)
	rec, ok := deps.Transfers.Get(id)
	if !ok || rec.Peer != s.Address || rec.Status.Kind != types.StatusInProgress {
		deps.Registry.DropPeer(s.Address, strPtr("protocol violation: unexpected FileDoneResult"))
		return
	}

	switch rec.Direction.Kind {
	case types.DirectionSending:
		finishTransfer(deps, rec, m.Success, m.Message)
	case types.DirectionReceiving:
		finishTransfer(deps, rec, false, m.Message)
	}
}
