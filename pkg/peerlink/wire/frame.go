package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/config"
)

// ErrFrameTooLarge is returned by ReadFrame when the announced length
// exceeds config.MaxFrameBytes, and by WriteFrame when the caller hands
// it an oversized payload (an internal bug, per spec.md §7(e)).
var ErrFrameTooLarge = errors.New("wire: frame larger than maximum size")

// ReadFrame reads one length-prefixed frame from r: a 4-byte
// big-endian length L followed by exactly L payload bytes.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > config.MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload as one length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > config.MaxFrameBytes {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
