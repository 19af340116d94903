package wire

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/config"
)

func strPtr(s string) *string { return &s }

func TestCodecRoundTrip(t *testing.T) {
	id := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	info := ConnectionInfo{Name: "alice", BackendVersion: "1.0.0"}

	cases := []Message{
		KeepAlive{},
		ConnectRequest{Info: info},
		ConnectResponse{Deny: false, Permit: ConnectPermit{Info: info}, Message: nil},
		ConnectResponse{Deny: true, Message: strPtr("no thanks")},
		DisconnectRequest{Message: strPtr("bye")},
		DisconnectRequest{Message: nil},
		DisconnectAck{},
		ImmediateConnectionClose{Message: strPtr("closing")},
		FileOfferRequest{Offer: FileOffer{Filename: "x", ID: id, TotalSize: 3145728, ChunkLen: 1048576}},
		FileOfferResponse{ID: id, Accept: true},
		FileChunk{ID: id, ChunkID: 0, ChunkCount: 3, Data: []byte("hello chunk")},
		FileChunk{ID: id, ChunkID: 2, ChunkCount: 3, Data: nil},
		FileChunkAck{ID: id, ChunkID: 2},
		FileDone{ID: id, Checksum: []byte{0xde, 0xad, 0xbe, 0xef}},
		FileDoneResult{ID: id, Success: true, Message: nil},
		FileDoneResult{ID: id, Success: false, Message: strPtr("cancelled")},
	}

	for _, want := range cases {
		encoded, err := Encode(want)
		if err != nil {
			t.Fatalf("encode(%#v): %v", want, err)
		}
		got, err := Decode(encoded)
		if err != nil {
			t.Fatalf("decode(encode(%#v)): %v", want, err)
		}
		if !reflect.DeepEqual(want, got) {
			t.Errorf("round-trip mismatch:\n want %#v\n got  %#v", want, got)
		}
	}
}

func TestDecodeTrailingDataIsProtocolViolation(t *testing.T) {
	encoded, err := Encode(KeepAlive{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	encoded = append(encoded, 0xff)

	if _, err := Decode(encoded); err != ErrTrailingData {
		t.Errorf("expected ErrTrailingData, got %v", err)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	if _, err := Decode([]byte{0xff}); err != ErrUnknownTag {
		t.Errorf("expected ErrUnknownTag, got %v", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("arbitrary payload bytes")
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("frame round-trip mismatch: got %q want %q", got, payload)
	}
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	oversize := uint32(config.MaxFrameBytes + 1)
	lenBuf[0] = byte(oversize >> 24)
	lenBuf[1] = byte(oversize >> 16)
	lenBuf[2] = byte(oversize >> 8)
	lenBuf[3] = byte(oversize)
	buf.Write(lenBuf[:])

	if _, err := ReadFrame(&buf); err != ErrFrameTooLarge {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestWriteFrameRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	oversized := make([]byte, config.MaxFrameBytes+1)
	if err := WriteFrame(&buf, oversized); err == nil {
		t.Error("expected WriteFrame to reject an oversized payload")
	}
}
