package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTrailingData is returned when a decoded payload does not exactly
// consume the framed bytes — spec.md §4.1's decoder contract treats
// this as a protocol violation.
var ErrTrailingData = errors.New("wire: trailing bytes after decoded message")

// ErrUnknownTag is returned when a frame's leading tag byte does not
// name a known Message variant.
var ErrUnknownTag = errors.New("wire: unknown message tag")

// Encode serializes m into its wire payload (not including the frame's
// length prefix — see ReadFrame/WriteFrame for that).
func Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.tag()))
	w := &writer{buf: &buf}

	switch v := m.(type) {
	case KeepAlive:
	case ConnectRequest:
		w.writeConnectionInfo(v.Info)
	case ConnectResponse:
		w.writeBool(v.Deny)
		w.writeConnectionInfo(v.Permit.Info)
		w.writeOptString(v.Message)
	case DisconnectRequest:
		w.writeOptString(v.Message)
	case DisconnectAck:
	case ImmediateConnectionClose:
		w.writeOptString(v.Message)
	case FileOfferRequest:
		w.writeFileOffer(v.Offer)
	case FileOfferResponse:
		w.writeID(v.ID)
		w.writeBool(v.Accept)
	case FileChunk:
		w.writeID(v.ID)
		w.writeUint64(v.ChunkID)
		w.writeUint64(v.ChunkCount)
		w.writeBytes(v.Data)
	case FileChunkAck:
		w.writeID(v.ID)
		w.writeUint64(v.ChunkID)
	case FileDone:
		w.writeID(v.ID)
		w.writeBytes(v.Checksum)
	case FileDoneResult:
		w.writeID(v.ID)
		w.writeBool(v.Success)
		w.writeOptString(v.Message)
	default:
		return nil, fmt.Errorf("wire: encode: unhandled message type %T", m)
	}

	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

// Decode parses a wire payload into its Message. It returns
// ErrTrailingData if the payload carries bytes past the decoded value.
func Decode(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	tag := msgTag(payload[0])
	r := &reader{buf: bytes.NewReader(payload[1:])}

	var m Message
	switch tag {
	case tagKeepAlive:
		m = KeepAlive{}
	case tagConnectRequest:
		m = ConnectRequest{Info: r.readConnectionInfo()}
	case tagConnectResponse:
		deny := r.readBool()
		info := r.readConnectionInfo()
		msg := r.readOptString()
		m = ConnectResponse{Deny: deny, Permit: ConnectPermit{Info: info}, Message: msg}
	case tagDisconnectRequest:
		m = DisconnectRequest{Message: r.readOptString()}
	case tagDisconnectAck:
		m = DisconnectAck{}
	case tagImmediateConnectionClose:
		m = ImmediateConnectionClose{Message: r.readOptString()}
	case tagFileOfferRequest:
		m = FileOfferRequest{Offer: r.readFileOffer()}
	case tagFileOfferResponse:
		id := r.readID()
		m = FileOfferResponse{ID: id, Accept: r.readBool()}
	case tagFileChunk:
		id := r.readID()
		chunkID := r.readUint64()
		chunkCount := r.readUint64()
		data := r.readBytes()
		m = FileChunk{ID: id, ChunkID: chunkID, ChunkCount: chunkCount, Data: data}
	case tagFileChunkAck:
		id := r.readID()
		m = FileChunkAck{ID: id, ChunkID: r.readUint64()}
	case tagFileDone:
		id := r.readID()
		m = FileDone{ID: id, Checksum: r.readBytes()}
	case tagFileDoneResult:
		id := r.readID()
		success := r.readBool()
		msg := r.readOptString()
		m = FileDoneResult{ID: id, Success: success, Message: msg}
	default:
		return nil, ErrUnknownTag
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.buf.Len() != 0 {
		return nil, ErrTrailingData
	}
	return m, nil
}

// writer accumulates encoding errors so call sites can chain writes
// without checking after every field.
type writer struct {
	buf *bytes.Buffer
	err error
}

func (w *writer) writeBool(b bool) {
	if b {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *writer) writeUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf.Write(tmp[:])
}

// writeBytes writes a varint length prefix followed by the raw bytes.
func (w *writer) writeBytes(b []byte) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(b)))
	w.buf.Write(tmp[:n])
	w.buf.Write(b)
}

func (w *writer) writeString(s string) {
	w.writeBytes([]byte(s))
}

func (w *writer) writeOptString(s *string) {
	if s == nil {
		w.writeBool(false)
		return
	}
	w.writeBool(true)
	w.writeString(*s)
}

func (w *writer) writeID(id [16]byte) {
	w.buf.Write(id[:])
}

func (w *writer) writeConnectionInfo(info ConnectionInfo) {
	w.writeString(info.Name)
	w.writeString(info.BackendVersion)
	w.writeBytes(info.Identity.PublicKey)
}

func (w *writer) writeFileOffer(o FileOffer) {
	w.writeString(o.Filename)
	w.writeID(o.ID)
	w.writeUint64(o.TotalSize)
	w.writeUint64(o.ChunkLen)
}

// reader mirrors writer: it records the first error seen and every
// subsequent read becomes a no-op, so callers can chain reads and check
// once at the end.
type reader struct {
	buf *bytes.Reader
	err error
}

func (r *reader) readBool() bool {
	if r.err != nil {
		return false
	}
	b, err := r.buf.ReadByte()
	if err != nil {
		r.err = err
		return false
	}
	return b != 0
}

func (r *reader) readUint64() uint64 {
	if r.err != nil {
		return 0
	}
	var tmp [8]byte
	if _, err := io.ReadFull(r.buf, tmp[:]); err != nil {
		r.err = err
		return 0
	}
	return binary.LittleEndian.Uint64(tmp[:])
}

func (r *reader) readBytes() []byte {
	if r.err != nil {
		return nil
	}
	n, err := binary.ReadUvarint(r.buf)
	if err != nil {
		r.err = err
		return nil
	}
	if n == 0 {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.buf, b); err != nil {
		r.err = err
		return nil
	}
	return b
}

func (r *reader) readString() string {
	return string(r.readBytes())
}

func (r *reader) readOptString() *string {
	present := r.readBool()
	if r.err != nil || !present {
		return nil
	}
	s := r.readString()
	return &s
}

func (r *reader) readID() [16]byte {
	var id [16]byte
	if r.err != nil {
		return id
	}
	if _, err := io.ReadFull(r.buf, id[:]); err != nil {
		r.err = err
	}
	return id
}

func (r *reader) readConnectionInfo() ConnectionInfo {
	name := r.readString()
	version := r.readString()
	key := r.readBytes()
	return ConnectionInfo{Name: name, BackendVersion: version, Identity: Identity{PublicKey: key}}
}

func (r *reader) readFileOffer() FileOffer {
	filename := r.readString()
	id := r.readID()
	total := r.readUint64()
	chunkLen := r.readUint64()
	return FileOffer{Filename: filename, ID: id, TotalSize: total, ChunkLen: chunkLen}
}
