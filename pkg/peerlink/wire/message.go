// Package wire implements the peer-to-peer binary protocol: a
// length-prefixed frame format wrapping a self-describing Message sum
// type. See spec.md §4.1 for the authoritative wire layout.
package wire

// Message is implemented by every wire protocol variant. The marker
// method keeps the set closed to this package without resorting to a
// type hierarchy — dispatch is still a plain type switch in codec.go.
type Message interface {
	tag() msgTag
}

type msgTag byte

// Wire tags in declared order, per spec.md §4.1. These values are part
// of the interoperability contract and must never be renumbered.
const (
	tagKeepAlive msgTag = iota
	tagConnectRequest
	tagConnectResponse
	tagDisconnectRequest
	tagDisconnectAck
	tagImmediateConnectionClose
	tagFileOfferRequest
	tagFileOfferResponse
	tagFileChunk
	tagFileChunkAck
	tagFileDone
	tagFileDoneResult
)

// KeepAlive prevents the TCP connection from being reclaimed as idle.
type KeepAlive struct{}

func (KeepAlive) tag() msgTag { return tagKeepAlive }

// Identity is a reserved placeholder for cryptographic peer identity.
// It is never populated by this implementation (spec.md §1: "present
// only as a reserved placeholder field ... not implemented") but is
// carried on the wire so a future version can fill it in without
// breaking frame layout.
type Identity struct {
	PublicKey []byte
}

// ConnectionInfo identifies one side of a connection during the
// handshake.
type ConnectionInfo struct {
	Name           string
	BackendVersion string
	Identity       Identity
}

// ConnectRequest announces the sender's identity and asks to be let in.
type ConnectRequest struct {
	Info ConnectionInfo
}

func (ConnectRequest) tag() msgTag { return tagConnectRequest }

// ConnectPermit is the accept branch of a ConnectResponse.
type ConnectPermit struct {
	Info ConnectionInfo
}

// ConnectResponse answers a ConnectRequest, either admitting the peer
// (Permit, carrying the responder's own ConnectionInfo) or refusing it
// (Deny).
type ConnectResponse struct {
	Deny    bool
	Permit  ConnectPermit
	Message *string
}

func (ConnectResponse) tag() msgTag { return tagConnectResponse }

// DisconnectRequest asks the peer to tear the session down gracefully.
type DisconnectRequest struct {
	Message *string
}

func (DisconnectRequest) tag() msgTag { return tagDisconnectRequest }

// DisconnectAck acknowledges a DisconnectRequest.
type DisconnectAck struct{}

func (DisconnectAck) tag() msgTag { return tagDisconnectAck }

// ImmediateConnectionClose tears the session down with no ack expected.
type ImmediateConnectionClose struct {
	Message *string
}

func (ImmediateConnectionClose) tag() msgTag { return tagImmediateConnectionClose }

// FileOffer describes a file a sender wants to push.
type FileOffer struct {
	Filename  string
	ID        [16]byte
	TotalSize uint64
	ChunkLen  uint64
}

// FileOfferRequest proposes a file transfer.
type FileOfferRequest struct {
	Offer FileOffer
}

func (FileOfferRequest) tag() msgTag { return tagFileOfferRequest }

// FileOfferResponse answers a FileOfferRequest.
type FileOfferResponse struct {
	ID     [16]byte
	Accept bool
}

func (FileOfferResponse) tag() msgTag { return tagFileOfferResponse }

// FileChunk carries one chunk of file data.
type FileChunk struct {
	ID         [16]byte
	ChunkID    uint64
	ChunkCount uint64
	Data       []byte
}

func (FileChunk) tag() msgTag { return tagFileChunk }

// FileChunkAck acknowledges receipt of one chunk.
type FileChunkAck struct {
	ID      [16]byte
	ChunkID uint64
}

func (FileChunkAck) tag() msgTag { return tagFileChunkAck }

// FileDone signals the sender has transmitted every chunk and reports
// the checksum computed over them.
type FileDone struct {
	ID       [16]byte
	Checksum []byte
}

func (FileDone) tag() msgTag { return tagFileDone }

// FileDoneResult is the receiver's verdict on a completed transfer. It
// also doubles as the cancellation signal (success=false, a message
// naming the cancellation) since the protocol reserves no dedicated
// cancel frame — see DESIGN.md "Open Question decisions".
type FileDoneResult struct {
	ID      [16]byte
	Success bool
	Message *string
}

func (FileDoneResult) tag() msgTag { return tagFileDoneResult }
