package types

import (
	"hash"
	"os"
	"time"

	"github.com/google/uuid"
)

// TransferID is the 128-bit identifier a sender assigns to a transfer,
// per spec.md §3. It is a type alias (not a defined type) so it keeps
// uuid.UUID's String()/MarshalText/etc. methods — the canonical text
// form is what crosses the command channel (spec.md §6).
type TransferID = uuid.UUID

// NewTransferID mints a fresh sender-assigned transfer id.
func NewTransferID() TransferID { return uuid.New() }

// DirectionKind discriminates a TransferRecord's Direction.
type DirectionKind uint8

const (
	DirectionSending DirectionKind = iota
	DirectionReceiving
)

// Direction is the {Sending{source_path}, Receiving} tagged variant
// from spec.md §3.
type Direction struct {
	Kind       DirectionKind
	SourcePath string // meaningful only when Kind == DirectionSending
}

func SendingFrom(sourcePath string) Direction {
	return Direction{Kind: DirectionSending, SourcePath: sourcePath}
}

func Receiving() Direction {
	return Direction{Kind: DirectionReceiving}
}

// TransferStatusKind discriminates a TransferRecord's Status.
type TransferStatusKind uint8

const (
	StatusWaitingForPeerResponse TransferStatusKind = iota
	StatusInProgress
	StatusCompleted
	StatusCancelled
	StatusRejected
	StatusError
)

func (k TransferStatusKind) String() string {
	switch k {
	case StatusWaitingForPeerResponse:
		return "WaitingForPeerResponse"
	case StatusInProgress:
		return "InProgress"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	case StatusRejected:
		return "Rejected"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

func (k TransferStatusKind) Terminal() bool {
	switch k {
	case StatusCompleted, StatusCancelled, StatusRejected, StatusError:
		return true
	default:
		return false
	}
}

// TransferStatus is the tagged variant from spec.md §3. FileHandle is
// held only while Kind == StatusInProgress; ErrorMessage only while
// Kind == StatusError.
type TransferStatus struct {
	Kind         TransferStatusKind
	FileHandle   *os.File
	ErrorMessage string
}

func WaitingForPeerResponse() TransferStatus {
	return TransferStatus{Kind: StatusWaitingForPeerResponse}
}

func InProgress(f *os.File) TransferStatus {
	return TransferStatus{Kind: StatusInProgress, FileHandle: f}
}

func Completed() TransferStatus { return TransferStatus{Kind: StatusCompleted} }
func Cancelled() TransferStatus { return TransferStatus{Kind: StatusCancelled} }
func Rejected() TransferStatus  { return TransferStatus{Kind: StatusRejected} }

func Errored(message string) TransferStatus {
	return TransferStatus{Kind: StatusError, ErrorMessage: message}
}

// TransferRecord is looked up from the transfer table under its id
// (spec.md §3), but the table's lock only protects the map itself, not
// a record's fields: once a *TransferRecord is in hand, mutating it is
// safe because exactly two goroutines ever reach into one — the
// transfer's peer's single reader loop, and the single command-router
// goroutine (spec.md §5) — and both sides of the chunk pump only ever
// touch a record after first getting it off that peer's one
// serialized stream of inbound messages or outbound commands. Fields
// past Status are runtime-only bookkeeping the chunk pump (spec.md
// §4.6) needs and are not part of the distilled spec's data model.
type TransferRecord struct {
	ID               TransferID
	Peer             PeerAddress
	Direction        Direction
	Filename         string
	TotalSize        uint64
	ChunkLen         uint64
	BytesTransferred uint64
	Status           TransferStatus

	NextChunkID          uint64
	Checksum             hash.Hash
	LastProgressNotifyAt time.Time
}

// ChunkCount is ceil(TotalSize/ChunkLen), per spec.md §4.6.
func (t *TransferRecord) ChunkCount() uint64 {
	if t.ChunkLen == 0 {
		return 0
	}
	return (t.TotalSize + t.ChunkLen - 1) / t.ChunkLen
}
