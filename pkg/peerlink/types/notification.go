package types

// Notification is the outbound, backend→frontend half of the event
// router's surface (spec.md §6).
type Notification interface {
	notificationName() string
}

type BackendReady struct {
	Version string
}

func (BackendReady) notificationName() string { return "BackendReady" }

type BackendShutdown struct{}

func (BackendShutdown) notificationName() string { return "BackendShutdown" }

type BackendFatal struct {
	Message string
}

func (BackendFatal) notificationName() string { return "BackendFatal" }

type FatalLostComms struct {
	Message string
}

func (FatalLostComms) notificationName() string { return "FatalLostComms" }

type BackendError struct {
	Message string
}

func (BackendError) notificationName() string { return "BackendError" }

type BackendWarning struct {
	Message string
}

func (BackendWarning) notificationName() string { return "BackendWarning" }

// BadFrontendEvent reports a user-input error: the offending command
// and why it was rejected (spec.md §7(c)).
type BadFrontendEvent struct {
	Command string
	Reason  string
}

func (BadFrontendEvent) notificationName() string { return "BadFrontendEvent" }

// ConnectRequestNotification tells the UI a peer wants to connect.
// Named distinctly from the wire/Command ConnectRequest shapes for the
// same reason as ConnectCommand above.
type ConnectRequestNotification struct {
	Peer PeerAddress
	Info PeerIdentity
}

func (ConnectRequestNotification) notificationName() string { return "ConnectRequest" }

type ConnectionRequestResponseNotification struct {
	Peer   PeerAddress
	Accept bool
	Reason *string
}

func (ConnectionRequestResponseNotification) notificationName() string {
	return "ConnectionRequestResponse"
}

type ConnectionClose struct {
	Peer    PeerAddress
	Info    PeerIdentity
	Message *string
}

func (ConnectionClose) notificationName() string { return "ConnectionClose" }

type ConnectionBroken struct {
	Peer    PeerAddress
	Info    PeerIdentity
	Message *string
}

func (ConnectionBroken) notificationName() string { return "ConnectionBroken" }

type AutoConnectionClose struct {
	Peer PeerAddress
	Info PeerIdentity
}

func (AutoConnectionClose) notificationName() string { return "AutoConnectionClose" }

type FileOfferNotification struct {
	Peer     PeerAddress
	Filename string
	ID       TransferID
	Size     uint64
}

func (FileOfferNotification) notificationName() string { return "FileOffer" }

type FileTransferProgress struct {
	ID               TransferID
	BytesTransferred uint64
	TotalBytes       uint64
	Direction        DirectionKind
}

func (FileTransferProgress) notificationName() string { return "FileTransferProgress" }

type FileTransferComplete struct {
	ID TransferID
}

func (FileTransferComplete) notificationName() string { return "FileTransferComplete" }

type FileTransferError struct {
	ID      TransferID
	Message string
}

func (FileTransferError) notificationName() string { return "FileTransferError" }
