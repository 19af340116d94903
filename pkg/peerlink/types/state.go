package types

// PeerStateKind discriminates the PeerState tagged union described in
// spec.md §3.
type PeerStateKind uint8

const (
	// PeerConnected: TCP established; may or may not have received the
	// peer's identity yet (Info is nil until it has).
	PeerConnected PeerStateKind = iota
	// PeerAuthenticated: connection request exchange completed and
	// user-accepted. Info is always present.
	PeerAuthenticated
	// PeerDisconnecting: a disconnect was requested locally or
	// remotely; awaiting ack or immediate teardown. Info is always
	// present.
	PeerDisconnecting
)

func (k PeerStateKind) String() string {
	switch k {
	case PeerConnected:
		return "Connected"
	case PeerAuthenticated:
		return "Authenticated"
	case PeerDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// PeerState is the tagged variant from spec.md §3, modeled as a
// discriminant plus per-variant payload fields rather than a
// polymorphic hierarchy (spec.md §9 design note).
type PeerState struct {
	Kind PeerStateKind

	// Info is absent only for PeerConnected before a ConnectRequest has
	// arrived. PeerAuthenticated and PeerDisconnecting always carry it.
	Info *PeerIdentity

	// DisconnectReason is meaningful only when Kind == PeerDisconnecting.
	DisconnectReason *string
}

// NewConnectedState is the initial state on accept or outbound connect:
// Connected{peer_info: none}.
func NewConnectedState() PeerState {
	return PeerState{Kind: PeerConnected}
}

func (s PeerState) WithInfo(info PeerIdentity) PeerState {
	s.Info = &info
	return s
}

// Authenticate transitions to Authenticated{peer_info}. The caller must
// already hold a non-nil Info (either the current state's or a fresh
// one), since Authenticated always carries identity.
func (s PeerState) Authenticate(info PeerIdentity) PeerState {
	return PeerState{Kind: PeerAuthenticated, Info: &info}
}

// Disconnect transitions to Disconnecting{peer_info, reason}.
func (s PeerState) Disconnect(reason *string) PeerState {
	return PeerState{Kind: PeerDisconnecting, Info: s.Info, DisconnectReason: reason}
}

func (s PeerState) IsConnected() bool     { return s.Kind == PeerConnected }
func (s PeerState) IsAuthenticated() bool { return s.Kind == PeerAuthenticated }
func (s PeerState) IsDisconnecting() bool { return s.Kind == PeerDisconnecting }

// HasInfo reports whether peer identity has been recorded yet.
func (s PeerState) HasInfo() bool { return s.Info != nil }
