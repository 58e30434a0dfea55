package protocol

// Kind identifies a signaling message on the wire.
type Kind string

// Client to server.
const (
	KindJoinRoom  Kind = "join-room"
	KindLeaveRoom Kind = "leave-room"
)

// Relayed between the two members of a room. The server sets From.
const (
	KindCallInitiate        Kind = "call-initiate"
	KindCallAccept          Kind = "call-accept"
	KindRenegotiateRequest  Kind = "renegotiate-request"
	KindRenegotiateResponse Kind = "renegotiate-response"
	KindHangUp              Kind = "hang-up"
)

// Server to client.
const (
	KindWelcome    Kind = "welcome"
	KindRoomJoined Kind = "room-joined"
	KindPeerJoined Kind = "peer-joined"
	KindPeerLeft   Kind = "peer-left"
	KindError      Kind = "error"
)

// Error codes carried by KindError messages.
const (
	CodeRoomFull       = "room-full"
	CodeInvalidMessage = "invalid-message"
)

// Message is the single envelope for every websocket frame in both directions.
// Fields unused by a kind are left empty and omitted from the encoding.
type Message struct {
	Type   Kind   `json:"type" msgpack:"type"`
	RoomID string `json:"room_id,omitempty" msgpack:"room_id,omitempty"`
	Label  string `json:"label,omitempty" msgpack:"label,omitempty"`

	// From is the sending connection id, stamped by the server on relay.
	From string `json:"from,omitempty" msgpack:"from,omitempty"`
	// To is the explicit target for call-initiate and call-accept.
	To string `json:"to,omitempty" msgpack:"to,omitempty"`

	// PeerID is the subject of welcome (own id), room-joined and peer-joined.
	PeerID string `json:"peer_id,omitempty" msgpack:"peer_id,omitempty"`

	// SDP is an opaque session description, never interpreted by the server.
	SDP string `json:"sdp,omitempty" msgpack:"sdp,omitempty"`

	Code  string `json:"code,omitempty" msgpack:"code,omitempty"`
	Error string `json:"error,omitempty" msgpack:"error,omitempty"`
}

// IsRelay reports whether messages of this kind are forwarded to the room peer.
func (k Kind) IsRelay() bool {
	switch k {
	case KindCallInitiate, KindCallAccept, KindRenegotiateRequest, KindRenegotiateResponse, KindHangUp:
		return true
	}
	return false
}

// Relay returns a copy of m addressed from the given connection, as delivered to the recipient.
func (m *Message) Relay(from string) *Message {
	return &Message{
		Type: m.Type,
		From: from,
		To:   m.To,
		SDP:  m.SDP,
	}
}

// ErrorMessage builds a KindError message.
func ErrorMessage(code, text string) *Message {
	return &Message{Type: KindError, Code: code, Error: text}
}
