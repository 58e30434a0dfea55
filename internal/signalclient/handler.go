package signalclient

import (
	"context"
	"fmt"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// Peer is the other member of the room.
type Peer struct {
	ID    string
	Label string
}

// Events receives every message the server can send, one method per kind.
type Events interface {
	OnWelcome(selfID string)
	OnRoomJoined(roomID string, peer *Peer)
	OnPeerJoined(roomID string, peer Peer)
	OnPeerLeft(roomID, peerID string)
	OnServerError(code, text string)

	OnIncomingCall(from, offer string)
	OnCallAccepted(from, answer string)
	OnRenegotiateRequest(from, offer string)
	OnRenegotiateResponse(from, answer string)
	OnHangUp(from string)
}

// Dispatch hands msg to the matching Events method.
func Dispatch(msg *protocol.Message, ev Events) error {
	switch msg.Type {
	case protocol.KindWelcome:
		ev.OnWelcome(msg.PeerID)

	case protocol.KindRoomJoined:
		var peer *Peer
		if msg.PeerID != "" {
			peer = &Peer{ID: msg.PeerID, Label: msg.Label}
		}
		ev.OnRoomJoined(msg.RoomID, peer)

	case protocol.KindPeerJoined:
		ev.OnPeerJoined(msg.RoomID, Peer{ID: msg.PeerID, Label: msg.Label})

	case protocol.KindPeerLeft:
		ev.OnPeerLeft(msg.RoomID, msg.PeerID)

	case protocol.KindError:
		ev.OnServerError(msg.Code, msg.Error)

	case protocol.KindCallInitiate:
		ev.OnIncomingCall(msg.From, msg.SDP)

	case protocol.KindCallAccept:
		ev.OnCallAccepted(msg.From, msg.SDP)

	case protocol.KindRenegotiateRequest:
		ev.OnRenegotiateRequest(msg.From, msg.SDP)

	case protocol.KindRenegotiateResponse:
		ev.OnRenegotiateResponse(msg.From, msg.SDP)

	case protocol.KindHangUp:
		ev.OnHangUp(msg.From)

	default:
		return fmt.Errorf("unexpected message type %q", msg.Type)
	}
	return nil
}

// Run dispatches incoming messages until the connection closes or ctx is done.
func (c *Client) Run(ctx context.Context, ev Events) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-c.incoming:
			if !ok {
				return ErrClosed
			}
			if err := Dispatch(msg, ev); err != nil {
				c.logger.Debug("ignoring message", "error", err)
			}
		}
	}
}
