package signaling

import "errors"

var (
	// ErrRoomFull rejects a join into a room that already has two members.
	ErrRoomFull = errors.New("room is full")

	// ErrUnknownRecipient means a relay target is not registered or not paired with the sender.
	// Such relays are dropped; the peer has usually just disconnected.
	ErrUnknownRecipient = errors.New("unknown recipient")

	ErrUnknownConnection = errors.New("unknown connection")
	ErrAlreadyInRoom     = errors.New("connection already in another room")
)
