package negotiation

import "github.com/BioHazard786/Warpcall/internal/protocol"

// Engine is the media stack behind one peer connection. SDP is passed through as opaque text.
type Engine interface {
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer() (string, error)

	// CreateAnswer applies a remote offer and returns the local answer, already applied.
	CreateAnswer(offer string) (string, error)

	// SetRemoteAnswer applies the answer to the last local offer.
	SetRemoteAnswer(answer string) error

	// Rollback withdraws an unanswered local offer.
	Rollback() error

	// OnNegotiationNeeded registers the handler for structural media changes.
	OnNegotiationNeeded(func())

	// OnTrack registers the handler for remote tracks.
	OnTrack(func(TrackInfo))

	Close() error
}

// TrackInfo describes a remote media track.
type TrackInfo struct {
	ID       string
	StreamID string
	Kind     string
}

// Signaler sends messages to the signaling server.
type Signaler interface {
	Send(msg *protocol.Message) error
}
