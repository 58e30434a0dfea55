package call

import (
	"github.com/BioHazard786/Warpcall/internal/negotiation"
	"github.com/BioHazard786/Warpcall/internal/signalclient"
)

type EventKind int

const (
	EventConnected EventKind = iota
	EventJoined
	EventPeerJoined
	EventPeerLeft
	EventCalling
	EventIncomingCall
	EventState
	EventTrack
	EventHungUp
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventJoined:
		return "joined"
	case EventPeerJoined:
		return "peer-joined"
	case EventPeerLeft:
		return "peer-left"
	case EventCalling:
		return "calling"
	case EventIncomingCall:
		return "incoming-call"
	case EventState:
		return "state"
	case EventTrack:
		return "track"
	case EventHungUp:
		return "hung-up"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event reports call progress. Only the fields relevant to Kind are set.
type Event struct {
	Kind   EventKind
	SelfID string
	RoomID string
	Peer   *signalclient.Peer
	State  negotiation.State
	Track  negotiation.TrackInfo
	Err    error

	// Fatal errors end the controller.
	Fatal bool
}
