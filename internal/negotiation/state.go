package negotiation

// State is the offer/answer progress of one peer connection.
type State int

const (
	Idle State = iota
	OfferSent
	OfferReceived
	Stable
	Renegotiating
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case OfferSent:
		return "offer-sent"
	case OfferReceived:
		return "offer-received"
	case Stable:
		return "stable"
	case Renegotiating:
		return "renegotiating"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// awaitingAnswer reports whether an offer from this side is unanswered.
func (s State) awaitingAnswer() bool {
	return s == OfferSent || s == Renegotiating
}
