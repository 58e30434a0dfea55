package negotiation

import "errors"

var (
	// ErrStaleSession is returned for messages that do not fit the session's state or peer,
	// typically late arrivals after a hang-up. Callers ignore it.
	ErrStaleSession = errors.New("stale session")

	// ErrInvalidTransition is returned when a local action is not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid transition")
)
