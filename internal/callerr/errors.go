package callerr

import (
	"errors"
	"fmt"
)

var (
	ErrPeerHungUp       = errors.New("peer hung up")
	ErrRoomFull         = errors.New("room is full")
	ErrServerRejected   = errors.New("signaling server error")
	ErrTimeout          = errors.New("timeout")
	ErrNoPeer           = errors.New("no peer in the room")
	ErrConnectionLost   = errors.New("signaling connection lost")
	ErrConnectionFailed = errors.New("media connection failed")
)

// CallError describes a failed step of a call.
type CallError struct {
	Op      string
	Err     error
	Details string
}

func (e *CallError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *CallError {
	return &CallError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *CallError {
	return &CallError{Op: op, Err: err, Details: details}
}
