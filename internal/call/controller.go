package call

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/negotiation"
	"github.com/BioHazard786/Warpcall/internal/protocol"
	"github.com/BioHazard786/Warpcall/internal/signalclient"
)

const eventBuffer = 64

// Engine is a negotiation engine that can also send local media.
type Engine interface {
	negotiation.Engine
	AddTracks(tracks []media.Track) error
}

// Options configures a Controller.
type Options struct {
	RoomID string
	Label  string

	// AutoCall starts a call as soon as a peer is in the room.
	AutoCall bool

	Source    media.Source
	NewEngine func() (Engine, error)
	Signaler  negotiation.Signaler
	Logger    *slog.Logger
}

// Controller is one participant: it joins the room, owns the call session and feeds
// server messages into it.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	selfID     string
	joined     bool
	peer       *signalclient.Peer
	session    *negotiation.Session
	engine     Engine
	tracks     []media.Track
	tracksSent bool

	events chan Event
	done   chan struct{}
	once   sync.Once
}

var _ signalclient.Events = (*Controller)(nil)

func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		opts:   opts,
		logger: logger.With("room", opts.RoomID),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Events delivers progress for the UI. It is never closed; watch Done instead.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Done is closed when the controller has nothing more to do, e.g. the room was full.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) OnWelcome(selfID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selfID = selfID
	c.logger = c.logger.With("self", selfID)
	c.emit(Event{Kind: EventConnected, SelfID: selfID})

	err := c.opts.Signaler.Send(&protocol.Message{
		Type:   protocol.KindJoinRoom,
		RoomID: c.opts.RoomID,
		Label:  c.opts.Label,
	})
	if err != nil {
		c.failLocked(callerr.NewError("join room", err))
	}
}

func (c *Controller) OnRoomJoined(roomID string, peer *signalclient.Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.joined = true
	c.peer = peer
	c.emit(Event{Kind: EventJoined, RoomID: roomID, Peer: peer})

	if peer != nil && c.opts.AutoCall {
		c.callLocked()
	}
}

func (c *Controller) OnPeerJoined(roomID string, peer signalclient.Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.peer = &peer
	c.emit(Event{Kind: EventPeerJoined, RoomID: roomID, Peer: &peer})

	if c.opts.AutoCall {
		c.callLocked()
	}
}

func (c *Controller) OnPeerLeft(roomID, peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peer == nil || c.peer.ID != peerID {
		return
	}
	left := c.peer
	c.peer = nil
	c.endSessionLocked(false)
	c.emit(Event{Kind: EventPeerLeft, RoomID: roomID, Peer: left})
}

func (c *Controller) OnServerError(code, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch code {
	case protocol.CodeRoomFull:
		// The room never changes for this participant, so there is nothing left to do.
		c.failLocked(callerr.WrapError("join room", callerr.ErrRoomFull, c.opts.RoomID))
	default:
		c.logger.Warn("server error", "code", code, "error", text)
		c.emit(Event{Kind: EventError, Err: callerr.WrapError("server", callerr.ErrServerRejected, text)})
	}
}

func (c *Controller) OnIncomingCall(from, offer string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peer == nil || c.peer.ID != from {
		c.logger.Debug("call from unknown peer", "from", from)
		return
	}

	if c.session != nil && c.session.State() != negotiation.Closed {
		// Both sides called at once.
		c.answerLocked(from, offer)
		return
	}

	tracks, err := c.opts.Source.AcquireLocalTracks()
	if err != nil {
		c.logger.Warn("declining call, no local media", "error", err)
		if sendErr := c.opts.Signaler.Send(&protocol.Message{Type: protocol.KindHangUp, To: from}); sendErr != nil {
			c.logger.Debug("hang-up not sent", "error", sendErr)
		}
		c.emit(Event{Kind: EventError, Err: callerr.NewError("answer call", err)})
		return
	}

	if err := c.newSessionLocked(tracks); err != nil {
		c.emit(Event{Kind: EventError, Err: callerr.NewError("answer call", err)})
		return
	}
	c.emit(Event{Kind: EventIncomingCall, Peer: c.peer})
	c.answerLocked(from, offer)
}

// answerLocked answers the peer's call. A call that cannot be answered is hung up so the
// caller is not left waiting for an answer.
func (c *Controller) answerLocked(from, offer string) {
	err := c.session.HandleIncomingCall(from, offer)
	c.handle("call-initiate", err)
	if err != nil && !errors.Is(err, negotiation.ErrStaleSession) {
		c.endSessionLocked(true)
		return
	}
	c.sendTracksLocked()
}

func (c *Controller) OnCallAccepted(from, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		c.logger.Debug("accept without a call", "from", from)
		return
	}
	c.handle("call-accept", c.session.HandleCallAccept(from, answer))
	c.sendTracksLocked()
}

func (c *Controller) OnRenegotiateRequest(from, offer string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		c.logger.Debug("renegotiation without a call", "from", from)
		return
	}
	c.handle("renegotiate-request", c.session.HandleRenegotiateRequest(from, offer))
	c.sendTracksLocked()
}

func (c *Controller) OnRenegotiateResponse(from, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		c.logger.Debug("renegotiation answer without a call", "from", from)
		return
	}
	c.handle("renegotiate-response", c.session.HandleRenegotiateResponse(from, answer))
	c.sendTracksLocked()
}

func (c *Controller) OnHangUp(from string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return
	}
	if err := c.session.HandleHangUp(from); err != nil {
		c.handle("hang-up", err)
		return
	}
	c.session, c.engine, c.tracks, c.tracksSent = nil, nil, nil, false
	c.emit(Event{Kind: EventHungUp, Peer: c.peer, Err: callerr.ErrPeerHungUp})
}

// Call starts a call to the peer in the room.
func (c *Controller) Call() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callLocked()
}

func (c *Controller) callLocked() error {
	if c.peer == nil {
		return callerr.NewError("call", callerr.ErrNoPeer)
	}
	if c.session != nil {
		switch c.session.State() {
		case negotiation.Idle, negotiation.Closed:
			c.endSessionLocked(false)
		default:
			return nil
		}
	}

	tracks, err := c.opts.Source.AcquireLocalTracks()
	if err != nil {
		err = callerr.NewError("call", err)
		c.emit(Event{Kind: EventError, Err: err})
		return err
	}

	if err := c.newSessionLocked(tracks); err != nil {
		err = callerr.NewError("call", err)
		c.emit(Event{Kind: EventError, Err: err})
		return err
	}

	if err := c.session.Initiate(); err != nil {
		c.endSessionLocked(false)
		err = callerr.NewError("call", err)
		c.emit(Event{Kind: EventError, Err: err})
		return err
	}
	c.emit(Event{Kind: EventCalling, Peer: c.peer})
	return nil
}

// HangUp ends the current call but stays in the room.
func (c *Controller) HangUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endSessionLocked(true)
}

// Leave hangs up and leaves the room.
func (c *Controller) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.endSessionLocked(true)
	if c.joined {
		if err := c.opts.Signaler.Send(&protocol.Message{Type: protocol.KindLeaveRoom}); err != nil {
			c.logger.Debug("leave not sent", "error", err)
		}
		c.joined = false
	}
	c.finish()
}

// State returns the negotiation state of the current call, Idle if there is none.
func (c *Controller) State() negotiation.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return negotiation.Idle
	}
	return c.session.State()
}

func (c *Controller) Peer() *signalclient.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *Controller) newSessionLocked(tracks []media.Track) error {
	engine, err := c.opts.NewEngine()
	if err != nil {
		return err
	}

	peer := *c.peer
	c.engine = engine
	c.tracks = tracks
	c.tracksSent = false
	c.session = negotiation.NewSession(negotiation.Config{
		LocalID:  c.selfID,
		PeerID:   peer.ID,
		Engine:   engine,
		Signaler: c.opts.Signaler,
		Logger:   c.logger,
		OnStateChange: func(from, to negotiation.State) {
			c.emit(Event{Kind: EventState, State: to, Peer: &peer})
		},
		OnTrack: func(info negotiation.TrackInfo) {
			c.emit(Event{Kind: EventTrack, Track: info, Peer: &peer})
		},
	})
	return nil
}

// sendTracksLocked adds local media once the call is first stable. Adding it triggers a
// renegotiation through the session.
func (c *Controller) sendTracksLocked() {
	if c.session == nil || c.tracksSent || c.session.State() != negotiation.Stable {
		return
	}
	c.tracksSent = true
	if err := c.engine.AddTracks(c.tracks); err != nil {
		c.emit(Event{Kind: EventError, Err: callerr.NewError("send media", err)})
	}
}

func (c *Controller) endSessionLocked(notify bool) {
	if c.session == nil {
		return
	}

	var err error
	if notify {
		err = c.session.HangUp()
	} else {
		err = c.session.Close()
	}
	if err != nil {
		c.logger.Debug("closing session", "error", err)
	}
	c.session, c.engine, c.tracks, c.tracksSent = nil, nil, nil, false
}

// handle logs the outcome of a session handler. Stale messages are expected after hang-ups.
func (c *Controller) handle(kind string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, negotiation.ErrStaleSession):
		c.logger.Debug("stale message", "type", kind, "error", err)
	default:
		c.logger.Warn("negotiation failed", "type", kind, "error", err)
		c.emit(Event{Kind: EventError, Err: callerr.NewError(fmt.Sprintf("handle %s", kind), err)})
	}
}

func (c *Controller) failLocked(err error) {
	c.emit(Event{Kind: EventError, Err: err, Fatal: true})
	c.finish()
}

func (c *Controller) finish() {
	c.once.Do(func() { close(c.done) })
}

// emit never blocks the signaling loop; a UI that falls this far behind loses updates.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Debug("event dropped", "kind", ev.Kind)
	}
}
