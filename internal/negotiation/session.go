package negotiation

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// Config wires a Session.
type Config struct {
	// LocalID and PeerID are the signaling connection ids of both ends.
	// They also pick the polite side when offers collide.
	LocalID string
	PeerID  string

	Engine   Engine
	Signaler Signaler
	Logger   *slog.Logger

	// OnStateChange and OnTrack are called with the session lock held
	// and must not call back into the session.
	OnStateChange func(from, to State)
	OnTrack       func(TrackInfo)
}

// Session drives the offer/answer exchange of one peer connection.
//
// At most one local offer is outstanding at any time. A renegotiation requested while an
// offer is in flight is coalesced into a single follow-up offer. When both sides offer at
// once, the polite side (larger connection id) withdraws its offer and answers, while the
// impolite side ignores the incoming offer and waits for its answer. The impolite side's
// changes still reach the peer: the polite side answers them and then re-offers its own
// from the pending flag, so both directions end up negotiated.
type Session struct {
	mu       sync.Mutex
	state    State
	pending  bool
	polite   bool
	localID  string
	peerID   string
	engine   Engine
	signaler Signaler
	logger   *slog.Logger

	onStateChange func(from, to State)
	onTrack       func(TrackInfo)
}

func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Session{
		state:         Idle,
		polite:        cfg.LocalID > cfg.PeerID,
		localID:       cfg.LocalID,
		peerID:        cfg.PeerID,
		engine:        cfg.Engine,
		signaler:      cfg.Signaler,
		logger:        logger.With("peer", cfg.PeerID),
		onStateChange: cfg.OnStateChange,
		onTrack:       cfg.OnTrack,
	}

	s.engine.OnNegotiationNeeded(func() {
		if err := s.NegotiationNeeded(); err != nil {
			s.logger.Warn("renegotiation failed", "error", err)
		}
	})
	s.engine.OnTrack(s.handleTrack)

	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) PeerID() string { return s.peerID }

func (s *Session) Polite() bool { return s.polite }

// Pending reports whether a renegotiation is queued behind the current exchange.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Initiate starts a call by sending an offer to the peer. Only legal from Idle.
func (s *Session) Initiate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return fmt.Errorf("%w: initiate while %s", ErrInvalidTransition, s.state)
	}
	if err := s.offerLocked(protocol.KindCallInitiate); err != nil {
		return err
	}
	s.setStateLocked(OfferSent)
	return nil
}

// HandleIncomingCall answers a call-initiate from the peer.
func (s *Session) HandleIncomingCall(from, offer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from != s.peerID {
		return s.staleLocked(protocol.KindCallInitiate, from)
	}

	switch s.state {
	case Idle:
	case OfferSent:
		if !s.polite {
			s.logger.Debug("ignoring colliding call, waiting for our answer")
			return nil
		}
		if err := s.engine.Rollback(); err != nil {
			return fmt.Errorf("rollback offer: %w", err)
		}
		// Our media goes out in a follow-up offer.
		s.pending = true
		s.logger.Debug("calls collided, withdrew our offer")
	default:
		return s.staleLocked(protocol.KindCallInitiate, from)
	}

	s.setStateLocked(OfferReceived)
	if err := s.answerLocked(protocol.KindCallAccept, offer); err != nil {
		s.setStateLocked(Idle)
		return err
	}
	s.setStateLocked(Stable)
	return s.flushPendingLocked()
}

// HandleCallAccept applies the peer's answer to our call.
func (s *Session) HandleCallAccept(from, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from != s.peerID || s.state != OfferSent {
		return s.staleLocked(protocol.KindCallAccept, from)
	}
	if err := s.engine.SetRemoteAnswer(answer); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	s.logger.Debug("call accepted", sdpAttrs(answer)...)

	s.setStateLocked(Stable)
	return s.flushPendingLocked()
}

// NegotiationNeeded reacts to a local media change. From Stable it sends a new offer;
// while any exchange is in flight the request is queued and replayed once Stable.
func (s *Session) NegotiationNeeded() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == Stable:
		return s.renegotiateLocked()
	case s.state.awaitingAnswer() || s.state == OfferReceived:
		s.pending = true
		s.logger.Debug("renegotiation queued", "state", s.state)
		return nil
	default:
		// Before the call starts the first offer carries everything.
		return nil
	}
}

// HandleRenegotiateRequest answers a renegotiation offer from the peer.
func (s *Session) HandleRenegotiateRequest(from, offer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from != s.peerID {
		return s.staleLocked(protocol.KindRenegotiateRequest, from)
	}

	switch s.state {
	case Stable:
	case Renegotiating:
		if !s.polite {
			s.logger.Debug("ignoring colliding renegotiation, waiting for our answer")
			return nil
		}
		if err := s.engine.Rollback(); err != nil {
			return fmt.Errorf("rollback offer: %w", err)
		}
		s.pending = true
		s.setStateLocked(Stable)
		s.logger.Debug("renegotiations collided, withdrew our offer")
	default:
		return s.staleLocked(protocol.KindRenegotiateRequest, from)
	}

	if err := s.answerLocked(protocol.KindRenegotiateResponse, offer); err != nil {
		return err
	}
	return s.flushPendingLocked()
}

// HandleRenegotiateResponse applies the peer's answer to our renegotiation.
func (s *Session) HandleRenegotiateResponse(from, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from != s.peerID || s.state != Renegotiating {
		return s.staleLocked(protocol.KindRenegotiateResponse, from)
	}
	if err := s.engine.SetRemoteAnswer(answer); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	s.logger.Debug("renegotiation complete", sdpAttrs(answer)...)

	s.setStateLocked(Stable)
	return s.flushPendingLocked()
}

// HandleHangUp ends the session after the peer hung up.
func (s *Session) HandleHangUp(from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from != s.peerID || s.state == Closed {
		return s.staleLocked(protocol.KindHangUp, from)
	}
	return s.closeLocked()
}

// HangUp tells the peer the call is over and closes the session.
func (s *Session) HangUp() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return nil
	}
	if err := s.signaler.Send(&protocol.Message{Type: protocol.KindHangUp, To: s.peerID}); err != nil {
		s.logger.Debug("hang-up not sent", "error", err)
	}
	return s.closeLocked()
}

// Close discards the session without telling the peer, e.g. after the peer left.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) handleTrack(info TrackInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return
	}
	s.logger.Info("remote track", "kind", info.Kind, "track", info.ID, "stream", info.StreamID)
	if s.onTrack != nil {
		s.onTrack(info)
	}
}

func (s *Session) renegotiateLocked() error {
	if err := s.offerLocked(protocol.KindRenegotiateRequest); err != nil {
		return err
	}
	s.setStateLocked(Renegotiating)
	return nil
}

func (s *Session) flushPendingLocked() error {
	if !s.pending || s.state != Stable {
		return nil
	}
	s.pending = false
	return s.renegotiateLocked()
}

func (s *Session) offerLocked(kind protocol.Kind) error {
	offer, err := s.engine.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.signaler.Send(&protocol.Message{Type: kind, To: s.peerID, SDP: offer}); err != nil {
		if rbErr := s.engine.Rollback(); rbErr != nil {
			s.logger.Debug("rollback after failed send", "error", rbErr)
		}
		return fmt.Errorf("send %s: %w", kind, err)
	}
	s.logger.Debug("offer sent", append([]any{"type", kind}, sdpAttrs(offer)...)...)
	return nil
}

func (s *Session) answerLocked(kind protocol.Kind, offer string) error {
	answer, err := s.engine.CreateAnswer(offer)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := s.signaler.Send(&protocol.Message{Type: kind, To: s.peerID, SDP: answer}); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	s.logger.Debug("answer sent", append([]any{"type", kind}, sdpAttrs(answer)...)...)
	return nil
}

func (s *Session) closeLocked() error {
	if s.state == Closed {
		return nil
	}
	s.pending = false
	s.setStateLocked(Closed)
	return s.engine.Close()
}

func (s *Session) staleLocked(kind protocol.Kind, from string) error {
	s.logger.Debug("ignoring stale message", "type", kind, "from", from, "state", s.state)
	return fmt.Errorf("%w: %s from %s while %s", ErrStaleSession, kind, from, s.state)
}

func (s *Session) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.logger.Debug("negotiation state", "from", from, "to", to)
	if s.onStateChange != nil {
		s.onStateChange(from, to)
	}
}
