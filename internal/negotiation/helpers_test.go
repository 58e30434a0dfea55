package negotiation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

var errSignalingState = errors.New("wrong signaling state")

// fakeEngine tracks the signaling state of a peer connection and refuses the same calls a
// real one would, such as a second offer before the first is answered.
type fakeEngine struct {
	mu sync.Mutex

	name       string
	haveOffer  bool
	local      string
	prevLocal  string
	remote     string
	seq        int
	offers     int
	rollbacks  int
	offerFails int
	closed     bool

	onNegotiationNeeded func()
	onTrack             func(TrackInfo)
}

func newFakeEngine(name string) *fakeEngine {
	return &fakeEngine{name: name}
}

func fakeSDP(name string, seq int, kind string) string {
	return fmt.Sprintf("v=0\r\no=%s %d %d IN IP4 127.0.0.1\r\ns=%s\r\nt=0 0\r\n", name, 1000+seq, seq, kind)
}

func (e *fakeEngine) CreateOffer() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", errors.New("engine closed")
	}
	if e.haveOffer {
		e.offerFails++
		return "", fmt.Errorf("%w: offer already outstanding", errSignalingState)
	}
	e.seq++
	e.offers++
	e.prevLocal = e.local
	e.local = fakeSDP(e.name, e.seq, "offer")
	e.haveOffer = true
	return e.local, nil
}

func (e *fakeEngine) CreateAnswer(offer string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.haveOffer {
		return "", fmt.Errorf("%w: remote offer in have-local-offer", errSignalingState)
	}
	e.seq++
	e.remote = offer
	e.local = fakeSDP(e.name, e.seq, "answer")
	return e.local, nil
}

func (e *fakeEngine) SetRemoteAnswer(answer string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.haveOffer {
		return fmt.Errorf("%w: answer without offer", errSignalingState)
	}
	e.remote = answer
	e.haveOffer = false
	return nil
}

func (e *fakeEngine) Rollback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.haveOffer {
		return fmt.Errorf("%w: nothing to roll back", errSignalingState)
	}
	e.local = e.prevLocal
	e.haveOffer = false
	e.rollbacks++
	return nil
}

func (e *fakeEngine) OnNegotiationNeeded(f func()) { e.onNegotiationNeeded = f }

func (e *fakeEngine) OnTrack(f func(TrackInfo)) { e.onTrack = f }

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) snapshot() (local, remote string, haveOffer bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local, e.remote, e.haveOffer
}

// queueSignaler records outbound messages instead of sending them.
type queueSignaler struct {
	mu   sync.Mutex
	from string
	out  []*protocol.Message
	fail error
}

func (q *queueSignaler) Send(msg *protocol.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		return q.fail
	}
	q.out = append(q.out, msg.Relay(q.from))
	return nil
}

func (q *queueSignaler) pop() *protocol.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.out) == 0 {
		return nil
	}
	msg := q.out[0]
	q.out = q.out[1:]
	return msg
}

func (q *queueSignaler) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.out)
}

func (q *queueSignaler) kinds() []protocol.Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]protocol.Kind, 0, len(q.out))
	for _, m := range q.out {
		out = append(out, m.Type)
	}
	return out
}

// endpoint is one side of a call wired to a queue that the test drains by hand.
type endpoint struct {
	id      string
	session *Session
	engine  *fakeEngine
	outbox  *queueSignaler
}

func newEndpoint(localID, peerID string) *endpoint {
	eng := newFakeEngine(localID)
	out := &queueSignaler{from: localID}
	return &endpoint{
		id:      localID,
		engine:  eng,
		outbox:  out,
		session: NewSession(Config{LocalID: localID, PeerID: peerID, Engine: eng, Signaler: out}),
	}
}

func newPair() (a, b *endpoint) {
	return newEndpoint("alice", "bob"), newEndpoint("bob", "alice")
}

// dispatch hands a relayed message to the matching session handler, like the client does.
func dispatch(s *Session, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.KindCallInitiate:
		return s.HandleIncomingCall(msg.From, msg.SDP)
	case protocol.KindCallAccept:
		return s.HandleCallAccept(msg.From, msg.SDP)
	case protocol.KindRenegotiateRequest:
		return s.HandleRenegotiateRequest(msg.From, msg.SDP)
	case protocol.KindRenegotiateResponse:
		return s.HandleRenegotiateResponse(msg.From, msg.SDP)
	case protocol.KindHangUp:
		return s.HandleHangUp(msg.From)
	default:
		return fmt.Errorf("unexpected %s", msg.Type)
	}
}

// deliverOne moves the oldest message from src's outbox to dst.
func deliverOne(src, dst *endpoint) (bool, error) {
	msg := src.outbox.pop()
	if msg == nil {
		return false, nil
	}
	return true, dispatch(dst.session, msg)
}

// drain delivers in both directions until nothing is in flight.
func drain(a, b *endpoint) error {
	for {
		movedA, err := deliverOne(a, b)
		if err != nil {
			return err
		}
		movedB, err := deliverOne(b, a)
		if err != nil {
			return err
		}
		if !movedA && !movedB {
			return nil
		}
	}
}
