package call

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/negotiation"
	"github.com/BioHazard786/Warpcall/internal/protocol"
	"github.com/BioHazard786/Warpcall/internal/signalclient"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

type fakeEngine struct {
	mu        sync.Mutex
	haveOffer bool
	seq       int
	offers    int
	tracks    int
	closed    bool
	onNeg     func()

	failAnswer bool
}

func (e *fakeEngine) sdp() string {
	e.seq++
	return fmt.Sprintf("v=0\r\no=- %d 1 IN IP4 0.0.0.0\r\ns=-\r\nt=0 0\r\n", e.seq)
}

func (e *fakeEngine) CreateOffer() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.haveOffer {
		return "", errors.New("offer outstanding")
	}
	e.haveOffer = true
	e.offers++
	return e.sdp(), nil
}

func (e *fakeEngine) CreateAnswer(string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.haveOffer {
		return "", errors.New("remote offer in have-local-offer")
	}
	if e.failAnswer {
		return "", errors.New("unsupported offer")
	}
	return e.sdp(), nil
}

func (e *fakeEngine) SetRemoteAnswer(string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.haveOffer {
		return errors.New("answer without offer")
	}
	e.haveOffer = false
	return nil
}

func (e *fakeEngine) Rollback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.haveOffer {
		return errors.New("nothing to roll back")
	}
	e.haveOffer = false
	return nil
}

func (e *fakeEngine) AddTracks(tracks []media.Track) error {
	e.mu.Lock()
	e.tracks += len(tracks)
	handler := e.onNeg
	e.mu.Unlock()
	if handler != nil {
		go handler()
	}
	return nil
}

func (e *fakeEngine) OnNegotiationNeeded(f func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onNeg = f
}

func (e *fakeEngine) OnTrack(func(negotiation.TrackInfo)) {}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) sentTracks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracks
}

func (e *fakeEngine) snapshot() (offers int, busy, closed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offers, e.haveOffer, e.closed
}

type fakeSource struct{}

func (fakeSource) AcquireLocalTracks() ([]media.Track, error) {
	return []media.Track{{Kind: "audio"}}, nil
}

// inbox feeds router deliveries to a controller on its own goroutine, like a websocket read loop.
type inbox struct {
	ch chan *protocol.Message
}

func (in *inbox) Deliver(msg *protocol.Message) bool {
	select {
	case in.ch <- msg:
		return true
	default:
		return false
	}
}

// routerSignaler sends straight into the router as the given connection.
type routerSignaler struct {
	router *signaling.Router
	id     string
}

func (s *routerSignaler) Send(msg *protocol.Message) error {
	_ = s.router.Handle(s.id, msg)
	return nil
}

type participant struct {
	*Controller
	id string

	mu      sync.Mutex
	engines []*fakeEngine

	failAnswers atomic.Bool
}

func (p *participant) engine() *fakeEngine {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.engines) == 0 {
		return nil
	}
	return p.engines[len(p.engines)-1]
}

func (p *participant) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-p.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("%s: no %s event", p.id, kind)
			return Event{}
		}
	}
}

type harness struct {
	router *signaling.Router
}

func newHarness() *harness {
	reg := signaling.NewRegistry()
	return &harness{router: signaling.NewRouter(reg, signaling.NewDirectory(reg), nil, nil)}
}

func (h *harness) join(t *testing.T, id, room string, autoCall bool, source media.Source) *participant {
	t.Helper()

	p := &participant{id: id}
	p.Controller = NewController(Options{
		RoomID:   room,
		Label:    id + "@example.com",
		AutoCall: autoCall,
		Source:   source,
		Signaler: &routerSignaler{router: h.router, id: id},
		NewEngine: func() (Engine, error) {
			eng := &fakeEngine{failAnswer: p.failAnswers.Load()}
			p.mu.Lock()
			p.engines = append(p.engines, eng)
			p.mu.Unlock()
			return eng, nil
		},
	})

	in := &inbox{ch: make(chan *protocol.Message, 64)}
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case msg := <-in.ch:
				_ = signalclient.Dispatch(msg, p.Controller)
			case <-stop:
				return
			}
		}
	}()
	t.Cleanup(func() {
		h.router.Disconnect(id)
		close(stop)
	})

	h.router.Connect(id, in)
	p.waitFor(t, EventJoined)
	return p
}

func settled(ps ...*participant) func() bool {
	return func() bool {
		for _, p := range ps {
			if p.State() != negotiation.Stable {
				return false
			}
			eng := p.engine()
			if eng == nil || eng.sentTracks() == 0 {
				return false
			}
			if _, busy, _ := eng.snapshot(); busy {
				return false
			}
		}
		return true
	}
}

func TestCallThenSendMedia(t *testing.T) {
	h := newHarness()
	c1 := h.join(t, "c1", "room1", false, fakeSource{})
	c2 := h.join(t, "c2", "room1", true, fakeSource{})

	peerJoined := c1.waitFor(t, EventPeerJoined)
	assert.Equal(t, "c2", peerJoined.Peer.ID)
	assert.Equal(t, "c2@example.com", peerJoined.Peer.Label)

	require.Eventually(t, settled(c1, c2), 5*time.Second, 10*time.Millisecond)

	// Both sides sent media after the call was accepted, each through a renegotiation.
	assert.Equal(t, 1, c1.engine().sentTracks())
	assert.Equal(t, 1, c2.engine().sentTracks())
	offers1, _, _ := c1.engine().snapshot()
	offers2, _, _ := c2.engine().snapshot()
	assert.GreaterOrEqual(t, offers1+offers2, 3)
}

func TestBothSidesCallAtOnce(t *testing.T) {
	h := newHarness()
	c1 := h.join(t, "c1", "room1", true, fakeSource{})
	c2 := h.join(t, "c2", "room1", true, fakeSource{})

	require.Eventually(t, settled(c1, c2), 5*time.Second, 10*time.Millisecond)
}

func TestRoomFullEndsController(t *testing.T) {
	h := newHarness()
	h.join(t, "c1", "room1", false, fakeSource{})
	h.join(t, "c2", "room1", false, fakeSource{})

	p := &participant{id: "c3"}
	p.Controller = NewController(Options{
		RoomID:    "room1",
		Source:    fakeSource{},
		Signaler:  &routerSignaler{router: h.router, id: "c3"},
		NewEngine: func() (Engine, error) { return &fakeEngine{}, nil },
	})
	in := &inbox{ch: make(chan *protocol.Message, 8)}
	h.router.Connect("c3", in)
	defer h.router.Disconnect("c3")

	for range 2 {
		require.NoError(t, signalclient.Dispatch(<-in.ch, p.Controller))
	}

	ev := p.waitFor(t, EventError)
	assert.True(t, ev.Fatal)
	assert.ErrorIs(t, ev.Err, callerr.ErrRoomFull)

	select {
	case <-p.Done():
	default:
		t.Fatal("controller still running after room-full")
	}
}

func TestCalleeWithoutMediaHangsUp(t *testing.T) {
	h := newHarness()
	c1 := h.join(t, "c1", "room1", false, fakeSource{})
	c2 := h.join(t, "c2", "room1", false, media.NoSource{})
	c1.waitFor(t, EventPeerJoined)

	require.NoError(t, c1.Call())

	ev := c2.waitFor(t, EventError)
	assert.ErrorIs(t, ev.Err, media.ErrMediaUnavailable)

	ev = c1.waitFor(t, EventHungUp)
	assert.ErrorIs(t, ev.Err, callerr.ErrPeerHungUp)
	assert.Equal(t, negotiation.Idle, c1.State())
	_, _, closed := c1.engine().snapshot()
	assert.True(t, closed)
}

func TestUnanswerableCallIsHungUp(t *testing.T) {
	h := newHarness()
	c1 := h.join(t, "c1", "room1", false, fakeSource{})
	c2 := h.join(t, "c2", "room1", false, fakeSource{})
	c2.failAnswers.Store(true)
	c1.waitFor(t, EventPeerJoined)

	require.NoError(t, c1.Call())

	c2.waitFor(t, EventError)
	ev := c1.waitFor(t, EventHungUp)
	assert.ErrorIs(t, ev.Err, callerr.ErrPeerHungUp)
	assert.Equal(t, negotiation.Idle, c1.State())
	assert.Equal(t, negotiation.Idle, c2.State())
	_, _, closed := c2.engine().snapshot()
	assert.True(t, closed)

	c2.failAnswers.Store(false)
	require.NoError(t, c2.Call())
	require.Eventually(t, settled(c1, c2), 5*time.Second, 10*time.Millisecond)
}

func TestPeerLeavingEndsCall(t *testing.T) {
	h := newHarness()
	c1 := h.join(t, "c1", "room1", false, fakeSource{})
	c2 := h.join(t, "c2", "room1", true, fakeSource{})
	require.Eventually(t, settled(c1, c2), 5*time.Second, 10*time.Millisecond)

	c2.Leave()

	ev := c1.waitFor(t, EventPeerLeft)
	assert.Equal(t, "c2", ev.Peer.ID)
	assert.Equal(t, negotiation.Idle, c1.State())
	assert.Nil(t, c1.Peer())

	err := c1.Call()
	assert.ErrorIs(t, err, callerr.ErrNoPeer)
}

func TestHangUpThenCallAgain(t *testing.T) {
	h := newHarness()
	c1 := h.join(t, "c1", "room1", false, fakeSource{})
	c2 := h.join(t, "c2", "room1", true, fakeSource{})
	require.Eventually(t, settled(c1, c2), 5*time.Second, 10*time.Millisecond)

	c1.HangUp()
	c2.waitFor(t, EventHungUp)
	assert.Equal(t, negotiation.Idle, c2.State())

	require.NoError(t, c1.Call())
	require.Eventually(t, settled(c1, c2), 5*time.Second, 10*time.Millisecond)

	c1.mu.Lock()
	calls := len(c1.engines)
	c1.mu.Unlock()
	assert.Equal(t, 2, calls, "every call gets a fresh engine")
}

func TestCallWithoutPeer(t *testing.T) {
	h := newHarness()
	c1 := h.join(t, "c1", "room1", false, fakeSource{})

	assert.ErrorIs(t, c1.Call(), callerr.ErrNoPeer)
}
