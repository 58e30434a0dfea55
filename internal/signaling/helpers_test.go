package signaling

import (
	"sync"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// recordingSink stands in for a websocket connection.
type recordingSink struct {
	mu     sync.Mutex
	msgs   []*protocol.Message
	refuse bool
}

func (s *recordingSink) Deliver(msg *protocol.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse {
		return false
	}
	s.msgs = append(s.msgs, msg)
	return true
}

func (s *recordingSink) ofType(kind protocol.Kind) []*protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*protocol.Message
	for _, m := range s.msgs {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}

func (s *recordingSink) last() *protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		return nil
	}
	return s.msgs[len(s.msgs)-1]
}

type testRouter struct {
	*Router
	registry  *Registry
	directory *Directory
	sinks     map[string]*recordingSink
}

func newTestRouter() *testRouter {
	reg := NewRegistry()
	dir := NewDirectory(reg)
	return &testRouter{
		Router:    NewRouter(reg, dir, nil, nil),
		registry:  reg,
		directory: dir,
		sinks:     make(map[string]*recordingSink),
	}
}

func (tr *testRouter) connect(ids ...string) {
	for _, id := range ids {
		s := &recordingSink{}
		tr.sinks[id] = s
		tr.Connect(id, s)
	}
}

func joinMsg(room, label string) *protocol.Message {
	return &protocol.Message{Type: protocol.KindJoinRoom, RoomID: room, Label: label}
}
