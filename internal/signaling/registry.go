package signaling

import (
	"sync"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// Sink delivers an outbound message to one live connection.
// Deliver must not block; it reports false when the message was not queued.
type Sink interface {
	Deliver(msg *protocol.Message) bool
}

// Connection is a registered transport session.
type Connection struct {
	ID string

	// RoomID is empty while the connection is in no room.
	RoomID string

	// Label is the user supplied name given at join, usually an email.
	Label string
}

type registryEntry struct {
	conn Connection
	sink Sink
}

// Registry maps connection ids to their room and delivery sink.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*registryEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*registryEntry)}
}

// Register adds a connection with no room. Registering an existing id replaces its sink.
func (r *Registry) Register(id string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conns[id]; ok {
		e.sink = sink
		return
	}
	r.conns[id] = &registryEntry{conn: Connection{ID: id}, sink: sink}
}

// Unregister removes the connection and returns the room it was in.
// Unknown ids are ignored.
func (r *Registry) Unregister(id string) (roomID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return "", false
	}
	delete(r.conns, id)
	return e.conn.RoomID, true
}

func (r *Registry) Lookup(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return e.conn, true
}

func (r *Registry) Sink(id string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.sink, true
}

// setRoom records room membership. Only the Directory calls it, under its own lock.
func (r *Registry) setRoom(id, roomID, label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.conn.RoomID = roomID
	e.conn.Label = label
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
