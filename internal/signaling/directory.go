package signaling

import (
	"slices"
	"sort"
	"sync"
)

// RoomCapacity is the number of participants a room can hold.
const RoomCapacity = 2

// Room is a rendezvous point for two connections.
type Room struct {
	// ID is the caller supplied room name, matched exactly.
	ID string

	// Members holds connection ids in join order. They reference Registry entries.
	Members []string
}

// Member identifies the other participant of a room.
type Member struct {
	ID    string
	Label string
}

// RoomInfo is a read-only snapshot of a room.
type RoomInfo struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// Directory maps room ids to their members. All mutations are serialized by one lock,
// held only for the mutation itself.
type Directory struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	registry *Registry
}

func NewDirectory(registry *Registry) *Directory {
	return &Directory{
		rooms:    make(map[string]*Room),
		registry: registry,
	}
}

// Departure is the room a connection left while moving to another one.
type Departure struct {
	RoomID    string
	Remaining *Member
}

// Join adds the connection to the room, creating it on first join, and returns the other
// member if there is one. A full room is rejected with ErrRoomFull and left untouched.
// Joining the room the connection is already in is a no-op.
func (d *Directory) Join(roomID, connID, label string) (*Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, ok := d.registry.Lookup(connID)
	if !ok {
		return nil, ErrUnknownConnection
	}

	switch conn.RoomID {
	case roomID:
		return d.peerLocked(roomID, connID), nil
	case "":
	default:
		return nil, ErrAlreadyInRoom
	}

	if d.fullLocked(roomID) {
		return nil, ErrRoomFull
	}
	return d.joinLocked(roomID, connID, label), nil
}

// Move joins the room like Join but first takes the connection out of its current room.
// Capacity is checked before anything changes, so a rejected move keeps the old pair.
func (d *Directory) Move(roomID, connID, label string) (*Member, *Departure, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, ok := d.registry.Lookup(connID)
	if !ok {
		return nil, nil, ErrUnknownConnection
	}
	if conn.RoomID == roomID {
		return d.peerLocked(roomID, connID), nil, nil
	}
	if d.fullLocked(roomID) {
		return nil, nil, ErrRoomFull
	}

	var dep *Departure
	if conn.RoomID != "" {
		dep = &Departure{RoomID: conn.RoomID, Remaining: d.leaveLocked(conn)}
	}
	return d.joinLocked(roomID, connID, label), dep, nil
}

// Leave removes the connection from its room and returns the member left behind, if any.
// ok is false when the connection was in no room.
func (d *Directory) Leave(connID string) (remaining *Member, roomID string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, found := d.registry.Lookup(connID)
	if !found || conn.RoomID == "" {
		return nil, "", false
	}
	return d.leaveLocked(conn), conn.RoomID, true
}

func (d *Directory) fullLocked(roomID string) bool {
	room, ok := d.rooms[roomID]
	return ok && len(room.Members) >= RoomCapacity
}

func (d *Directory) joinLocked(roomID, connID, label string) *Member {
	room, ok := d.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID}
		d.rooms[roomID] = room
	}
	room.Members = append(room.Members, connID)
	d.registry.setRoom(connID, roomID, label)

	return d.peerLocked(roomID, connID)
}

func (d *Directory) leaveLocked(conn Connection) *Member {
	d.registry.setRoom(conn.ID, "", conn.Label)

	room, ok := d.rooms[conn.RoomID]
	if !ok {
		return nil
	}
	room.Members = slices.DeleteFunc(room.Members, func(id string) bool { return id == conn.ID })

	if len(room.Members) == 0 {
		delete(d.rooms, conn.RoomID)
		return nil
	}
	return d.memberLocked(room.Members[0])
}

// Peer returns the other member of the connection's room.
func (d *Directory) Peer(connID string) (*Member, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, ok := d.registry.Lookup(connID)
	if !ok || conn.RoomID == "" {
		return nil, false
	}
	peer := d.peerLocked(conn.RoomID, connID)
	return peer, peer != nil
}

// Members returns a copy of the room's member ids in join order.
func (d *Directory) Members(roomID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	return slices.Clone(room.Members)
}

// Rooms returns all rooms sorted by id.
func (d *Directory) Rooms() []RoomInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	infos := make([]RoomInfo, 0, len(d.rooms))
	for _, room := range d.rooms {
		infos = append(infos, RoomInfo{ID: room.ID, Members: len(room.Members)})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

func (d *Directory) peerLocked(roomID, connID string) *Member {
	room, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	for _, id := range room.Members {
		if id != connID {
			return d.memberLocked(id)
		}
	}
	return nil
}

func (d *Directory) memberLocked(id string) *Member {
	conn, _ := d.registry.Lookup(id)
	return &Member{ID: id, Label: conn.Label}
}
