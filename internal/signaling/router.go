package signaling

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// Router is the relay core of the signaling server. It resolves every recipient from the
// Registry and Directory it is given and keeps no routing state of its own.
type Router struct {
	registry  *Registry
	directory *Directory
	logger    *slog.Logger
	metrics   *Metrics
}

// NewRouter wires a router over the given registry and directory.
// A nil logger discards output and nil metrics records nothing.
func NewRouter(registry *Registry, directory *Directory, logger *slog.Logger, metrics *Metrics) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if metrics == nil {
		metrics = noopMetrics()
	}
	return &Router{
		registry:  registry,
		directory: directory,
		logger:    logger,
		metrics:   metrics,
	}
}

// Connect registers a new connection and tells it its id.
func (r *Router) Connect(id string, sink Sink) {
	r.registry.Register(id, sink)
	r.metrics.connection(1)
	r.logger.Info("connection registered", "conn", id)

	sink.Deliver(&protocol.Message{Type: protocol.KindWelcome, PeerID: id})
}

// Disconnect removes the connection from its room and the registry. The remaining room
// member is told once; repeated calls do nothing.
func (r *Router) Disconnect(id string) {
	r.leave(id)

	if _, ok := r.registry.Unregister(id); ok {
		r.metrics.connection(-1)
		r.logger.Info("connection unregistered", "conn", id)
	}
}

// Handle dispatches one inbound message from the connection. The returned error is
// informational: the sender has already been told about anything it can act on.
func (r *Router) Handle(from string, msg *protocol.Message) error {
	if err := protocol.Validate(msg); err != nil {
		r.logger.Debug("rejecting message", "conn", from, "error", err)
		r.send(from, protocol.ErrorMessage(protocol.CodeInvalidMessage, err.Error()))
		return err
	}

	switch {
	case msg.Type == protocol.KindJoinRoom:
		return r.join(from, msg)

	case msg.Type == protocol.KindLeaveRoom:
		r.leave(from)
		return nil

	case msg.Type.IsRelay():
		return r.relay(from, msg)

	default:
		return fmt.Errorf("%w: unhandled type %q", protocol.ErrInvalidMessage, msg.Type)
	}
}

func (r *Router) join(from string, msg *protocol.Message) error {
	conn, ok := r.registry.Lookup(from)
	if !ok {
		return ErrUnknownConnection
	}
	rejoin := conn.RoomID == msg.RoomID

	peer, dep, err := r.directory.Move(msg.RoomID, from, msg.Label)
	if errors.Is(err, ErrRoomFull) {
		r.metrics.join("room_full")
		r.logger.Info("room join rejected", "room", msg.RoomID, "conn", from, "reason", err)
		r.send(from, protocol.ErrorMessage(protocol.CodeRoomFull, "Room is full"))
		return err
	}
	if err != nil {
		return err
	}
	if dep != nil {
		r.departed(from, dep.RoomID, dep.Remaining)
	}
	r.metrics.join("ok")
	r.logger.Info("joined room", "room", msg.RoomID, "conn", from, "label", msg.Label)

	joined := &protocol.Message{Type: protocol.KindRoomJoined, RoomID: msg.RoomID}
	if peer != nil {
		joined.PeerID = peer.ID
		joined.Label = peer.Label
	}
	r.send(from, joined)

	if peer != nil && !rejoin {
		r.send(peer.ID, &protocol.Message{
			Type:   protocol.KindPeerJoined,
			RoomID: msg.RoomID,
			PeerID: from,
			Label:  msg.Label,
		})
	}
	return nil
}

func (r *Router) leave(from string) {
	remaining, roomID, ok := r.directory.Leave(from)
	if ok {
		r.departed(from, roomID, remaining)
	}
}

func (r *Router) departed(from, roomID string, remaining *Member) {
	r.logger.Info("left room", "room", roomID, "conn", from)

	if remaining != nil {
		r.send(remaining.ID, &protocol.Message{
			Type:   protocol.KindPeerLeft,
			RoomID: roomID,
			PeerID: from,
		})
	}
}

// relay forwards to the sender's room peer. Call setup names its target explicitly and is
// dropped unless that target is the peer; renegotiation and hang-up go to the peer as is.
func (r *Router) relay(from string, msg *protocol.Message) error {
	peer, ok := r.directory.Peer(from)
	if !ok {
		return r.drop(from, msg.To, msg.Type)
	}
	addressed := msg.Type == protocol.KindCallInitiate || msg.Type == protocol.KindCallAccept
	if addressed && peer.ID != msg.To {
		return r.drop(from, msg.To, msg.Type)
	}
	return r.deliver(from, peer.ID, msg)
}

func (r *Router) deliver(from, to string, msg *protocol.Message) error {
	sink, ok := r.registry.Sink(to)
	if !ok || !sink.Deliver(msg.Relay(from)) {
		return r.drop(from, to, msg.Type)
	}
	r.metrics.relay(string(msg.Type), "delivered")
	r.logger.Debug("relayed", "type", msg.Type, "from", from, "to", to)
	return nil
}

func (r *Router) drop(from, to string, kind protocol.Kind) error {
	r.metrics.relay(string(kind), "dropped")
	r.logger.Debug("dropping relay", "type", kind, "from", from, "to", to)
	return ErrUnknownRecipient
}

// send is best effort; a missing or saturated recipient is not an error at this layer.
func (r *Router) send(to string, msg *protocol.Message) {
	sink, ok := r.registry.Sink(to)
	if !ok {
		return
	}
	sink.Deliver(msg)
}
