package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP with gathered candidates

	sendBuffer = 256
)

// Conn is the server side of one participant's websocket.
type Conn struct {
	id     string
	ws     *websocket.Conn
	codec  protocol.Codec
	router *Router
	logger *slog.Logger

	// send is drained by WritePump. It is closed exactly once, under mu.
	send   chan *protocol.Message
	mu     sync.Mutex
	closed bool
}

func NewConn(id string, ws *websocket.Conn, codec protocol.Codec, router *Router, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Conn{
		id:     id,
		ws:     ws,
		codec:  codec,
		router: router,
		logger: logger.With("conn", id, "codec", codec.Name()),
		send:   make(chan *protocol.Message, sendBuffer),
	}
}

func (c *Conn) ID() string { return c.id }

// Deliver queues msg without blocking. A connection that cannot keep up is closed.
func (c *Conn) Deliver(msg *protocol.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("send buffer full, closing slow connection")
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump pumps messages from the websocket connection to the router.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Conn) ReadPump() {
	defer func() {
		c.router.Disconnect(c.id)
		c.closeSend()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}

		var msg protocol.Message
		if err := c.codec.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("undecodable frame", "error", err)
			c.Deliver(protocol.ErrorMessage(protocol.CodeInvalidMessage, "undecodable frame"))
			continue
		}

		if err := c.router.Handle(c.id, &msg); err != nil {
			c.logger.Debug("message not handled", "type", msg.Type, "error", err)
		}
	}
}

// WritePump pumps messages from the router to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The connection was closed on our side.
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.codec.Marshal(msg)
			if err != nil {
				c.logger.Error("encoding outbound message", "type", msg.Type, "error", err)
				continue
			}
			if err := c.ws.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.logger.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
