package websocket

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"presence-service/internal/presence"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering happens in the CORS middleware; the cookie token
		// check has already gated admission by the time we upgrade.
		return true
	},
}

// Client is one transport connection: a socket id bound to exactly one user
// id for its lifetime.
type Client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte

	closed     int32
	sendClosed int32
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		id:     uuid.New().String(),
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Client) close() {
	atomic.CompareAndSwapInt32(&c.closed, 0, 1)
}

// closeSendChannel is called by the hub once the client is unregistered, so
// writePump drains and exits.
func (c *Client) closeSendChannel() {
	if atomic.CompareAndSwapInt32(&c.sendClosed, 0, 1) {
		close(c.send)
	}
}

// enqueue hands a pre-encoded frame to the write pump. Best-effort: a full
// buffer drops the frame rather than blocking the hub.
func (c *Client) enqueue(frame []byte) {
	if c.isClosed() || atomic.LoadInt32(&c.sendClosed) == 1 {
		return
	}
	select {
	case c.send <- frame:
	default:
		slog.Warn("send buffer full, dropping frame", "socketID", c.id, "userID", c.userID)
	}
}

func (c *Client) sendEvent(event presence.EventType, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		slog.Error("frame encode failed", "socketID", c.id, "event", event, "error", err)
		return
	}
	c.enqueue(frame)
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("websocket read error", "socketID", c.id, "userID", c.userID, "error", err)
			} else {
				slog.Debug("websocket connection closed", "socketID", c.id, "userID", c.userID)
			}
			break
		}

		env, err := presence.DecodeEnvelope(raw)
		if err != nil {
			slog.Debug("rejected frame", "socketID", c.id, "userID", c.userID, "error", err)
			c.sendEvent(presence.EventError, presence.ErrorPayload{Message: "invalid message format"})
			continue
		}

		c.hub.inbound <- &inboundEvent{client: c, envelope: env}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("websocket write error", "socketID", c.id, "userID", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades an admitted request and attaches the connection to the
// hub. userID comes from the auth gate; no event handler runs before the
// registration is queued.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "userID", userID, "error", err)
		return
	}

	client := newClient(hub, conn, userID)
	slog.Info("websocket connection established", "socketID", client.id, "userID", userID)

	hub.register <- client

	go client.writePump()
	go client.readPump()
}
