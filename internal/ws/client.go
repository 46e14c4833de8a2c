package ws

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/waveroom/backend/internal/events"
)

// LoginState tracks where a socket sits in the join handshake. Events other
// than login attempts are ignored until the socket reaches StateJoined, and
// a rejected socket stays rejected for its lifetime.
type LoginState int

const (
	StateUnauthenticated LoginState = iota
	StatePasswordCheck
	StateJoined
	StateRejected
)

// Dispatcher consumes inbound envelopes from a client's read pump.
type Dispatcher interface {
	HandleEvent(client *Client, envelope events.Envelope)
}

// Client is one websocket connection. Identity fields are filled in during
// the join handshake and read by broadcast paths afterwards.
type Client struct {
	ID   uuid.UUID
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	State      LoginState
	UserID     string
	Username   string
	RoomID     string
	IsAdmin    bool
	IsDeputyDJ bool
}

// NewClient wraps an upgraded connection. The caller still has to Register
// it and start both pumps.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:    uuid.New(),
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, 256),
		State: StateUnauthenticated,
	}
}

// Emit marshals an event envelope and queues it on this socket.
func (c *Client) Emit(t events.Type, data any) {
	message, err := events.Marshal(t, data)
	if err != nil {
		slog.Error("marshaling outbound event",
			slog.String("type", string(t)), slog.Any("error", err))
		return
	}
	select {
	case c.send <- message:
	default:
		slog.Warn("socket send buffer full, dropping event",
			slog.String("connection_id", c.ID.String()),
			slog.String("type", string(t)))
	}
}

// ReadPump reads envelopes off the socket and hands them to the dispatcher.
// It runs until the connection drops, then unregisters the client.
func (c *Client) ReadPump(dispatcher Dispatcher) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("socket read error",
					slog.String("connection_id", c.ID.String()),
					slog.Any("error", err))
			}
			return
		}

		var envelope events.Envelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			slog.Debug("discarding malformed socket frame",
				slog.String("connection_id", c.ID.String()))
			continue
		}
		dispatcher.HandleEvent(c, envelope)
	}
}

// WritePump flushes queued messages to the socket and keeps the connection
// alive with pings. Runs until the send channel closes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
