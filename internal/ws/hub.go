// Package ws manages the websocket connections attached to this process.
// The hub only knows about local sockets; cross-process delivery happens by
// publishing to the store and letting every process's fanout layer re-emit
// to its own hub.
package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hub tracks the sockets connected to this process, grouped by room and by
// user. Registration and room membership changes flow through channels into
// a single Run loop, mirroring how socket lifecycles are serialized.
type Hub struct {
	clients     map[uuid.UUID]*Client
	rooms       map[string]map[uuid.UUID]*Client
	userClients map[string]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	// onDisconnect runs after a client is removed so the caller can clean
	// up store-side membership.
	onDisconnect func(*Client)

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub ready for Run.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[uuid.UUID]*Client),
		rooms:       make(map[string]map[uuid.UUID]*Client),
		userClients: make(map[string]map[uuid.UUID]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetDisconnectHandler installs the callback invoked after a client is
// unregistered. Must be called before Run.
func (h *Hub) SetDisconnectHandler(fn func(*Client)) {
	h.onDisconnect = fn
}

// Run processes registrations until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// Stop shuts the hub down and closes every connection.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.clients = make(map[uuid.UUID]*Client)
	h.rooms = make(map[string]map[uuid.UUID]*Client)
	h.userClients = make(map[string]map[uuid.UUID]*Client)
}

// Register adds a new client to the hub. A no-op after Stop.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub. A no-op after Stop.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	slog.Debug("socket registered", slog.String("connection_id", client.ID.String()))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	// RoomID stays set so the disconnect handler knows which room to clean.
	if room, ok := h.rooms[client.RoomID]; ok {
		delete(room, client.ID)
		if len(room) == 0 {
			delete(h.rooms, client.RoomID)
		}
	}
	if client.UserID != "" {
		if conns, ok := h.userClients[client.UserID]; ok {
			delete(conns, client.ID)
			if len(conns) == 0 {
				delete(h.userClients, client.UserID)
			}
		}
	}
	delete(h.clients, client.ID)
	close(client.send)
	h.mu.Unlock()

	slog.Debug("socket unregistered",
		slog.String("connection_id", client.ID.String()),
		slog.String("user_id", client.UserID))

	if h.onDisconnect != nil {
		h.onDisconnect(client)
	}
}

// JoinRoom binds an authenticated client to its room's broadcast group.
func (h *Hub) JoinRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[uuid.UUID]*Client)
	}
	h.rooms[roomID][client.ID] = client
	client.RoomID = roomID

	if client.UserID != "" {
		if _, ok := h.userClients[client.UserID]; !ok {
			h.userClients[client.UserID] = make(map[uuid.UUID]*Client)
		}
		h.userClients[client.UserID][client.ID] = client
	}
}

// LeaveRoom detaches a client from its room's broadcast group.
func (h *Hub) LeaveRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(client, roomID)
}

func (h *Hub) removeFromRoomLocked(client *Client, roomID string) {
	if room, ok := h.rooms[roomID]; ok {
		delete(room, client.ID)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	client.RoomID = ""
}

// BroadcastToRoom delivers a serialized envelope to every socket in the
// room on this process. Delivery is best-effort: a client with a full send
// buffer is skipped rather than blocking the caller.
func (h *Hub) BroadcastToRoom(roomID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.rooms[roomID] {
		select {
		case client.send <- message:
		default:
			slog.Warn("socket send buffer full, dropping event",
				slog.String("connection_id", client.ID.String()))
		}
	}
}

// SendToUser delivers a serialized envelope to every socket the user has
// open on this process.
func (h *Hub) SendToUser(userID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.userClients[userID] {
		select {
		case client.send <- message:
		default:
			slog.Warn("socket send buffer full, dropping event",
				slog.String("connection_id", client.ID.String()))
		}
	}
}

// RoomConnectionCount reports how many local sockets are in the room.
func (h *Hub) RoomConnectionCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// pingPeriod must be shorter than the client read deadline.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)
