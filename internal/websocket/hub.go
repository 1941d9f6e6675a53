package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"presence-service/internal/presence"
)

type inboundEvent struct {
	client   *Client
	envelope *presence.Envelope
}

// Hub owns every live client connection and runs the serial event loop that
// feeds the presence coordinator. Register, unregister and inbound frames all
// pass through one goroutine, so coordinator transitions are applied in the
// order the transport delivered them.
type Hub struct {
	// Live clients keyed by socket id
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan *inboundEvent

	coordinator *presence.Coordinator

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	logger *slog.Logger
}

func NewHub(coordinator *presence.Coordinator, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		inbound:     make(chan *inboundEvent),
		coordinator: coordinator,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case evt := <-h.inbound:
			h.dispatch(evt)

		case <-h.ctx.Done():
			h.logger.Info("websocket hub shutting down")
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	h.coordinator.HandleConnect(h.ctx, client.userID, client.id)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, known := h.clients[client.id]
	delete(h.clients, client.id)
	h.mu.Unlock()

	if !known {
		return
	}
	client.closeSendChannel()
	h.coordinator.HandleDisconnect(h.ctx, client.id)
}

func (h *Hub) dispatch(evt *inboundEvent) {
	client, env := evt.client, evt.envelope

	switch env.Event {
	case presence.EventJoinRoom:
		ref, ok := h.decodeRoomRef(client, env)
		if !ok {
			return
		}
		if err := h.coordinator.HandleJoinRoom(h.ctx, client.id, client.userID, ref.RoomID); err != nil {
			h.logger.Warn("join rejected", "socketID", client.id, "roomID", ref.RoomID, "error", err)
		}

	case presence.EventLeaveRoom:
		ref, ok := h.decodeRoomRef(client, env)
		if !ok {
			return
		}
		h.coordinator.HandleLeaveRoom(h.ctx, client.id, client.userID, ref.RoomID)

	case presence.EventGetRoomUsers:
		ref, ok := h.decodeRoomRef(client, env)
		if !ok {
			return
		}
		h.coordinator.HandleGetRoomUsers(h.ctx, client.id, ref.RoomID)

	case presence.EventGetRoomCounts:
		h.coordinator.HandleGetRoomCounts(h.ctx)
	}
}

func (h *Hub) decodeRoomRef(client *Client, env *presence.Envelope) (presence.RoomRef, bool) {
	var ref presence.RoomRef
	if err := json.Unmarshal(env.Data, &ref); err != nil || ref.RoomID == "" {
		h.logger.Warn("bad room payload", "socketID", client.id, "event", env.Event)
		client.sendEvent(presence.EventError, presence.ErrorPayload{Message: "roomId is required"})
		return presence.RoomRef{}, false
	}
	return ref, true
}

// ToSocket implements presence.Gateway for a single connection.
func (h *Hub) ToSocket(socketID string, event presence.EventType, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("frame encode failed", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	client := h.clients[socketID]
	h.mu.RUnlock()
	if client != nil {
		client.enqueue(frame)
	}
}

// ToUser fans out to every live socket of one user.
func (h *Hub) ToUser(userID string, event presence.EventType, payload any) {
	h.fanOut(h.coordinator.Sessions().SocketsOf(userID), event, payload)
}

// ToRoom fans out to every socket subscribed to a room. The presence table
// is the single source of truth for room membership; the hub keeps no room
// index of its own.
func (h *Hub) ToRoom(roomID string, event presence.EventType, payload any) {
	h.fanOut(h.coordinator.Rooms().SocketIDsInRoom(roomID), event, payload)
}

// ToAll fans out to every connected socket.
func (h *Hub) ToAll(event presence.EventType, payload any) {
	h.mu.RLock()
	sockets := make([]string, 0, len(h.clients))
	for id := range h.clients {
		sockets = append(sockets, id)
	}
	h.mu.RUnlock()

	h.fanOut(sockets, event, payload)
}

func (h *Hub) fanOut(socketIDs []string, event presence.EventType, payload any) {
	if len(socketIDs) == 0 {
		return
	}
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("frame encode failed", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range socketIDs {
		if client := h.clients[id]; client != nil {
			client.enqueue(frame)
		}
	}
}

func encodeFrame(event presence.EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(presence.Envelope{Event: event, Data: data})
}
