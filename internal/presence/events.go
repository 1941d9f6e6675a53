package presence

import (
	"encoding/json"
	"fmt"
)

// EventType names a wire event exchanged with clients over the socket.
type EventType string

const (
	// Inbound (client -> server)
	EventJoinRoom      EventType = "joinRoom"
	EventLeaveRoom     EventType = "leaveRoom"
	EventGetRoomUsers  EventType = "getRoomUsers"
	EventGetRoomCounts EventType = "getRoomCounts"

	// Outbound (server -> client)
	EventRoomUserCount   EventType = "roomUserCount"
	EventRoomUsersUpdate EventType = "roomUsersUpdate"
	EventAllRoomCounts   EventType = "allRoomCounts"
	EventFriendStatus    EventType = "friendOnlineStatusUpdate"
	EventError           EventType = "error"
)

func (e EventType) String() string {
	return string(e)
}

// IsInbound reports whether the event is one clients are allowed to send.
func (e EventType) IsInbound() bool {
	switch e {
	case EventJoinRoom, EventLeaveRoom, EventGetRoomUsers, EventGetRoomCounts:
		return true
	default:
		return false
	}
}

// Envelope is the frame format on the wire: a named event plus a JSON payload.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses a raw text frame into an envelope and validates the
// event name against the inbound set.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if !env.Event.IsInbound() {
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
	return &env, nil
}

// RoomRef is the payload of joinRoom, leaveRoom and getRoomUsers.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// RoomUser is one entry in a membership-list broadcast. The field names match
// what the web client reads off the user documents.
type RoomUser struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// RoomUserCountPayload is pushed to every client after each join/leave.
type RoomUserCountPayload struct {
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

// RoomUsersUpdatePayload carries the enriched membership list of one room.
type RoomUsersUpdatePayload struct {
	RoomID string     `json:"roomId"`
	Users  []RoomUser `json:"users"`
}

// FriendStatusPayload notifies a user's friends of an online/offline edge.
type FriendStatusPayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// ErrorPayload is sent to a single socket, e.g. on joining an unknown room.
type ErrorPayload struct {
	Message string `json:"message"`
}
