package presence

import (
	"sync"
	"time"
)

// RoomPresenceTable tracks, per room, the set of member users and the set of
// member sockets currently subscribed. The two sets move in lockstep: a user
// id is present iff that user owns at least one socket in the room's socket
// set. A room entry exists only while it has members; the last leave deletes
// it, so every entry in the table is a live room.
type RoomPresenceTable struct {
	mu    sync.RWMutex
	rooms map[string]*roomPresence
}

type roomPresence struct {
	users      map[string]struct{}
	sockets    map[string]struct{}
	lastUpdate time.Time
}

func NewRoomPresenceTable() *RoomPresenceTable {
	return &RoomPresenceTable{rooms: make(map[string]*roomPresence)}
}

// EnsureRoom creates an empty presence entry if none exists.
func (t *RoomPresenceTable) EnsureRoom(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLocked(roomID)
}

func (t *RoomPresenceTable) ensureLocked(roomID string) *roomPresence {
	room, ok := t.rooms[roomID]
	if !ok {
		room = &roomPresence{
			users:   make(map[string]struct{}),
			sockets: make(map[string]struct{}),
		}
		t.rooms[roomID] = room
	}
	return room
}

// AddMember adds the socket and its owning user to the room. A user joining
// from a second socket stays a single entry in the user set, so occupancy
// counts never double-count multi-tab users.
func (t *RoomPresenceTable) AddMember(roomID, userID, socketID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room := t.ensureLocked(roomID)
	room.sockets[socketID] = struct{}{}
	room.users[userID] = struct{}{}
	room.lastUpdate = time.Now()
}

// RemoveMember removes socketID from the room's socket set. otherSockets must
// be the user's remaining live sockets (excluding the one being removed); the
// user stays a member only if one of those is still in this room. It reports
// whether the user left the room and whether the now-empty room was deleted.
func (t *RoomPresenceTable) RemoveMember(roomID, userID, socketID string, otherSockets []string) (userLeft, roomDeleted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return false, false
	}
	delete(room.sockets, socketID)

	stillPresent := false
	for _, other := range otherSockets {
		if _, ok := room.sockets[other]; ok {
			stillPresent = true
			break
		}
	}
	if !stillPresent {
		delete(room.users, userID)
		userLeft = true
	}
	if len(room.users) == 0 {
		delete(t.rooms, roomID)
		roomDeleted = true
	} else {
		room.lastUpdate = time.Now()
	}
	return userLeft, roomDeleted
}

// MemberUsers returns the user ids present in a room, empty if absent.
func (t *RoomPresenceTable) MemberUsers(roomID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	users := make([]string, 0, len(room.users))
	for id := range room.users {
		users = append(users, id)
	}
	return users
}

// SocketIDsInRoom returns the raw socket ids subscribed to a room, for
// targeted broadcast.
func (t *RoomPresenceTable) SocketIDsInRoom(roomID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	sockets := make([]string, 0, len(room.sockets))
	for id := range room.sockets {
		sockets = append(sockets, id)
	}
	return sockets
}

// UserCount returns the occupancy of a room, counting users rather than
// sockets. Zero for unknown rooms.
func (t *RoomPresenceTable) UserCount(roomID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return 0
	}
	return len(room.users)
}

// Has reports whether a room currently holds any presence state.
func (t *RoomPresenceTable) Has(roomID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.rooms[roomID]
	return ok
}

// LastUpdate returns the time of the room's most recent membership change.
func (t *RoomPresenceTable) LastUpdate(roomID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return time.Time{}, false
	}
	return room.lastUpdate, true
}

// RoomsWithSocket scans the table for every room the socket is a member of.
// Only live rooms exist in the table, so the scan is proportional to the
// number of rooms with at least one online member, not to all rooms.
func (t *RoomPresenceTable) RoomsWithSocket(socketID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var rooms []string
	for roomID, room := range t.rooms {
		if _, ok := room.sockets[socketID]; ok {
			rooms = append(rooms, roomID)
		}
	}
	return rooms
}

// Counts returns the user-count of every live room.
func (t *RoomPresenceTable) Counts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[string]int, len(t.rooms))
	for roomID, room := range t.rooms {
		counts[roomID] = len(room.users)
	}
	return counts
}
