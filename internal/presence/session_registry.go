package presence

import "sync"

// SessionRegistry maps authenticated users to their live socket connections.
// A user may hold several sockets at once (multiple browser tabs); the user
// entry exists iff at least one socket is live, and is removed the instant
// the socket set empties — that removal is the "user went offline" signal.
type SessionRegistry struct {
	mu          sync.RWMutex
	userSockets map[string]map[string]struct{}
	socketOwner map[string]string
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		userSockets: make(map[string]map[string]struct{}),
		socketOwner: make(map[string]string),
	}
}

// Register adds socketID to userID's socket set, creating the set if absent.
// It reports whether this is the user's first live socket (offline -> online
// edge). Registering the same pair twice is a no-op beyond set semantics.
func (r *SessionRegistry) Register(userID, socketID string) (cameOnline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.userSockets[userID]
	if !ok {
		set = make(map[string]struct{})
		r.userSockets[userID] = set
		cameOnline = true
	}
	set[socketID] = struct{}{}
	r.socketOwner[socketID] = userID
	return cameOnline
}

// Unregister removes the mapping for socketID. It returns the owning user and
// whether that user is now fully offline (no sockets left). Unregistering an
// unknown socket is a safe no-op: disconnect handlers can race with explicit
// logout flows, so this must tolerate being called twice.
func (r *SessionRegistry) Unregister(socketID string) (userID string, wentOffline bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.socketOwner[socketID]
	if !ok {
		return "", false, false
	}
	delete(r.socketOwner, socketID)

	set := r.userSockets[userID]
	delete(set, socketID)
	if len(set) == 0 {
		delete(r.userSockets, userID)
		wentOffline = true
	}
	return userID, wentOffline, true
}

// SocketsOf returns the current socket ids of a user, empty for unknown users.
func (r *SessionRegistry) SocketsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.userSockets[userID]
	sockets := make([]string, 0, len(set))
	for id := range set {
		sockets = append(sockets, id)
	}
	return sockets
}

// OwnerOf is the reverse lookup used during cleanup to find which user a
// disconnecting socket belonged to.
func (r *SessionRegistry) OwnerOf(socketID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.socketOwner[socketID]
	return userID, ok
}

// IsOnline reports whether the user has at least one live socket.
func (r *SessionRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.userSockets[userID]) > 0
}

// OnlineUsers returns every user id with at least one live socket.
func (r *SessionRegistry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.userSockets))
	for id := range r.userSockets {
		users = append(users, id)
	}
	return users
}
