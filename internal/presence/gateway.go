package presence

// Gateway is the fan-out primitive the coordinator broadcasts through. Four
// addressing modes: one socket, all sockets of one user, all sockets in a
// room, or every connected socket.
//
// Delivery is best-effort and fire-and-forget: implementations must never
// block on a slow recipient, and callers must not expect acknowledgement.
type Gateway interface {
	ToSocket(socketID string, event EventType, payload any)
	ToUser(userID string, event EventType, payload any)
	ToRoom(roomID string, event EventType, payload any)
	ToAll(event EventType, payload any)
}
