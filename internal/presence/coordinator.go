package presence

import (
	"context"
	"errors"
	"log/slog"
)

// ErrRoomNotFound is returned when a join targets a room id with no metadata.
var ErrRoomNotFound = errors.New("room not found")

// Room visibility values carried by room metadata.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
	VisibilitySecret  = "secret"
)

// RoomMeta is the persisted metadata of a room. The coordinator only reads
// it, to validate joins and to decide which rooms appear in the public
// occupancy summary.
type RoomMeta struct {
	ID         string
	Name       string
	Visibility string
	CreatedBy  string
}

// RoomStore looks up persisted room metadata. GetRoom returns ErrRoomNotFound
// (possibly wrapped) for unknown rooms.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (*RoomMeta, error)
}

// UserDirectory resolves user ids to display info for membership broadcasts.
type UserDirectory interface {
	UsersByIDs(ctx context.Context, ids []string) ([]RoomUser, error)
}

// FriendLister supplies the friend ids to notify on online/offline edges.
type FriendLister interface {
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

// StatusMirror reflects online/offline edges into a shared store so other
// instances and the REST layer can read them. Best-effort.
type StatusMirror interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

// TransitionFeed publishes online/offline edges for downstream consumers.
// Best-effort, fire-and-forget.
type TransitionFeed interface {
	PublishTransition(ctx context.Context, userID string, online bool) error
}

// Coordinator sequences every presence transition. It is the only writer of
// the SessionRegistry and the RoomPresenceTable: handlers hand it events, it
// mutates the tables synchronously, and only then performs store lookups and
// broadcasts. A committed mutation is never rolled back because a downstream
// read failed.
type Coordinator struct {
	sessions *SessionRegistry
	rooms    *RoomPresenceTable

	store   RoomStore
	users   UserDirectory
	friends FriendLister

	gateway Gateway
	mirror  StatusMirror
	feed    TransitionFeed

	logger *slog.Logger
}

func NewCoordinator(store RoomStore, users UserDirectory, friends FriendLister, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		sessions: NewSessionRegistry(),
		rooms:    NewRoomPresenceTable(),
		store:    store,
		users:    users,
		friends:  friends,
		logger:   logger,
	}
}

// AttachGateway binds the broadcast fan-out. Set once at wiring time, before
// any connection is admitted; the transport needs the coordinator first, so
// this cannot be a constructor argument.
func (c *Coordinator) AttachGateway(g Gateway) { c.gateway = g }

// AttachStatusMirror enables the shared online-status mirror. Optional.
func (c *Coordinator) AttachStatusMirror(m StatusMirror) { c.mirror = m }

// AttachTransitionFeed enables the presence event feed. Optional.
func (c *Coordinator) AttachTransitionFeed(f TransitionFeed) { c.feed = f }

// Sessions exposes the registry for read-only use by the transport and the
// REST layer.
func (c *Coordinator) Sessions() *SessionRegistry { return c.sessions }

// Rooms exposes the presence table for read-only use by the transport's
// room-addressed fan-out.
func (c *Coordinator) Rooms() *RoomPresenceTable { return c.rooms }

// HandleConnect registers an admitted socket. If this is the user's first
// live socket, their friends are told they came online; additional sockets
// from the same user produce no friend notification.
func (c *Coordinator) HandleConnect(ctx context.Context, userID, socketID string) {
	cameOnline := c.sessions.Register(userID, socketID)
	c.logger.Info("socket registered", "socketID", socketID, "userID", userID, "cameOnline", cameOnline)

	if cameOnline {
		c.announceTransition(ctx, userID, true)
	}
}

// HandleJoinRoom admits a socket into a room. The room must exist in the
// metadata store; an unknown id produces an error event on the requesting
// socket and no state change.
func (c *Coordinator) HandleJoinRoom(ctx context.Context, socketID, userID, roomID string) error {
	if _, err := c.store.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			c.gateway.ToSocket(socketID, EventError, ErrorPayload{Message: "room not found"})
			return ErrRoomNotFound
		}
		c.gateway.ToSocket(socketID, EventError, ErrorPayload{Message: "room lookup failed"})
		return err
	}

	c.rooms.EnsureRoom(roomID)
	c.rooms.AddMember(roomID, userID, socketID)
	c.logger.Info("socket joined room", "socketID", socketID, "userID", userID, "roomID", roomID)

	c.broadcastRoomState(ctx, roomID)
	c.broadcastAllCounts(ctx)
	return nil
}

// HandleLeaveRoom removes one socket from a room. The user stays a member
// while any of their other sockets remains in the room; the room entry is
// deleted when its last user leaves. The global summary is pushed even when
// the room was deleted, so clients drop it from their view.
func (c *Coordinator) HandleLeaveRoom(ctx context.Context, socketID, userID, roomID string) {
	otherSockets := c.otherSocketsOf(userID, socketID)
	_, roomDeleted := c.rooms.RemoveMember(roomID, userID, socketID, otherSockets)
	c.logger.Info("socket left room", "socketID", socketID, "userID", userID, "roomID", roomID, "roomDeleted", roomDeleted)

	if c.rooms.Has(roomID) {
		c.broadcastRoomState(ctx, roomID)
	}
	c.broadcastAllCounts(ctx)
}

// HandleDisconnect performs reverse cleanup for a closing socket: it is
// removed from every room it was a member of, then unregistered. If it was
// the user's last socket, their friends are told they went offline — exactly
// once, however many rooms the socket was in. Calling this twice for the
// same socket is a safe no-op.
func (c *Coordinator) HandleDisconnect(ctx context.Context, socketID string) {
	userID, ok := c.sessions.OwnerOf(socketID)
	if !ok {
		// Duplicate disconnect signal, nothing to clean up.
		return
	}

	// All table mutations happen before any lookup or broadcast.
	otherSockets := c.otherSocketsOf(userID, socketID)
	affected := c.rooms.RoomsWithSocket(socketID)
	deleted := make(map[string]bool, len(affected))
	for _, roomID := range affected {
		_, roomDeleted := c.rooms.RemoveMember(roomID, userID, socketID, otherSockets)
		deleted[roomID] = roomDeleted
	}
	_, wentOffline, _ := c.sessions.Unregister(socketID)
	c.logger.Info("socket disconnected", "socketID", socketID, "userID", userID,
		"rooms", len(affected), "wentOffline", wentOffline)

	for _, roomID := range affected {
		if !deleted[roomID] {
			c.broadcastRoomState(ctx, roomID)
		}
	}
	if len(affected) > 0 {
		c.broadcastAllCounts(ctx)
	}
	if wentOffline {
		c.announceTransition(ctx, userID, false)
	}
}

// HandleGetRoomUsers answers a membership query with the enriched user list,
// addressed to the requesting socket only.
func (c *Coordinator) HandleGetRoomUsers(ctx context.Context, socketID, roomID string) {
	users, err := c.memberProfiles(ctx, roomID)
	if err != nil {
		c.logger.Error("membership lookup failed", "roomID", roomID, "error", err)
		c.gateway.ToSocket(socketID, EventError, ErrorPayload{Message: "failed to load room users"})
		return
	}
	c.gateway.ToSocket(socketID, EventRoomUsersUpdate, RoomUsersUpdatePayload{RoomID: roomID, Users: users})
}

// HandleGetRoomCounts answers a counts query by re-pushing the global
// occupancy summary to every client.
func (c *Coordinator) HandleGetRoomCounts(ctx context.Context) {
	c.broadcastAllCounts(ctx)
}

// HandleRemoteStatus forwards an online/offline edge announced by another
// instance to this instance's connected friends. No table mutation and no
// re-publish: the originating instance already mirrored the edge.
func (c *Coordinator) HandleRemoteStatus(ctx context.Context, userID string, online bool) {
	c.fanOutFriendStatus(ctx, userID, online)
}

func (c *Coordinator) otherSocketsOf(userID, socketID string) []string {
	all := c.sessions.SocketsOf(userID)
	others := all[:0]
	for _, id := range all {
		if id != socketID {
			others = append(others, id)
		}
	}
	return others
}

// broadcastRoomState pushes the room's occupancy to everyone and its
// enriched membership list to the room. The count needs no lookup and always
// goes out; a failed profile lookup suppresses only the membership update,
// which self-heals on the next state-changing event.
func (c *Coordinator) broadcastRoomState(ctx context.Context, roomID string) {
	c.gateway.ToAll(EventRoomUserCount, RoomUserCountPayload{
		RoomID: roomID,
		Count:  c.rooms.UserCount(roomID),
	})

	users, err := c.memberProfiles(ctx, roomID)
	if err != nil {
		c.logger.Error("membership lookup failed, skipping roomUsersUpdate", "roomID", roomID, "error", err)
		return
	}
	c.gateway.ToRoom(roomID, EventRoomUsersUpdate, RoomUsersUpdatePayload{RoomID: roomID, Users: users})
}

// broadcastAllCounts pushes the user-counts of every live public room to all
// clients. Rooms whose metadata cannot be read are omitted rather than
// failing the whole summary.
func (c *Coordinator) broadcastAllCounts(ctx context.Context) {
	counts := c.rooms.Counts()
	public := make(map[string]int, len(counts))
	for roomID, count := range counts {
		meta, err := c.store.GetRoom(ctx, roomID)
		if err != nil {
			c.logger.Warn("room metadata lookup failed, omitting from summary", "roomID", roomID, "error", err)
			continue
		}
		if meta.Visibility == VisibilityPublic {
			public[roomID] = count
		}
	}
	c.gateway.ToAll(EventAllRoomCounts, public)
}

func (c *Coordinator) memberProfiles(ctx context.Context, roomID string) ([]RoomUser, error) {
	ids := c.rooms.MemberUsers(roomID)
	if len(ids) == 0 {
		return []RoomUser{}, nil
	}
	return c.users.UsersByIDs(ctx, ids)
}

// announceTransition handles one offline<->online edge: mirror, feed, and
// friend fan-out. Every step is best-effort.
func (c *Coordinator) announceTransition(ctx context.Context, userID string, online bool) {
	if c.mirror != nil {
		var err error
		if online {
			err = c.mirror.SetUserOnline(ctx, userID)
		} else {
			err = c.mirror.SetUserOffline(ctx, userID)
		}
		if err != nil {
			c.logger.Error("status mirror update failed", "userID", userID, "online", online, "error", err)
		}
	}
	if c.feed != nil {
		if err := c.feed.PublishTransition(ctx, userID, online); err != nil {
			c.logger.Error("transition feed publish failed", "userID", userID, "online", online, "error", err)
		}
	}

	c.fanOutFriendStatus(ctx, userID, online)
}

func (c *Coordinator) fanOutFriendStatus(ctx context.Context, userID string, online bool) {
	friendIDs, err := c.friends.FriendIDs(ctx, userID)
	if err != nil {
		c.logger.Error("friend lookup failed, skipping status fan-out", "userID", userID, "error", err)
		return
	}
	payload := FriendStatusPayload{UserID: userID, IsOnline: online}
	for _, friendID := range friendIDs {
		c.gateway.ToUser(friendID, EventFriendStatus, payload)
	}
}
