package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	mode    string // "socket", "user", "room", "all"
	target  string
	event   EventType
	payload any
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (g *fakeGateway) ToSocket(socketID string, event EventType, payload any) {
	g.record(sentEvent{mode: "socket", target: socketID, event: event, payload: payload})
}

func (g *fakeGateway) ToUser(userID string, event EventType, payload any) {
	g.record(sentEvent{mode: "user", target: userID, event: event, payload: payload})
}

func (g *fakeGateway) ToRoom(roomID string, event EventType, payload any) {
	g.record(sentEvent{mode: "room", target: roomID, event: event, payload: payload})
}

func (g *fakeGateway) ToAll(event EventType, payload any) {
	g.record(sentEvent{mode: "all", event: event, payload: payload})
}

func (g *fakeGateway) record(evt sentEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, evt)
}

func (g *fakeGateway) byEvent(event EventType) []sentEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentEvent
	for _, evt := range g.sent {
		if evt.event == event {
			out = append(out, evt)
		}
	}
	return out
}

func (g *fakeGateway) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = nil
}

type fakeRoomStore struct {
	rooms map[string]*RoomMeta
	err   error
}

func (s *fakeRoomStore) GetRoom(_ context.Context, roomID string) (*RoomMeta, error) {
	if s.err != nil {
		return nil, s.err
	}
	meta, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrRoomNotFound)
	}
	return meta, nil
}

type fakeDirectory struct {
	err error
}

func (d *fakeDirectory) UsersByIDs(_ context.Context, ids []string) ([]RoomUser, error) {
	if d.err != nil {
		return nil, d.err
	}
	users := make([]RoomUser, 0, len(ids))
	for _, id := range ids {
		users = append(users, RoomUser{ID: id, Username: "user-" + id})
	}
	return users, nil
}

type fakeFriends struct {
	friends map[string][]string
	err     error
}

func (f *fakeFriends) FriendIDs(_ context.Context, userID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.friends[userID], nil
}

type recordingMirror struct {
	online  []string
	offline []string
}

func (m *recordingMirror) SetUserOnline(_ context.Context, userID string) error {
	m.online = append(m.online, userID)
	return nil
}

func (m *recordingMirror) SetUserOffline(_ context.Context, userID string) error {
	m.offline = append(m.offline, userID)
	return nil
}

type fixture struct {
	coord   *Coordinator
	gateway *fakeGateway
	store   *fakeRoomStore
	dir     *fakeDirectory
	friends *fakeFriends
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &fakeRoomStore{rooms: map[string]*RoomMeta{
		"r1": {ID: "r1", Name: "general", Visibility: VisibilityPublic},
		"r2": {ID: "r2", Name: "random", Visibility: VisibilityPublic},
		"rp": {ID: "rp", Name: "staff", Visibility: VisibilityPrivate},
	}}
	dir := &fakeDirectory{}
	friends := &fakeFriends{friends: map[string][]string{}}
	gateway := &fakeGateway{}

	coord := NewCoordinator(store, dir, friends, slog.Default())
	coord.AttachGateway(gateway)
	return &fixture{coord: coord, gateway: gateway, store: store, dir: dir, friends: friends}
}

func TestJoinUnknownRoomLeavesNoState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coord.HandleConnect(ctx, "alice", "s1")
	f.gateway.reset()

	err := f.coord.HandleJoinRoom(ctx, "s1", "alice", "nope")
	require.ErrorIs(t, err, ErrRoomNotFound)

	assert.False(t, f.coord.Rooms().Has("nope"))
	require.Len(t, f.gateway.sent, 1)
	assert.Equal(t, "socket", f.gateway.sent[0].mode)
	assert.Equal(t, "s1", f.gateway.sent[0].target)
	assert.Equal(t, EventError, f.gateway.sent[0].event)
}

func TestJoinBroadcastsCountAndMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coord.HandleConnect(ctx, "alice", "s1")
	f.gateway.reset()

	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s1", "alice", "r1"))

	counts := f.gateway.byEvent(EventRoomUserCount)
	require.Len(t, counts, 1)
	assert.Equal(t, "all", counts[0].mode)
	assert.Equal(t, RoomUserCountPayload{RoomID: "r1", Count: 1}, counts[0].payload)

	updates := f.gateway.byEvent(EventRoomUsersUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "room", updates[0].mode)
	assert.Equal(t, "r1", updates[0].target)

	summaries := f.gateway.byEvent(EventAllRoomCounts)
	require.Len(t, summaries, 1)
	assert.Equal(t, map[string]int{"r1": 1}, summaries[0].payload)
}

func TestMultiTabOccupancy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coord.HandleConnect(ctx, "alice", "s1")
	f.coord.HandleConnect(ctx, "alice", "s2")

	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s1", "alice", "r1"))
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s2", "alice", "r1"))

	// Two sockets, one member.
	assert.Equal(t, []string{"alice"}, f.coord.Rooms().MemberUsers("r1"))
	assert.Equal(t, 1, f.coord.Rooms().UserCount("r1"))
	assert.Len(t, f.coord.Rooms().SocketIDsInRoom("r1"), 2)

	// Losing one socket keeps the membership intact.
	f.coord.HandleLeaveRoom(ctx, "s1", "alice", "r1")
	assert.Equal(t, []string{"alice"}, f.coord.Rooms().MemberUsers("r1"))

	// Losing the last one deletes the room entry outright.
	f.coord.HandleLeaveRoom(ctx, "s2", "alice", "r1")
	assert.False(t, f.coord.Rooms().Has("r1"))
}

func TestLeaveDeletedRoomStillPushesSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coord.HandleConnect(ctx, "alice", "s1")
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s1", "alice", "r1"))
	f.gateway.reset()

	f.coord.HandleLeaveRoom(ctx, "s1", "alice", "r1")

	// No per-room broadcasts for a deleted room, but clients must still see
	// it vanish from the global summary.
	assert.Empty(t, f.gateway.byEvent(EventRoomUserCount))
	assert.Empty(t, f.gateway.byEvent(EventRoomUsersUpdate))
	summaries := f.gateway.byEvent(EventAllRoomCounts)
	require.Len(t, summaries, 1)
	assert.Equal(t, map[string]int{}, summaries[0].payload)
}

func TestDisconnectCleansAllRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coord.HandleConnect(ctx, "alice", "s1")
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s1", "alice", "r1"))
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s1", "alice", "r2"))

	f.coord.HandleDisconnect(ctx, "s1")

	assert.False(t, f.coord.Rooms().Has("r1"))
	assert.False(t, f.coord.Rooms().Has("r2"))
	assert.False(t, f.coord.Sessions().IsOnline("alice"))
}

func TestDisconnectKeepsUserWithRemainingTab(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coord.HandleConnect(ctx, "alice", "s1")
	f.coord.HandleConnect(ctx, "alice", "s2")
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s1", "alice", "r1"))
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s2", "alice", "r1"))

	f.coord.HandleDisconnect(ctx, "s1")

	assert.Equal(t, []string{"alice"}, f.coord.Rooms().MemberUsers("r1"))
	assert.True(t, f.coord.Sessions().IsOnline("alice"))

	f.coord.HandleDisconnect(ctx, "s2")
	assert.False(t, f.coord.Rooms().Has("r1"))
	assert.False(t, f.coord.Sessions().IsOnline("alice"))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.friends.friends["alice"] = []string{"bob"}
	f.coord.HandleConnect(ctx, "alice", "s1")
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s1", "alice", "r1"))

	f.coord.HandleDisconnect(ctx, "s1")
	f.gateway.reset()
	f.coord.HandleDisconnect(ctx, "s1")

	// Second call sees nothing to clean up and emits nothing.
	assert.Empty(t, f.gateway.sent)
	assert.False(t, f.coord.Rooms().Has("r1"))
}

func TestFriendStatusFiresOncePerEdge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.friends.friends["alice"] = []string{"bob", "carol"}

	f.coord.HandleConnect(ctx, "alice", "s1")
	online := f.gateway.byEvent(EventFriendStatus)
	require.Len(t, online, 2)
	assert.Equal(t, FriendStatusPayload{UserID: "alice", IsOnline: true}, online[0].payload)

	// Second and third tabs do not re-announce.
	f.coord.HandleConnect(ctx, "alice", "s2")
	f.coord.HandleConnect(ctx, "alice", "s3")
	assert.Len(t, f.gateway.byEvent(EventFriendStatus), 2)

	// Disconnects 1..N-1 stay silent; only the last produces the offline edge.
	f.coord.HandleDisconnect(ctx, "s1")
	f.coord.HandleDisconnect(ctx, "s2")
	assert.Len(t, f.gateway.byEvent(EventFriendStatus), 2)

	f.coord.HandleDisconnect(ctx, "s3")
	all := f.gateway.byEvent(EventFriendStatus)
	require.Len(t, all, 4)
	assert.Equal(t, FriendStatusPayload{UserID: "alice", IsOnline: false}, all[2].payload)
	assert.Equal(t, "bob", all[2].target)
	assert.Equal(t, "carol", all[3].target)
}

func TestRemoteStatusFansOutWithoutMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.friends.friends["zoe"] = []string{"bob"}
	mirror := &recordingMirror{}
	f.coord.AttachStatusMirror(mirror)

	f.coord.HandleRemoteStatus(ctx, "zoe", true)

	statuses := f.gateway.byEvent(EventFriendStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, "bob", statuses[0].target)
	assert.Equal(t, FriendStatusPayload{UserID: "zoe", IsOnline: true}, statuses[0].payload)

	// zoe is connected to another instance, not this one.
	assert.False(t, f.coord.Sessions().IsOnline("zoe"))
	assert.Empty(t, mirror.online, "remote edges must not be re-mirrored")
}

func TestStatusMirrorTracksEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mirror := &recordingMirror{}
	f.coord.AttachStatusMirror(mirror)

	f.coord.HandleConnect(ctx, "alice", "s1")
	f.coord.HandleConnect(ctx, "alice", "s2")
	f.coord.HandleDisconnect(ctx, "s1")
	f.coord.HandleDisconnect(ctx, "s2")

	assert.Equal(t, []string{"alice"}, mirror.online)
	assert.Equal(t, []string{"alice"}, mirror.offline)
}

func TestEnrichmentFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coord.HandleConnect(ctx, "alice", "s1")
	f.dir.err = errors.New("store down")
	f.gateway.reset()

	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s1", "alice", "r1"))

	// The join committed and the lookup-free count went out; only the
	// membership list is missing until the next state change.
	assert.True(t, f.coord.Rooms().Has("r1"))
	assert.Len(t, f.gateway.byEvent(EventRoomUserCount), 1)
	assert.Empty(t, f.gateway.byEvent(EventRoomUsersUpdate))

	f.dir.err = nil
	f.coord.HandleConnect(ctx, "bob", "s2")
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s2", "bob", "r1"))
	assert.Len(t, f.gateway.byEvent(EventRoomUsersUpdate), 1)
}

func TestAllRoomCountsOnlyPublicRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coord.HandleConnect(ctx, "alice", "s1")
	f.coord.HandleConnect(ctx, "bob", "s2")
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s1", "alice", "r1"))
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s2", "bob", "rp"))
	f.gateway.reset()

	f.coord.HandleGetRoomCounts(ctx)

	summaries := f.gateway.byEvent(EventAllRoomCounts)
	require.Len(t, summaries, 1)
	assert.Equal(t, map[string]int{"r1": 1}, summaries[0].payload)
}

func TestGetRoomUsersAnswersRequestingSocket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coord.HandleConnect(ctx, "alice", "s1")
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s1", "alice", "r1"))
	f.gateway.reset()

	f.coord.HandleGetRoomUsers(ctx, "s1", "r1")

	require.Len(t, f.gateway.sent, 1)
	evt := f.gateway.sent[0]
	assert.Equal(t, "socket", evt.mode)
	assert.Equal(t, "s1", evt.target)
	assert.Equal(t, EventRoomUsersUpdate, evt.event)
	payload := evt.payload.(RoomUsersUpdatePayload)
	require.Len(t, payload.Users, 1)
	assert.Equal(t, "alice", payload.Users[0].ID)
}

// Full walkthrough of the single-user multi-tab lifecycle.
func TestMultiTabLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.friends.friends["x"] = []string{"y"}

	f.coord.HandleConnect(ctx, "x", "s1")
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s1", "x", "r1"))
	assert.Equal(t, []string{"x"}, f.coord.Rooms().MemberUsers("r1"))
	counts := f.gateway.byEvent(EventRoomUserCount)
	require.Len(t, counts, 1)
	assert.Equal(t, RoomUserCountPayload{RoomID: "r1", Count: 1}, counts[0].payload)

	f.coord.HandleConnect(ctx, "x", "s2")
	require.NoError(t, f.coord.HandleJoinRoom(ctx, "s2", "x", "r1"))
	assert.Equal(t, []string{"x"}, f.coord.Rooms().MemberUsers("r1"))
	counts = f.gateway.byEvent(EventRoomUserCount)
	require.Len(t, counts, 2)
	assert.Equal(t, RoomUserCountPayload{RoomID: "r1", Count: 1}, counts[1].payload)

	f.coord.HandleDisconnect(ctx, "s1")
	assert.Equal(t, []string{"x"}, f.coord.Rooms().MemberUsers("r1"))
	assert.Len(t, f.gateway.byEvent(EventFriendStatus), 1) // online edge only

	f.coord.HandleDisconnect(ctx, "s2")
	assert.False(t, f.coord.Rooms().Has("r1"))
	statuses := f.gateway.byEvent(EventFriendStatus)
	require.Len(t, statuses, 2)
	assert.Equal(t, FriendStatusPayload{UserID: "x", IsOnline: false}, statuses[1].payload)
}
