package chat

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginuineca/ArtistSync2/internal/user"
)

func newTestHub() *Hub {
	return NewHub(NewPresence(), nil, testLogger())
}

func TestRoomCastExcludesUser(t *testing.T) {
	h := newTestHub()
	convID := uuid.New()

	alice := newTestClient(user.Public{ID: uuid.New(), Username: "alice"}, 4)
	bob := newTestClient(user.Public{ID: uuid.New(), Username: "bob"}, 4)
	h.JoinRoom(alice, convID)
	h.JoinRoom(bob, convID)

	h.RoomCast(convID, alice.UserID, []byte(`{"event":"x"}`))

	assert.Len(t, bob.send, 1)
	assert.Len(t, alice.send, 0, "the excluded user receives nothing")
}

func TestRoomCastOnlyReachesSubscribers(t *testing.T) {
	h := newTestHub()
	convID := uuid.New()

	alice := newTestClient(user.Public{ID: uuid.New(), Username: "alice"}, 4)
	carol := newTestClient(user.Public{ID: uuid.New(), Username: "carol"}, 4)
	h.JoinRoom(alice, convID)

	h.RoomCast(convID, uuid.Nil, []byte(`{"event":"x"}`))

	assert.Len(t, alice.send, 1)
	assert.Len(t, carol.send, 0, "users outside the room receive nothing")
}

func TestUserCastFollowsPresence(t *testing.T) {
	h := newTestHub()
	alice := newTestClient(user.Public{ID: uuid.New(), Username: "alice"}, 4)

	h.UserCast(alice.UserID, []byte(`{"event":"x"}`))
	assert.Len(t, alice.send, 0, "offline users are skipped")

	h.Register(alice)
	h.UserCast(alice.UserID, []byte(`{"event":"x"}`))
	assert.Len(t, alice.send, 1)
}

func TestBroadcastAllExcludesOrigin(t *testing.T) {
	h := newTestHub()
	alice := newTestClient(user.Public{ID: uuid.New(), Username: "alice"}, 4)
	bob := newTestClient(user.Public{ID: uuid.New(), Username: "bob"}, 4)
	h.Register(alice)
	drain(alice.send)
	h.Register(bob)
	drain(alice.send)
	drain(bob.send)

	h.BroadcastAll(alice.UserID, []byte(`{"event":"x"}`))
	assert.Len(t, alice.send, 0)
	assert.Len(t, bob.send, 1)
}

func TestRegisterAnnouncesOnlineOnce(t *testing.T) {
	h := newTestHub()
	alice := newTestClient(user.Public{ID: uuid.New(), Username: "alice"}, 4)
	bob := newTestClient(user.Public{ID: uuid.New(), Username: "bob"}, 4)
	h.Register(bob)

	h.Register(alice)
	env := nextEvent(t, bob.send)
	assert.Equal(t, EvUserOnline, env.Event)

	// A second connection from the same user is not announced again.
	h.Register(newTestClient(alice.User, 4))
	assert.Len(t, bob.send, 0)
}

func TestUnregisterAnnouncesRoomDepartureAndOffline(t *testing.T) {
	h := newTestHub()
	convID := uuid.New()
	alice := newTestClient(user.Public{ID: uuid.New(), Username: "alice"}, 4)
	bob := newTestClient(user.Public{ID: uuid.New(), Username: "bob"}, 8)
	h.Register(alice)
	h.Register(bob)
	h.JoinRoom(alice, convID)
	h.JoinRoom(bob, convID)
	drain(bob.send)

	h.Unregister(alice)

	var events []string
	for len(bob.send) > 0 {
		var env Envelope
		require.NoError(t, json.Unmarshal(<-bob.send, &env))
		events = append(events, env.Event)
	}
	assert.Contains(t, events, EvUserLeft)
	assert.Contains(t, events, EvUserOffline)
	assert.Equal(t, []uuid.UUID{bob.UserID}, h.ActiveMembers(convID))
}

func TestActiveMembers(t *testing.T) {
	h := newTestHub()
	convID := uuid.New()
	alice := newTestClient(user.Public{ID: uuid.New(), Username: "alice"}, 4)
	bob := newTestClient(user.Public{ID: uuid.New(), Username: "bob"}, 4)

	h.JoinRoom(alice, convID)
	h.JoinRoom(bob, convID)
	assert.ElementsMatch(t, []uuid.UUID{alice.UserID, bob.UserID}, h.ActiveMembers(convID))

	h.LeaveRoom(alice, convID)
	assert.ElementsMatch(t, []uuid.UUID{bob.UserID}, h.ActiveMembers(convID))
}

func TestSlowConsumerFramesAreDropped(t *testing.T) {
	h := newTestHub()
	convID := uuid.New()
	slow := newTestClient(user.Public{ID: uuid.New(), Username: "slow"}, 1)
	h.JoinRoom(slow, convID)

	// Second frame overflows the buffer; the cast must not block or fail.
	h.RoomCast(convID, uuid.Nil, []byte(`{"event":"first"}`))
	h.RoomCast(convID, uuid.Nil, []byte(`{"event":"second"}`))

	require.Len(t, slow.send, 1)
	var env Envelope
	require.NoError(t, json.Unmarshal(<-slow.send, &env))
	assert.Equal(t, "first", env.Event)
}
