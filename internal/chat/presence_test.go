package chat

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginuineca/ArtistSync2/internal/user"
)

func newTestClient(u user.Public, buffer int) *Client {
	return &Client{send: make(chan []byte, buffer), UserID: u.ID, User: u, logger: testLogger()}
}

func TestPresenceRegisterReportsTransition(t *testing.T) {
	p := NewPresence()
	alice := user.Public{ID: uuid.New(), Username: "alice"}

	c1 := newTestClient(alice, 1)
	assert.True(t, p.Register(c1), "first connection is the offline -> online transition")

	c2 := newTestClient(alice, 1)
	assert.False(t, p.Register(c2), "a second connection is not a new transition")
	assert.True(t, p.IsOnline(alice.ID))
}

func TestPresenceNewConnectionSupersedesOld(t *testing.T) {
	p := NewPresence()
	alice := user.Public{ID: uuid.New(), Username: "alice"}

	c1 := newTestClient(alice, 1)
	c2 := newTestClient(alice, 1)
	p.Register(c1)
	p.Register(c2)

	got, ok := p.Get(alice.ID)
	require.True(t, ok)
	assert.Same(t, c2, got, "push delivery follows the newest connection")
}

func TestPresenceStaleUnregisterKeepsReplacementOnline(t *testing.T) {
	p := NewPresence()
	alice := user.Public{ID: uuid.New(), Username: "alice"}

	c1 := newTestClient(alice, 1)
	c2 := newTestClient(alice, 1)
	p.Register(c1)
	p.Register(c2)

	// The superseded connection's teardown must not knock the user offline.
	assert.False(t, p.Unregister(c1))
	assert.True(t, p.IsOnline(alice.ID))

	assert.True(t, p.Unregister(c2))
	assert.False(t, p.IsOnline(alice.ID))
}

func TestPresenceOnlineUsers(t *testing.T) {
	p := NewPresence()
	alice := user.Public{ID: uuid.New(), Username: "alice"}
	bob := user.Public{ID: uuid.New(), Username: "bob"}

	p.Register(newTestClient(alice, 1))
	p.Register(newTestClient(bob, 1))

	users := p.OnlineUsers()
	require.Len(t, users, 2)
	seen := map[uuid.UUID]bool{}
	for _, u := range users {
		seen[u.UserID] = true
	}
	assert.True(t, seen[alice.ID])
	assert.True(t, seen[bob.ID])
}
