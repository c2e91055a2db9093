package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ginuineca/ArtistSync2/internal/user"
)

// Presence is the process-wide map of connected user -> live connection.
// At most one handle per user: a second connection from the same user
// supersedes the first for push purposes. Entries are transient; a process
// restart empties the registry.
type Presence struct {
	mu     sync.RWMutex
	online map[uuid.UUID]*presenceEntry
}

type presenceEntry struct {
	client      *Client
	user        user.Public
	connectedAt time.Time
}

type OnlineUser struct {
	UserID uuid.UUID   `json:"userId"`
	User   user.Public `json:"user"`
}

func NewPresence() *Presence {
	return &Presence{online: make(map[uuid.UUID]*presenceEntry)}
}

// Register records the client as its user's live handle, overwriting any
// prior handle. It reports whether the user transitioned offline -> online,
// so the caller broadcasts at most one "online" event per user.
func (p *Presence) Register(c *Client) (cameOnline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, wasOnline := p.online[c.UserID]
	p.online[c.UserID] = &presenceEntry{client: c, user: c.User, connectedAt: time.Now()}
	return !wasOnline
}

// Unregister removes the mapping, but only if c is still the registered
// handle; a connection superseded by a newer one must not knock its
// replacement offline. Reports whether the user went offline.
func (p *Presence) Unregister(c *Client) (wentOffline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.online[c.UserID]
	if !ok || e.client != c {
		return false
	}
	delete(p.online, c.UserID)
	return true
}

func (p *Presence) IsOnline(userID uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

func (p *Presence) Get(userID uuid.UUID) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.online[userID]
	if !ok {
		return nil, false
	}
	return e.client, true
}

func (p *Presence) OnlineUsers() []OnlineUser {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]OnlineUser, 0, len(p.online))
	for id, e := range p.online {
		out = append(out, OnlineUser{UserID: id, User: e.user})
	}
	return out
}

// each calls fn for every live client. fn must not block.
func (p *Presence) each(fn func(*Client)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.online {
		fn(e.client)
	}
}
