package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const relayChannel = "artistsync:relay"

// Hub owns the room registry: conversation id -> set of subscribed live
// connections. Rooms exist only for fan-out and are distinct from the durable
// participant roster. When a redis client is configured the hub also relays
// every cast to sibling processes and applies theirs locally, so a user
// connected to another instance still receives room and personal events.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[uuid.UUID]map[*Client]struct{}
	presence *Presence

	rdb        *redis.Client
	instanceID string
	logger     *slog.Logger
}

func NewHub(presence *Presence, rdb *redis.Client, logger *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]struct{}),
		presence:   presence,
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

func (h *Hub) Presence() *Presence { return h.presence }

func (h *Hub) IsOnline(userID uuid.UUID) bool { return h.presence.IsOnline(userID) }

// Register makes the client reachable for personal pushes and, on the
// offline -> online transition, announces the user to everyone else.
func (h *Hub) Register(c *Client) {
	if h.presence.Register(c) {
		h.BroadcastAll(c.UserID, encodeEvent(EvUserOnline, presenceEvent{UserID: c.UserID, User: &c.User}))
	}
}

// Unregister drops the client from every room and, if it was still the
// user's registered handle, announces the user offline. Must run on every
// disconnect path; the read pump's deferred cleanup guarantees it.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var left []uuid.UUID
	for convID, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, convID)
			}
			left = append(left, convID)
		}
	}
	h.mu.Unlock()

	for _, convID := range left {
		h.RoomCast(convID, c.UserID, encodeEvent(EvUserLeft, roomEvent{ConversationID: convID, UserID: c.UserID}))
	}

	if h.presence.Unregister(c) {
		h.BroadcastAll(c.UserID, encodeEvent(EvUserOffline, presenceEvent{UserID: c.UserID}))
	}
}

func (h *Hub) JoinRoom(c *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[conversationID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[conversationID] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) LeaveRoom(c *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// ActiveMembers lists the users currently subscribed to the room on this
// instance.
func (h *Hub) ActiveMembers(conversationID uuid.UUID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[conversationID]
	out := make([]uuid.UUID, 0, len(members))
	for c := range members {
		out = append(out, c.UserID)
	}
	return out
}

// RoomCast delivers payload to every room subscriber except excludeUser.
// Delivery is best effort: a slow consumer's frame is dropped, never
// buffered unboundedly, and a drop never fails the caller.
func (h *Hub) RoomCast(conversationID, excludeUser uuid.UUID, payload []byte) {
	h.localRoomCast(conversationID, excludeUser, payload)
	h.relay("room", conversationID, excludeUser, payload)
}

func (h *Hub) localRoomCast(conversationID, excludeUser uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		if c.UserID == excludeUser {
			continue
		}
		h.deliver(c, payload)
	}
}

// UserCast delivers payload on the user's personal channel, if they are
// connected anywhere.
func (h *Hub) UserCast(userID uuid.UUID, payload []byte) {
	h.localUserCast(userID, payload)
	h.relay("user", userID, uuid.Nil, payload)
}

func (h *Hub) localUserCast(userID uuid.UUID, payload []byte) {
	if c, ok := h.presence.Get(userID); ok {
		h.deliver(c, payload)
	}
}

// PushEvent is the personal-channel entry point used by the notification
// bridge.
func (h *Hub) PushEvent(userID uuid.UUID, event string, data any) {
	h.UserCast(userID, encodeEvent(event, data))
}

// BroadcastAll delivers payload to every connected user except excludeUser.
func (h *Hub) BroadcastAll(excludeUser uuid.UUID, payload []byte) {
	h.localBroadcast(excludeUser, payload)
	h.relay("all", uuid.Nil, excludeUser, payload)
}

func (h *Hub) localBroadcast(excludeUser uuid.UUID, payload []byte) {
	h.presence.each(func(c *Client) {
		if c.UserID == excludeUser {
			return
		}
		h.deliver(c, payload)
	})
}

func (h *Hub) deliver(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		// Buffer full: the consumer is too slow, drop the frame. Durable
		// state is recovered on its next fetch.
		h.logger.Warn("dropping frame for slow consumer", "user", c.UserID)
	}
}

type relayFrame struct {
	Origin  string          `json:"origin"`
	Scope   string          `json:"scope"`
	Target  uuid.UUID       `json:"target"`
	Exclude uuid.UUID       `json:"exclude"`
	Payload json.RawMessage `json:"payload"`
}

func (h *Hub) relay(scope string, target, exclude uuid.UUID, payload []byte) {
	if h.rdb == nil {
		return
	}
	frame, err := json.Marshal(relayFrame{
		Origin:  h.instanceID,
		Scope:   scope,
		Target:  target,
		Exclude: exclude,
		Payload: payload,
	})
	if err != nil {
		return
	}
	if err := h.rdb.Publish(context.Background(), relayChannel, frame).Err(); err != nil {
		h.logger.Warn("relay publish failed", "err", err)
	}
}

// RunRelay applies casts published by sibling instances. Frames we published
// ourselves are skipped; local delivery already happened synchronously.
func (h *Hub) RunRelay(ctx context.Context) {
	if h.rdb == nil {
		return
	}
	pubsub := h.rdb.Subscribe(ctx, relayChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame relayFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				h.logger.Warn("malformed relay frame", "err", err)
				continue
			}
			if frame.Origin == h.instanceID {
				continue
			}
			switch frame.Scope {
			case "room":
				h.localRoomCast(frame.Target, frame.Exclude, frame.Payload)
			case "user":
				h.localUserCast(frame.Target, frame.Payload)
			case "all":
				h.localBroadcast(frame.Exclude, frame.Payload)
			}
		}
	}
}
