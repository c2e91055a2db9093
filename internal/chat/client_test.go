package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dispatch tests drive the inbound frame path without a real websocket; the
// send channel stands in for the peer.

func newDispatchFixture(t *testing.T) (*engineFixture, *Client, *Client) {
	t.Helper()
	f := newEngineFixture(t)

	alice := &Client{hub: f.hub, engine: f.engine, send: make(chan []byte, 16), UserID: f.alice.ID, User: f.alice, logger: testLogger()}
	bob := &Client{hub: f.hub, engine: f.engine, send: make(chan []byte, 16), UserID: f.bob.ID, User: f.bob, logger: testLogger()}
	f.hub.Register(alice)
	f.hub.Register(bob)
	drain(alice.send)
	drain(bob.send)
	return f, alice, bob
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	return out
}

func TestDispatchJoinAndSend(t *testing.T) {
	f, alice, bob := newDispatchFixture(t)
	conv := f.direct(t, f.alice, f.bob)

	alice.dispatch(frame(t, EvConversationJoin, joinPayload{ConversationID: conv.ID}))
	bob.dispatch(frame(t, EvConversationJoin, joinPayload{ConversationID: conv.ID}))

	env := nextEvent(t, alice.send)
	assert.Equal(t, EvActiveUsers, env.Event, "joining replies with the active member list")
	drain(alice.send)
	drain(bob.send)

	alice.dispatch(frame(t, EvMessageSend, sendPayload{ConversationID: conv.ID, Content: "hello"}))

	// Bob is in the room, so he receives the new message.
	var events []string
	for len(bob.send) > 0 {
		var env Envelope
		require.NoError(t, json.Unmarshal(<-bob.send, &env))
		events = append(events, env.Event)
	}
	assert.Contains(t, events, EvMessageNew)
	assert.Contains(t, events, EvUnreadCount)

	msgs, total, err := f.msgs.ListPage(context.Background(), conv.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestDispatchJoinForbidden(t *testing.T) {
	f, alice, _ := newDispatchFixture(t)
	conv := f.direct(t, f.bob, f.carol)

	alice.dispatch(frame(t, EvConversationJoin, joinPayload{ConversationID: conv.ID}))

	env := nextEvent(t, alice.send)
	assert.Equal(t, EvError, env.Event)
}

func TestDispatchMalformedFrame(t *testing.T) {
	_, alice, _ := newDispatchFixture(t)

	alice.dispatch([]byte(`{not json`))
	env := nextEvent(t, alice.send)
	assert.Equal(t, EvError, env.Event)
}

func TestDispatchUnknownEvent(t *testing.T) {
	_, alice, _ := newDispatchFixture(t)

	alice.dispatch(frame(t, "bogus:event", struct{}{}))
	env := nextEvent(t, alice.send)
	assert.Equal(t, EvError, env.Event)
}

func TestDispatchTypingReachesRoomOnly(t *testing.T) {
	f, alice, bob := newDispatchFixture(t)
	conv := f.direct(t, f.alice, f.bob)

	alice.dispatch(frame(t, EvConversationJoin, joinPayload{ConversationID: conv.ID}))
	bob.dispatch(frame(t, EvConversationJoin, joinPayload{ConversationID: conv.ID}))
	drain(alice.send)
	drain(bob.send)

	alice.dispatch(frame(t, EvMessageTyping, joinPayload{ConversationID: conv.ID}))

	env := nextEvent(t, bob.send)
	assert.Equal(t, EvUserTyping, env.Event)
	assert.Len(t, alice.send, 0, "typing is never echoed to its author")
}

func TestDispatchOnlineUsers(t *testing.T) {
	_, alice, _ := newDispatchFixture(t)

	alice.dispatch(frame(t, EvGetOnlineUsers, struct{}{}))

	env := nextEvent(t, alice.send)
	require.Equal(t, EvOnlineUsersList, env.Event)

	var users []OnlineUser
	require.NoError(t, json.Unmarshal(env.Data, &users))
	assert.Len(t, users, 2)
}

func TestDispatchMarkRead(t *testing.T) {
	f, alice, bob := newDispatchFixture(t)
	conv := f.direct(t, f.alice, f.bob)

	_, err := f.engine.Send(context.Background(), f.alice, conv.ID, "unread", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, f.convs.unreadOf(conv.ID, f.bob.ID))
	drain(alice.send)
	drain(bob.send)

	bob.dispatch(frame(t, EvMessagesMarkRead, joinPayload{ConversationID: conv.ID}))

	assert.Equal(t, 0, f.convs.unreadOf(conv.ID, f.bob.ID))
	env := nextEvent(t, bob.send)
	assert.Equal(t, EvMessagesRead, env.Event)

	env = nextEvent(t, alice.send)
	assert.Equal(t, EvMessagesReadByOther, env.Event)

	var payload readByOtherEvent
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, conv.ID, payload.ConversationID)
	assert.Equal(t, f.bob.ID, payload.UserID)
}

func TestPreviewTruncation(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, previewOf(short))

	long := make([]rune, 150)
	for i := range long {
		long[i] = 'é'
	}
	got := previewOf(string(long))
	runes := []rune(got)
	assert.Len(t, runes, 101, "100 runes plus the ellipsis")
	assert.Equal(t, '…', runes[100])
}

func TestDispatchLeave(t *testing.T) {
	f, alice, bob := newDispatchFixture(t)
	conv := f.direct(t, f.alice, f.bob)

	alice.dispatch(frame(t, EvConversationJoin, joinPayload{ConversationID: conv.ID}))
	bob.dispatch(frame(t, EvConversationJoin, joinPayload{ConversationID: conv.ID}))
	drain(alice.send)
	drain(bob.send)

	alice.dispatch(frame(t, EvConversationLeave, joinPayload{ConversationID: conv.ID}))

	env := nextEvent(t, bob.send)
	assert.Equal(t, EvUserLeft, env.Event)
	assert.ElementsMatch(t, []uuid.UUID{bob.UserID}, f.hub.ActiveMembers(conv.ID))
}
