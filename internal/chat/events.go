package chat

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ginuineca/ArtistSync2/internal/user"
)

// Wire envelope, both directions: {"event": "...", "data": {...}}.

// Client -> server events.
const (
	EvConversationJoin  = "conversation:join"
	EvConversationLeave = "conversation:leave"
	EvMessageSend       = "message:send"
	EvMessagesMarkRead  = "messages:mark_read"
	EvMessageTyping     = "message:typing"
	EvMessageStopTyping = "message:stop_typing"
	EvGetOnlineUsers    = "get:online_users"
)

// Server -> client events.
const (
	EvUserOnline          = "user:online"
	EvUserOffline         = "user:offline"
	EvOnlineUsersList     = "online_users:list"
	EvUserJoined          = "user:joined_conversation"
	EvUserLeft            = "user:left_conversation"
	EvActiveUsers         = "conversation:active_users"
	EvMessageNew          = "message:new"
	EvMessageUpdated      = "message:updated"
	EvMessageDeleted      = "message:deleted"
	EvUnreadCount         = "notification:unread_count"
	EvMessagesRead        = "messages:read"
	EvMessagesReadByOther = "messages:read_by_other"
	EvUserTyping          = "user:typing"
	EvUserStopTyping      = "user:stop_typing"
	EvError               = "error"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// encodeEvent builds an outbound frame. Payloads are our own types, so a
// marshal failure is a programming error; it yields an empty frame rather
// than a panic in the fan-out path.
func encodeEvent(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("{}")
	}
	out, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return out
}

type joinPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

type sendPayload struct {
	ConversationID uuid.UUID  `json:"conversationId"`
	Content        string     `json:"content"`
	ReplyTo        *uuid.UUID `json:"replyTo,omitempty"`
}

type presenceEvent struct {
	UserID uuid.UUID    `json:"userId"`
	User   *user.Public `json:"user,omitempty"`
}

type roomEvent struct {
	ConversationID uuid.UUID    `json:"conversationId"`
	UserID         uuid.UUID    `json:"userId"`
	User           *user.Public `json:"user,omitempty"`
}

type activeUsersEvent struct {
	ConversationID uuid.UUID   `json:"conversationId"`
	ActiveUsers    []uuid.UUID `json:"activeUsers"`
}

type messageNewEvent struct {
	Message        *Message  `json:"message"`
	ConversationID uuid.UUID `json:"conversationId"`
}

type messageDeletedEvent struct {
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
}

type unreadCountEvent struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UnreadCount    int       `json:"unreadCount"`
}

type messagesReadEvent struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

type readByOtherEvent struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
}

type errorEvent struct {
	Message string `json:"message"`
}
