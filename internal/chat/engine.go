package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ginuineca/ArtistSync2/internal/apperr"
	"github.com/ginuineca/ArtistSync2/internal/user"
)

// MessageNotifier is the bridge to durable notifications. Calls are best
// effort; the engine never fails a send because a notification could not be
// recorded or pushed.
type MessageNotifier interface {
	NewMessage(ctx context.Context, sender user.Public, recipient, conversationID uuid.UUID, preview string)
}

// Engine is the delivery/fan-out core: it accepts a command from one caller,
// persists its effect through the stores, then fans events out to every
// interested live connection. Persistence order is canonical; broadcast
// happens strictly after persistence and its failure never rolls anything
// back.
type Engine struct {
	convs    ConversationStore
	msgs     MessageStore
	hub      *Hub
	notifier MessageNotifier
	logger   *slog.Logger

	now func() time.Time
}

func NewEngine(convs ConversationStore, msgs MessageStore, hub *Hub, notifier MessageNotifier, logger *slog.Logger) *Engine {
	return &Engine{
		convs:    convs,
		msgs:     msgs,
		hub:      hub,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Join subscribes a live connection to a conversation's room. The join
// notification to other members is best effort and carries no ordering
// guarantee relative to message delivery.
func (e *Engine) Join(ctx context.Context, c *Client, conversationID uuid.UUID) error {
	ok, err := e.convs.IsParticipant(ctx, conversationID, c.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("you are not a participant in this conversation")
	}

	e.hub.JoinRoom(c, conversationID)
	e.hub.RoomCast(conversationID, c.UserID,
		encodeEvent(EvUserJoined, roomEvent{ConversationID: conversationID, UserID: c.UserID, User: &c.User}))
	c.sendEvent(EvActiveUsers, activeUsersEvent{
		ConversationID: conversationID,
		ActiveUsers:    e.hub.ActiveMembers(conversationID),
	})
	return nil
}

func (e *Engine) Leave(c *Client, conversationID uuid.UUID) {
	e.hub.LeaveRoom(c, conversationID)
	e.hub.RoomCast(conversationID, c.UserID,
		encodeEvent(EvUserLeft, roomEvent{ConversationID: conversationID, UserID: c.UserID}))
}

// Send persists a message and fans it out: the full message to the room,
// fresh unread counters to every participant's personal channel, and a
// durable notification for everyone not looking at the conversation.
func (e *Engine) Send(ctx context.Context, sender user.Public, conversationID uuid.UUID, content string, attachments []Attachment, replyTo *uuid.UUID) (*Message, error) {
	conv, err := e.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(sender.ID) {
		return nil, apperr.Forbidden("you are not a participant in this conversation")
	}
	if err := ValidateBody(content, attachments); err != nil {
		return nil, err
	}
	if replyTo != nil {
		parent, err := e.msgs.Get(ctx, *replyTo)
		if err != nil {
			return nil, apperr.Validation("replied-to message not found")
		}
		if parent.ConversationID != conversationID {
			return nil, apperr.Validation("replied-to message belongs to another conversation")
		}
	}

	msg, err := e.msgs.Append(ctx, conversationID, sender.ID, content, attachments, replyTo)
	if err != nil {
		return nil, err
	}
	msg.Sender = sender

	if err := e.convs.SetLastMessage(ctx, conversationID, msg.ID); err != nil {
		return msg, err
	}
	if err := e.convs.IncrementUnread(ctx, conversationID, sender.ID); err != nil {
		return msg, err
	}

	// Persistence is done; everything below is best effort.
	e.hub.RoomCast(conversationID, uuid.Nil,
		encodeEvent(EvMessageNew, messageNewEvent{Message: msg, ConversationID: conversationID}))

	e.pushUnreadCounts(ctx, conversationID)

	if e.notifier != nil {
		preview := previewOf(content)
		for _, p := range conv.Participants {
			if p.UserID == sender.ID || p.Muted {
				continue
			}
			e.notifier.NewMessage(ctx, sender, p.UserID, conversationID, preview)
		}
	}

	return msg, nil
}

// pushUnreadCounts sends each participant their current counter on the
// personal channel, so badge counts update even for users not viewing the
// conversation.
func (e *Engine) pushUnreadCounts(ctx context.Context, conversationID uuid.UUID) {
	counts, err := e.convs.UnreadCounts(ctx, conversationID)
	if err != nil {
		e.logger.Warn("unread count push skipped", "conversation", conversationID, "err", err)
		return
	}
	for userID, n := range counts {
		e.hub.UserCast(userID,
			encodeEvent(EvUnreadCount, unreadCountEvent{ConversationID: conversationID, UnreadCount: n}))
	}
}

// MarkRead records the caller as having read everything in the conversation,
// resets their counter, and tells the most recent other sender their message
// was seen.
func (e *Engine) MarkRead(ctx context.Context, caller, conversationID uuid.UUID) error {
	ok, err := e.convs.IsParticipant(ctx, conversationID, caller)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("you are not a participant in this conversation")
	}

	if err := e.msgs.MarkAllRead(ctx, conversationID, caller); err != nil {
		return err
	}
	if err := e.convs.ResetUnread(ctx, conversationID, caller); err != nil {
		return err
	}
	if err := e.convs.TouchLastSeen(ctx, conversationID, caller); err != nil {
		e.logger.Warn("last seen update failed", "conversation", conversationID, "err", err)
	}

	e.hub.UserCast(caller, encodeEvent(EvMessagesRead, messagesReadEvent{ConversationID: conversationID}))

	if sender, found, err := e.msgs.LatestOtherSender(ctx, conversationID, caller); err == nil && found {
		e.hub.UserCast(sender,
			encodeEvent(EvMessagesReadByOther, readByOtherEvent{ConversationID: conversationID, UserID: caller}))
	}
	return nil
}

// Typing events are transient: room-only, unpersisted, droppable under load.
func (e *Engine) Typing(caller, conversationID uuid.UUID) {
	e.hub.RoomCast(conversationID, caller,
		encodeEvent(EvUserTyping, roomEvent{ConversationID: conversationID, UserID: caller}))
}

func (e *Engine) StopTyping(caller, conversationID uuid.UUID) {
	e.hub.RoomCast(conversationID, caller,
		encodeEvent(EvUserStopTyping, roomEvent{ConversationID: conversationID, UserID: caller}))
}

// EditMessage replaces a message's content. Only the sender may edit, and
// only within EditWindow of creation.
func (e *Engine) EditMessage(ctx context.Context, caller uuid.UUID, messageID uuid.UUID, content string) (*Message, error) {
	msg, err := e.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != caller {
		return nil, apperr.Forbidden("you can only edit your own messages")
	}
	if e.now().Sub(msg.CreatedAt) > EditWindow {
		return nil, apperr.Expired("cannot edit messages older than 15 minutes")
	}
	if content == "" {
		return nil, apperr.Validation("message content is required")
	}
	if len(content) > MaxContentLength {
		return nil, apperr.Validation("message content exceeds 2000 characters")
	}

	updated, err := e.msgs.Edit(ctx, messageID, content)
	if err != nil {
		return nil, err
	}

	e.hub.RoomCast(updated.ConversationID, uuid.Nil,
		encodeEvent(EvMessageUpdated, messageNewEvent{Message: updated, ConversationID: updated.ConversationID}))
	return updated, nil
}

// DeleteMessage hard-removes a message. Only the sender may delete; there is
// no time limit. The conversation's last-message pointer is deliberately not
// repaired; readers tolerate the stale reference.
func (e *Engine) DeleteMessage(ctx context.Context, caller, messageID uuid.UUID) error {
	msg, err := e.msgs.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != caller {
		return apperr.Forbidden("you can only delete your own messages")
	}

	if err := e.msgs.Delete(ctx, messageID); err != nil {
		return err
	}

	e.hub.RoomCast(msg.ConversationID, uuid.Nil,
		encodeEvent(EvMessageDeleted, messageDeletedEvent{MessageID: messageID, ConversationID: msg.ConversationID}))
	return nil
}

// MarkOneRead appends the caller's read receipt to a single message.
func (e *Engine) MarkOneRead(ctx context.Context, caller, messageID uuid.UUID) error {
	msg, err := e.msgs.Get(ctx, messageID)
	if err != nil {
		return err
	}
	ok, err := e.convs.IsParticipant(ctx, msg.ConversationID, caller)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("you are not a participant in this conversation")
	}
	return e.msgs.MarkOneRead(ctx, messageID, caller)
}

// CreateDirect finds or creates the unique direct conversation between the
// caller and another user. Concurrent first-contact sends converge on one
// conversation.
func (e *Engine) CreateDirect(ctx context.Context, caller, other uuid.UUID) (*Conversation, bool, error) {
	if caller == other {
		return nil, false, apperr.Validation("cannot start a conversation with yourself")
	}
	return e.convs.FindOrCreateDirect(ctx, caller, other)
}

func (e *Engine) CreateGroup(ctx context.Context, caller uuid.UUID, name string, members []uuid.UUID) (*Conversation, error) {
	if name == "" {
		return nil, apperr.Validation("group conversations require a name")
	}
	others := 0
	for _, m := range members {
		if m != caller {
			others++
		}
	}
	if others == 0 {
		return nil, apperr.Validation("group conversations require at least one other participant")
	}
	return e.convs.CreateGroup(ctx, caller, members, name)
}

// GetConversation returns one conversation and, as a side effect, resets the
// caller's unread counter.
func (e *Engine) GetConversation(ctx context.Context, caller, conversationID uuid.UUID) (*Conversation, error) {
	conv, err := e.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(caller) {
		return nil, apperr.Forbidden("you are not a participant in this conversation")
	}
	if err := e.convs.ResetUnread(ctx, conversationID, caller); err != nil {
		return nil, err
	}
	conv.UnreadCount = 0
	return conv, nil
}

func (e *Engine) ListConversations(ctx context.Context, caller uuid.UUID, page, limit int) ([]*Conversation, int, error) {
	return e.convs.ListFor(ctx, caller, page, limit)
}

// ListMessages returns a chronological page and, as a side effect, marks the
// conversation read for the caller.
func (e *Engine) ListMessages(ctx context.Context, caller, conversationID uuid.UUID, page, limit int) ([]*Message, int, error) {
	ok, err := e.convs.IsParticipant(ctx, conversationID, caller)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, apperr.Forbidden("you are not a participant in this conversation")
	}

	msgs, total, err := e.msgs.ListPage(ctx, conversationID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	if err := e.msgs.MarkAllRead(ctx, conversationID, caller); err != nil {
		return nil, 0, err
	}
	if err := e.convs.ResetUnread(ctx, conversationID, caller); err != nil {
		return nil, 0, err
	}
	if err := e.convs.TouchLastSeen(ctx, conversationID, caller); err != nil {
		e.logger.Warn("last seen update failed", "conversation", conversationID, "err", err)
	}
	return msgs, total, nil
}

// DeleteOrLeave removes the caller's standing in a conversation: direct
// conversations are deleted outright (messages cascade with them), group
// conversations just lose the caller.
func (e *Engine) DeleteOrLeave(ctx context.Context, caller, conversationID uuid.UUID) error {
	conv, err := e.convs.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(caller) {
		return apperr.Forbidden("you are not a participant in this conversation")
	}

	if conv.Type == ConversationDirect {
		return e.convs.Delete(ctx, conversationID)
	}

	if err := e.convs.RemoveParticipant(ctx, conversationID, caller); err != nil {
		return err
	}
	e.hub.RoomCast(conversationID, caller,
		encodeEvent(EvUserLeft, roomEvent{ConversationID: conversationID, UserID: caller}))
	return nil
}

// AddParticipant grows a group conversation. Direct conversations never gain
// or lose participants after creation.
func (e *Engine) AddParticipant(ctx context.Context, caller, conversationID, target uuid.UUID) error {
	conv, err := e.convs.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(caller) {
		return apperr.Forbidden("you are not a participant in this conversation")
	}
	if conv.Type == ConversationDirect {
		return apperr.Validation("cannot add participants to a direct conversation")
	}
	if !conv.IsAdmin(caller) {
		return apperr.Forbidden("only admins can add participants")
	}
	return e.convs.AddParticipant(ctx, conversationID, target, RoleMember)
}

// RemoveParticipant: admins may remove anyone; members may remove only
// themselves.
func (e *Engine) RemoveParticipant(ctx context.Context, caller, conversationID, target uuid.UUID) error {
	conv, err := e.convs.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(caller) {
		return apperr.Forbidden("you are not a participant in this conversation")
	}
	if conv.Type == ConversationDirect {
		return apperr.Validation("cannot remove participants from a direct conversation")
	}
	if caller != target && !conv.IsAdmin(caller) {
		return apperr.Forbidden("only admins can remove other participants")
	}
	return e.convs.RemoveParticipant(ctx, conversationID, target)
}

func (e *Engine) SetParticipantRole(ctx context.Context, caller, conversationID, target uuid.UUID, role Role) error {
	if role != RoleAdmin && role != RoleMember {
		return apperr.Validation("invalid role")
	}
	conv, err := e.convs.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsAdmin(caller) {
		return apperr.Forbidden("only admins can change participant roles")
	}
	if !conv.IsParticipant(target) {
		return apperr.NotFound("participant not found")
	}
	return e.convs.SetRole(ctx, conversationID, target, role)
}

func previewOf(content string) string {
	const max = 100
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "…"
}
