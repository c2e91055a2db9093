package chat

import (
	"context"

	"github.com/google/uuid"
)

// ConversationStore is the durable roster and counter state. Implementations
// must make FindOrCreateDirect and IncrementUnread atomic: concurrent
// first-contact sends may not create duplicate conversations and concurrent
// sends may not lose increments.
type ConversationStore interface {
	// FindOrCreateDirect returns the unique direct conversation between the
	// pair, creating it if absent. The bool reports whether it was created.
	FindOrCreateDirect(ctx context.Context, creator, other uuid.UUID) (*Conversation, bool, error)
	CreateGroup(ctx context.Context, creator uuid.UUID, members []uuid.UUID, name string) (*Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListFor(ctx context.Context, userID uuid.UUID, page, limit int) ([]*Conversation, int, error)

	AddParticipant(ctx context.Context, conversationID, userID uuid.UUID, role Role) error
	RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error
	SetRole(ctx context.Context, conversationID, userID uuid.UUID, role Role) error
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)

	IncrementUnread(ctx context.Context, conversationID, exceptUser uuid.UUID) error
	ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error
	UnreadCounts(ctx context.Context, conversationID uuid.UUID) (map[uuid.UUID]int, error)

	SetLastMessage(ctx context.Context, conversationID, messageID uuid.UUID) error
	TouchLastSeen(ctx context.Context, conversationID, userID uuid.UUID) error
	Delete(ctx context.Context, conversationID uuid.UUID) error
}

// MessageStore owns messages, attachments and read receipts. Append writes
// the sender's own read receipt; MarkAllRead/MarkOneRead are idempotent.
type MessageStore interface {
	Append(ctx context.Context, conversationID, sender uuid.UUID, content string, attachments []Attachment, replyTo *uuid.UUID) (*Message, error)
	Get(ctx context.Context, id uuid.UUID) (*Message, error)
	// ListPage fetches newest-first pages but returns each page in
	// chronological order, plus the conversation's total message count.
	ListPage(ctx context.Context, conversationID uuid.UUID, page, limit int) ([]*Message, int, error)
	MarkAllRead(ctx context.Context, conversationID, reader uuid.UUID) error
	MarkOneRead(ctx context.Context, messageID, reader uuid.UUID) error
	Edit(ctx context.Context, messageID uuid.UUID, content string) (*Message, error)
	Delete(ctx context.Context, messageID uuid.UUID) error
	// LatestOtherSender reports the sender of the newest message in the
	// conversation not authored by exceptUser.
	LatestOtherSender(ctx context.Context, conversationID, exceptUser uuid.UUID) (uuid.UUID, bool, error)
}
