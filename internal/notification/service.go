package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ginuineca/ArtistSync2/internal/user"
)

// EvNotificationNew is the personal-channel event carrying a freshly created
// notification to an online recipient.
const EvNotificationNew = "notification:new"

// Pusher is the realtime side of the bridge, satisfied by the chat hub. Both
// methods are best effort.
type Pusher interface {
	IsOnline(userID uuid.UUID) bool
	PushEvent(userID uuid.UUID, event string, data any)
}

// Bridge converts domain events into durable notification records and,
// opportunistically, into a realtime push when the recipient is connected.
// The durable record and the push are independent: a crash between them
// loses at most the push, which the recipient recovers by polling.
type Bridge struct {
	store  Store
	pusher Pusher
	ttl    time.Duration
	logger *slog.Logger

	now func() time.Time
}

func NewBridge(store Store, pusher Pusher, ttl time.Duration, logger *slog.Logger) *Bridge {
	return &Bridge{
		store:  store,
		pusher: pusher,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Notify resolves a named template, persists the resulting record, then
// pushes it if the recipient is online. Push failure never fails the call.
func (b *Bridge) Notify(ctx context.Context, template string, p Params) (*Notification, error) {
	n, err := Resolve(template, p)
	if err != nil {
		return nil, err
	}

	n.ID = uuid.New()
	n.CreatedAt = b.now()
	n.ExpiresAt = n.CreatedAt.Add(b.ttl)

	if err := b.store.Create(ctx, n); err != nil {
		return nil, err
	}

	if b.pusher != nil && b.pusher.IsOnline(n.Recipient) {
		b.pusher.PushEvent(n.Recipient, EvNotificationNew, n)
	}
	return n, nil
}

// NewMessage implements the chat engine's notifier hook. Failures are logged
// and swallowed; a send must never fail because its notification could not
// be recorded.
func (b *Bridge) NewMessage(ctx context.Context, sender user.Public, recipient, conversationID uuid.UUID, preview string) {
	_, err := b.Notify(ctx, TemplateNewMessage, Params{
		Recipient:      recipient,
		Sender:         sender.ID,
		ConversationID: conversationID,
		Preview:        preview,
	})
	if err != nil {
		b.logger.Warn("message notification failed", "recipient", recipient, "err", err)
	}
}

func (b *Bridge) List(ctx context.Context, recipient uuid.UUID, limit, offset int, unreadOnly bool) ([]*Notification, int, error) {
	return b.store.ListFor(ctx, recipient, limit, offset, unreadOnly)
}

func (b *Bridge) UnreadCount(ctx context.Context, recipient uuid.UUID) (int, error) {
	return b.store.UnreadCount(ctx, recipient)
}

func (b *Bridge) MarkOneRead(ctx context.Context, id, recipient uuid.UUID) error {
	return b.store.MarkRead(ctx, id, recipient)
}

func (b *Bridge) MarkAllRead(ctx context.Context, recipient uuid.UUID) error {
	return b.store.MarkAllRead(ctx, recipient)
}

func (b *Bridge) Delete(ctx context.Context, id, recipient uuid.UUID) error {
	return b.store.Delete(ctx, id, recipient)
}

// RunSweeper periodically removes expired rows. Queries already filter on
// expires_at, so the sweep cadence only affects table size, not visibility.
func (b *Bridge) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := b.store.DeleteExpired(ctx)
			if err != nil {
				b.logger.Warn("notification sweep failed", "err", err)
				continue
			}
			if n > 0 {
				b.logger.Info("swept expired notifications", "count", n)
			}
		}
	}
}
