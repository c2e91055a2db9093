package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/ginuineca/ArtistSync2/internal/apperr"
)

// Store is the durable notification record keeper. Expiry is part of the
// contract: every read excludes rows past their expires_at, so a lagging
// sweep is never visible to callers.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListFor(ctx context.Context, recipient uuid.UUID, limit, offset int, unreadOnly bool) ([]*Notification, int, error)
	UnreadCount(ctx context.Context, recipient uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, recipient uuid.UUID) error
	MarkAllRead(ctx context.Context, recipient uuid.UUID) error
	Delete(ctx context.Context, id, recipient uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Create(ctx context.Context, n *Notification) error {
	var data []byte
	if n.Data != nil {
		var err error
		data, err = json.Marshal(n.Data)
		if err != nil {
			return err
		}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient, sender, type, title, message, data, action_url, priority, created_at, expires_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.Recipient, n.Sender, n.Type, n.Title, n.Message, data, n.ActionURL, n.Priority, n.CreatedAt, n.ExpiresAt)
	return err
}

func (r *Repository) ListFor(ctx context.Context, recipient uuid.UUID, limit, offset int, unreadOnly bool) ([]*Notification, int, error) {
	query := `SELECT id, recipient, sender, type, title, message, data, action_url, priority, read, read_at, created_at, expires_at
              FROM notifications
              WHERE recipient = $1 AND expires_at > NOW()`
	if unreadOnly {
		query += ` AND read = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, recipient, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n := &Notification{}
		var data []byte
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Sender, &n.Type, &n.Title, &n.Message, &data,
			&n.ActionURL, &n.Priority, &n.Read, &n.ReadAt, &n.CreatedAt, &n.ExpiresAt); err != nil {
			return nil, 0, err
		}
		if payload, err := decodePayload(n.Type, data); err == nil {
			n.Data = payload
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient = $1 AND expires_at > NOW()`,
		recipient).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repository) UnreadCount(ctx context.Context, recipient uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications
         WHERE recipient = $1 AND read = FALSE AND expires_at > NOW()`,
		recipient).Scan(&count)
	return count, err
}

func (r *Repository) MarkRead(ctx context.Context, id, recipient uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE, read_at = NOW()
         WHERE id = $1 AND recipient = $2 AND expires_at > NOW()`, id, recipient)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("notification not found")
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, recipient uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE, read_at = NOW()
         WHERE recipient = $1 AND read = FALSE AND expires_at > NOW()`, recipient)
	return err
}

func (r *Repository) Delete(ctx context.Context, id, recipient uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = $1 AND recipient = $2`, id, recipient)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("notification not found")
	}
	return nil
}

// DeleteExpired physically removes rows past their TTL. Postgres has no TTL
// index; the sweeper plus the expires_at filter on every query stand in for
// one.
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return n, nil
}
