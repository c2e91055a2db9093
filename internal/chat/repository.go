package chat

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/ginuineca/ArtistSync2/internal/apperr"
)

// ConversationRepo implements ConversationStore on PostgreSQL.
// Atomicity-sensitive operations (direct-conversation uniqueness, unread
// counters) lean on unique indexes, ON CONFLICT and single-statement
// UPDATEs rather than read-modify-write.
type ConversationRepo struct {
	db   *sql.DB
	msgs *MessageRepo
}

func NewConversationRepo(db *sql.DB, msgs *MessageRepo) *ConversationRepo {
	return &ConversationRepo{db: db, msgs: msgs}
}

var _ ConversationStore = (*ConversationRepo)(nil)

// directKey is the unique identity of a direct conversation: the sorted
// participant pair. The unique index on conversations.direct_key is what
// makes concurrent first-contact sends converge on one row.
func directKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if x > y {
		x, y = y, x
	}
	return x + ":" + y
}

func (r *ConversationRepo) FindOrCreateDirect(ctx context.Context, creator, other uuid.UUID) (*Conversation, bool, error) {
	key := directKey(creator, other)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	id := uuid.New()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, type, direct_key) VALUES ($1, 'direct', $2)
         ON CONFLICT (direct_key) DO NOTHING`, id, key)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	created := n == 1
	if created {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants (conversation_id, user_id, role) VALUES ($1, $2, 'admin'), ($1, $3, 'member')`,
			id, creator, other); err != nil {
			return nil, false, err
		}
	} else {
		// Lost the race (or the conversation already existed): fetch the
		// winner's row.
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM conversations WHERE direct_key = $1`, key).Scan(&id); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	conv, err := r.Get(ctx, id)
	return conv, created, err
}

func (r *ConversationRepo) CreateGroup(ctx context.Context, creator uuid.UUID, members []uuid.UUID, name string) (*Conversation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	id := uuid.New()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, type, name) VALUES ($1, 'group', $2)`, id, name); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO participants (conversation_id, user_id, role) VALUES ($1, $2, 'admin')`, id, creator); err != nil {
		return nil, err
	}
	for _, m := range members {
		if m == creator {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants (conversation_id, user_id, role) VALUES ($1, $2, 'member')
             ON CONFLICT DO NOTHING`, id, m); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *ConversationRepo) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	c := &Conversation{}
	var lastMessageID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, type, name, last_message_id, created_at, updated_at
         FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.Type, &c.Name, &lastMessageID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, err
	}
	if lastMessageID.Valid {
		if mid, err := uuid.Parse(lastMessageID.String); err == nil {
			c.LastMessageID = &mid
		}
	}

	if err := r.loadParticipants(ctx, []*Conversation{c}); err != nil {
		return nil, err
	}
	r.populateLastMessage(ctx, c)
	return c, nil
}

// populateLastMessage resolves the weak last-message pointer. Stale pointers
// are tolerated: the message may have been deleted out from under the
// conversation, in which case LastMessage stays nil.
func (r *ConversationRepo) populateLastMessage(ctx context.Context, c *Conversation) {
	if c.LastMessageID == nil {
		return
	}
	if msg, err := r.msgs.Get(ctx, *c.LastMessageID); err == nil {
		c.LastMessage = msg
	}
}

func (r *ConversationRepo) ListFor(ctx context.Context, userID uuid.UUID, page, limit int) ([]*Conversation, int, error) {
	if page < 1 {
		page = 1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.type, c.name, c.last_message_id, c.created_at, c.updated_at, p.unread_count
         FROM conversations c
         JOIN participants p ON p.conversation_id = c.id AND p.user_id = $1
         ORDER BY c.updated_at DESC
         LIMIT $2 OFFSET $3`, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		c := &Conversation{}
		var lastMessageID sql.NullString
		if err := rows.Scan(&c.ID, &c.Type, &c.Name, &lastMessageID, &c.CreatedAt, &c.UpdatedAt, &c.UnreadCount); err != nil {
			return nil, 0, err
		}
		if lastMessageID.Valid {
			if mid, err := uuid.Parse(lastMessageID.String); err == nil {
				c.LastMessageID = &mid
			}
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	if err := r.loadParticipants(ctx, convs); err != nil {
		return nil, 0, err
	}
	for _, c := range convs {
		r.populateLastMessage(ctx, c)
	}
	return convs, total, nil
}

func (r *ConversationRepo) loadParticipants(ctx context.Context, convs []*Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids := make([]string, len(convs))
	byID := make(map[uuid.UUID]*Conversation, len(convs))
	for i, c := range convs {
		ids[i] = c.ID.String()
		byID[c.ID] = c
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT p.conversation_id, p.user_id, u.username, u.name, p.role, p.joined_at, p.last_seen, p.muted, p.unread_count
         FROM participants p
         JOIN users u ON u.id = p.user_id
         WHERE p.conversation_id = ANY($1::uuid[])
         ORDER BY p.joined_at`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var convID uuid.UUID
		var p Participant
		if err := rows.Scan(&convID, &p.UserID, &p.Username, &p.Name, &p.Role, &p.JoinedAt, &p.LastSeen, &p.Muted, &p.UnreadCount); err != nil {
			return err
		}
		if c, ok := byID[convID]; ok {
			c.Participants = append(c.Participants, p)
		}
	}
	return rows.Err()
}

func (r *ConversationRepo) AddParticipant(ctx context.Context, conversationID, userID uuid.UUID, role Role) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO participants (conversation_id, user_id, role) VALUES ($1, $2, $3)
         ON CONFLICT DO NOTHING`, conversationID, userID, role)
	return err
}

func (r *ConversationRepo) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM participants WHERE conversation_id = $1 AND user_id = $2`, conversationID, userID)
	return err
}

func (r *ConversationRepo) SetRole(ctx context.Context, conversationID, userID uuid.UUID, role Role) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE participants SET role = $3 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID, role)
	return err
}

func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID).Scan(&ok)
	return ok, err
}

func (r *ConversationRepo) IncrementUnread(ctx context.Context, conversationID, exceptUser uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE participants SET unread_count = unread_count + 1
         WHERE conversation_id = $1 AND user_id <> $2`, conversationID, exceptUser)
	return err
}

func (r *ConversationRepo) ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE participants SET unread_count = 0
         WHERE conversation_id = $1 AND user_id = $2`, conversationID, userID)
	return err
}

func (r *ConversationRepo) UnreadCounts(ctx context.Context, conversationID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, unread_count FROM participants WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (r *ConversationRepo) SetLastMessage(ctx context.Context, conversationID, messageID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_id = $2, updated_at = NOW() WHERE id = $1`,
		conversationID, messageID)
	return err
}

func (r *ConversationRepo) TouchLastSeen(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE participants SET last_seen = NOW() WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID)
	return err
}

func (r *ConversationRepo) Delete(ctx context.Context, conversationID uuid.UUID) error {
	// Messages, participants, attachments and read receipts go with it via
	// ON DELETE CASCADE.
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
	return err
}
