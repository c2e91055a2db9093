package chat

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/ginuineca/ArtistSync2/internal/apperr"
)

// MessageRepo implements MessageStore on PostgreSQL. Read receipts are a
// (message_id, user_id) table whose composite primary key plus ON CONFLICT
// DO NOTHING makes every mark-read path idempotent.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ MessageStore = (*MessageRepo)(nil)

func (r *MessageRepo) Append(ctx context.Context, conversationID, sender uuid.UUID, content string, attachments []Attachment, replyTo *uuid.UUID) (*Message, error) {
	if err := ValidateBody(content, attachments); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m := &Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       sender,
		Content:        content,
		Attachments:    attachments,
		ReplyTo:        replyTo,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, reply_to)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING seq, created_at`,
		m.ID, conversationID, sender, content, replyTo).Scan(&m.Seq, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range m.Attachments {
		a := &m.Attachments[i]
		a.ID = uuid.New()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attachments (id, message_id, position, kind, url, name, size, mime_type)
             VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, m.ID, i, a.Kind, a.URL, a.Name, a.Size, a.MimeType); err != nil {
			return nil, err
		}
	}

	// The sender has read their own message by definition.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, $3)`,
		m.ID, sender, m.CreatedAt); err != nil {
		return nil, err
	}
	m.ReadBy = []ReadReceipt{{UserID: sender, ReadAt: m.CreatedAt}}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) Get(ctx context.Context, id uuid.UUID) (*Message, error) {
	m := &Message{}
	var replyTo sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT m.seq, m.id, m.conversation_id, m.sender_id, u.username, u.name,
                m.content, m.reply_to, m.edited, m.edited_at, m.created_at
         FROM messages m
         JOIN users u ON u.id = m.sender_id
         WHERE m.id = $1`, id).
		Scan(&m.Seq, &m.ID, &m.ConversationID, &m.SenderID, &m.Sender.Username, &m.Sender.Name,
			&m.Content, &replyTo, &m.Edited, &m.EditedAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, err
	}
	m.Sender.ID = m.SenderID
	if replyTo.Valid {
		if rid, err := uuid.Parse(replyTo.String); err == nil {
			m.ReplyTo = &rid
		}
	}
	if err := r.loadDetails(ctx, []*Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) ListPage(ctx context.Context, conversationID uuid.UUID, page, limit int) ([]*Message, int, error) {
	if page < 1 {
		page = 1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.seq, m.id, m.conversation_id, m.sender_id, u.username, u.name,
                m.content, m.reply_to, m.edited, m.edited_at, m.created_at
         FROM messages m
         JOIN users u ON u.id = m.sender_id
         WHERE m.conversation_id = $1
         ORDER BY m.seq DESC
         LIMIT $2 OFFSET $3`, conversationID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m := &Message{}
		var replyTo sql.NullString
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.SenderID, &m.Sender.Username, &m.Sender.Name,
			&m.Content, &replyTo, &m.Edited, &m.EditedAt, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		m.Sender.ID = m.SenderID
		if replyTo.Valid {
			if rid, err := uuid.Parse(replyTo.String); err == nil {
				m.ReplyTo = &rid
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID).Scan(&total); err != nil {
		return nil, 0, err
	}

	if err := r.loadDetails(ctx, msgs); err != nil {
		return nil, 0, err
	}

	// Fetched newest-first for the LIMIT; callers get chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, total, nil
}

func (r *MessageRepo) loadDetails(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	byID := make(map[uuid.UUID]*Message, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID.String()
		byID[m.ID] = m
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT message_id, id, kind, url, name, size, mime_type
         FROM attachments WHERE message_id = ANY($1::uuid[]) ORDER BY position`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var msgID uuid.UUID
		var a Attachment
		if err := rows.Scan(&msgID, &a.ID, &a.Kind, &a.URL, &a.Name, &a.Size, &a.MimeType); err != nil {
			rows.Close()
			return err
		}
		if m, ok := byID[msgID]; ok {
			m.Attachments = append(m.Attachments, a)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx,
		`SELECT message_id, user_id, read_at
         FROM message_reads WHERE message_id = ANY($1::uuid[]) ORDER BY read_at`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var msgID uuid.UUID
		var rr ReadReceipt
		if err := rows.Scan(&msgID, &rr.UserID, &rr.ReadAt); err != nil {
			return err
		}
		if m, ok := byID[msgID]; ok {
			m.ReadBy = append(m.ReadBy, rr)
		}
	}
	return rows.Err()
}

func (r *MessageRepo) MarkAllRead(ctx context.Context, conversationID, reader uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id)
         SELECT m.id, $2 FROM messages m
         WHERE m.conversation_id = $1 AND m.sender_id <> $2
         ON CONFLICT DO NOTHING`, conversationID, reader)
	return err
}

func (r *MessageRepo) MarkOneRead(ctx context.Context, messageID, reader uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)
         ON CONFLICT DO NOTHING`, messageID, reader)
	return err
}

func (r *MessageRepo) Edit(ctx context.Context, messageID uuid.UUID, content string) (*Message, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content = $2, edited = TRUE, edited_at = NOW() WHERE id = $1`,
		messageID, content)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFound("message not found")
	}
	return r.Get(ctx, messageID)
}

func (r *MessageRepo) Delete(ctx context.Context, messageID uuid.UUID) error {
	// Hard delete; attachments and read receipts cascade. The conversation's
	// last-message pointer is left alone (stale pointers are tolerated).
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	return err
}

func (r *MessageRepo) LatestOtherSender(ctx context.Context, conversationID, exceptUser uuid.UUID) (uuid.UUID, bool, error) {
	var sender uuid.UUID
	err := r.db.QueryRowContext(ctx,
		`SELECT sender_id FROM messages
         WHERE conversation_id = $1 AND sender_id <> $2
         ORDER BY seq DESC LIMIT 1`, conversationID, exceptUser).Scan(&sender)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return sender, true, nil
}
