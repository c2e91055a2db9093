package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            name VARCHAR(100) NOT NULL DEFAULT '',
            password VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

		`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            type VARCHAR(10) NOT NULL CHECK (type IN ('direct', 'group')),
            name VARCHAR(100) NOT NULL DEFAULT '',
            direct_key TEXT UNIQUE,
            last_message_id UUID,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

		`CREATE TABLE IF NOT EXISTS participants (
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            role VARCHAR(10) NOT NULL DEFAULT 'member' CHECK (role IN ('admin', 'member')),
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_seen TIMESTAMPTZ,
            muted BOOLEAN NOT NULL DEFAULT FALSE,
            unread_count INT NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
            PRIMARY KEY (conversation_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            seq BIGSERIAL UNIQUE,
            id UUID PRIMARY KEY,
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            content VARCHAR(2000) NOT NULL DEFAULT '',
            reply_to UUID,
            edited BOOLEAN NOT NULL DEFAULT FALSE,
            edited_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq
            ON messages (conversation_id, seq DESC)`,

		`CREATE TABLE IF NOT EXISTS attachments (
            id UUID PRIMARY KEY,
            message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            position INT NOT NULL DEFAULT 0,
            kind VARCHAR(10) NOT NULL CHECK (kind IN ('image', 'video', 'audio', 'document')),
            url TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            size BIGINT NOT NULL DEFAULT 0,
            mime_type TEXT NOT NULL DEFAULT ''
        )`,

		`CREATE TABLE IF NOT EXISTS message_reads (
            message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (message_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY,
            recipient UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            sender UUID REFERENCES users(id) ON DELETE SET NULL,
            type VARCHAR(30) NOT NULL,
            title VARCHAR(100) NOT NULL,
            message VARCHAR(500) NOT NULL,
            data JSONB,
            action_url TEXT NOT NULL DEFAULT '',
            priority VARCHAR(10) NOT NULL DEFAULT 'normal' CHECK (priority IN ('low', 'normal', 'high', 'urgent')),
            read BOOLEAN NOT NULL DEFAULT FALSE,
            read_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            expires_at TIMESTAMPTZ NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_notifications_recipient
            ON notifications (recipient, read, created_at DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_notifications_expiry
            ON notifications (expires_at)`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
