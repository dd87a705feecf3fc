// Package sqlite implements the durable remote conversation repository on
// SQLite. Conversation rows cache the client-side message count; message rows
// are an append-only audit trail.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/harborlight/henry/backend/internal/model/chat"
	"github.com/harborlight/henry/backend/internal/service/conversation"
)

type Repo struct {
	db *sql.DB
}

// NewRepo opens the database at dataSourceName and ensures the schema.
func NewRepo(dataSourceName string) (*Repo, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &Repo{db: db}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

func (r *Repo) Close() error {
	return r.db.Close()
}

func (r *Repo) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        owner_id TEXT NOT NULL,
        last_message_at DATETIME,
        message_count INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS conversation_messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );

    CREATE INDEX IF NOT EXISTS idx_conversations_owner
        ON conversations (owner_id, last_message_at DESC);
    `
	_, err := r.db.Exec(schema)
	return err
}

// LatestByOwner returns the owner's most recently updated conversation, or
// nil when the owner has none.
func (r *Repo) LatestByOwner(ctx context.Context, ownerID string) (*conversation.Record, error) {
	var record conversation.Record
	var lastMessageAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
        SELECT id, owner_id, last_message_at, message_count
        FROM conversations
        WHERE owner_id = ?
        ORDER BY last_message_at DESC
        LIMIT 1`, ownerID).
		Scan(&record.ID, &record.OwnerID, &lastMessageAt, &record.MessageCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	if lastMessageAt.Valid {
		record.LastMessageAt = lastMessageAt.Time
	}
	return &record, nil
}

// Create inserts a fresh conversation record for the owner.
func (r *Repo) Create(ctx context.Context, ownerID string) (*conversation.Record, error) {
	record := conversation.Record{ID: uuid.NewString(), OwnerID: ownerID}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO conversations (id, owner_id, message_count) VALUES (?, ?, 0)",
		record.ID, record.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return &record, nil
}

// Touch updates the sync bookkeeping on a conversation record.
func (r *Repo) Touch(ctx context.Context, id string, lastMessageAt time.Time, messageCount int) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE conversations SET last_message_at = ?, message_count = ? WHERE id = ?",
		lastMessageAt, messageCount, id)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("conversation %s not found", id)
	}
	return nil
}

// InsertMessages appends msgs as remote rows.
func (r *Repo) InsertMessages(ctx context.Context, conversationID string, msgs []chat.Message) error {
	stmt, err := r.db.PrepareContext(ctx,
		"INSERT INTO conversation_messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), conversationID, string(msg.Role()), msg.Text, msg.Timestamp); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	return nil
}

// RecentMessages returns up to limit of the newest rows in chronological
// order.
func (r *Repo) RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT role, content, created_at
        FROM conversation_messages
        WHERE conversation_id = ?
        ORDER BY created_at DESC
        LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var newestFirst []chat.Message
	for rows.Next() {
		var role, content string
		var createdAt time.Time
		if err := rows.Scan(&role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		newestFirst = append(newestFirst, chat.Message{
			Text:       content,
			IsFromUser: role == string(chat.RoleUser),
			Timestamp:  createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}

	msgs := make([]chat.Message, len(newestFirst))
	for i, m := range newestFirst {
		msgs[len(newestFirst)-1-i] = m
	}
	return msgs, nil
}
