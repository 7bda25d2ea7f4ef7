package chat

import (
	"context"
	"database/sql"
	"fmt"
)

// MessageStore is the durable append-only log of global chat messages.
type MessageStore interface {
	// Append assigns an id and timestamp, persists the message, and returns
	// the stored record.
	Append(ctx context.Context, username, text string) (*Message, error)
	// ListSince returns every stored message with id greater than sinceID,
	// oldest first. sinceID 0 means the full history.
	ListSince(ctx context.Context, sinceID int64) ([]*Message, error)
}

// PostgresStore backs the message log with the messages table. A limit of 0
// disables the row cap on reads.
type PostgresStore struct {
	db    *sql.DB
	limit int
}

func NewPostgresStore(db *sql.DB, limit int) *PostgresStore {
	return &PostgresStore{db: db, limit: limit}
}

func (s *PostgresStore) Append(ctx context.Context, username, text string) (*Message, error) {
	msg := &Message{Username: username, Text: text}
	query := "INSERT INTO messages (username, text) VALUES ($1, $2) RETURNING id, created_at"
	if err := s.db.QueryRowContext(ctx, query, username, text).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListSince(ctx context.Context, sinceID int64) ([]*Message, error) {
	// With a limit we keep the NEWEST rows, so the cap is applied on a
	// descending scan and the result flipped back to ascending.
	query := `
		SELECT id, username, text, created_at
		FROM messages
		WHERE id > $1
		ORDER BY id ASC
	`
	args := []any{sinceID}
	if s.limit > 0 {
		query = `
			SELECT id, username, text, created_at
			FROM (
				SELECT id, username, text, created_at
				FROM messages
				WHERE id > $1
				ORDER BY id DESC
				LIMIT $2
			) recent
			ORDER BY id ASC
		`
		args = append(args, s.limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.Username, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}
