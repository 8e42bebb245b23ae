package store

import (
	"context"
	"fmt"
)

// DefaultHistoryLimit bounds ListConversations when no limit is given.
const DefaultHistoryLimit = 20

// CreateConversation appends a conversation for c.UserID.
func (s *Store) CreateConversation(ctx context.Context, c *Conversation) error {
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	msgs, err := encodeJSON(c.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	now := s.now()
	err = s.queryRow(ctx,
		`INSERT INTO conversations (user_id, messages, created_at) VALUES (?, ?, ?) RETURNING id`,
		c.UserID, msgs, now,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	c.CreatedAt = now
	return nil
}

// ListConversations returns up to limit of the user's most recent
// conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, userID int64, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.query(ctx, `
		SELECT id, user_id, messages, created_at FROM conversations
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []*Conversation{}
	for rows.Next() {
		var (
			c   Conversation
			raw string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &raw, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.Messages = []Message{}
		if err := decodeJSON(raw, &c.Messages); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}
