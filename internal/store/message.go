package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/collab/internal/protocol"
)

const messageColumns = `id, client_id, sender_id, receiver_id, campaign_id, content, created_at`

// CreateMessage stores a message and returns the durable copy. It is
// idempotent on (sender, clientId): a retried or concurrent write returns the
// row stored by the first one and created is false.
func (db *DB) CreateMessage(ctx context.Context, req protocol.SendRequest, now time.Time) (msg protocol.Message, created bool, err error) {
	msg = protocol.Message{
		ID:         uuid.NewString(),
		ClientID:   req.ClientID,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		CampaignID: req.CampaignID,
		Content:    req.Content,
		CreatedAt:  time.UnixMilli(now.UnixMilli()).UTC(),
	}
	// The conflict target matches the partial index idx_messages_client, so
	// rows without a clientId always insert.
	res, err := db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sender_id, client_id) WHERE client_id != '' DO NOTHING`,
		msg.ID, msg.ClientID, msg.SenderID, msg.ReceiverID, msg.CampaignID, msg.Content, msg.CreatedAt.UnixMilli())
	if err != nil {
		return protocol.Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return protocol.Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	if n == 1 {
		return msg, true, nil
	}

	row := db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE sender_id = ? AND client_id = ?`,
		req.SenderID, req.ClientID)
	existing, err := scanMessage(row)
	if err != nil {
		return protocol.Message{}, false, fmt.Errorf("load stored message: %w", err)
	}
	return existing, false, nil
}

// History returns the messages exchanged between userA and userB in either
// direction, oldest first. A non-positive limit returns everything.
func (db *DB) History(ctx context.Context, userA, userB string, limit int) ([]protocol.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT seq, ` + messageColumns + ` FROM messages
			WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC`
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, query, userA, userB, userB, userA, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs := []protocol.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageByID returns one stored message.
func (db *DB) MessageByID(ctx context.Context, id string) (protocol.Message, error) {
	row := db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

// Conversations returns the latest message per peer of userID, newest first.
func (db *DB) Conversations(ctx context.Context, userID string) ([]protocol.ConversationSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT peer, content, created_at, campaign_id FROM (
			SELECT
				CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS peer,
				content, created_at, campaign_id,
				ROW_NUMBER() OVER (
					PARTITION BY CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END
					ORDER BY created_at DESC, seq DESC
				) AS rn
			FROM messages
			WHERE sender_id = ? OR receiver_id = ?
		)
		WHERE rn = 1
		ORDER BY created_at DESC`,
		userID, userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []protocol.ConversationSummary{}
	for rows.Next() {
		var (
			s  protocol.ConversationSummary
			ms int64
		)
		if err := rows.Scan(&s.UserID, &s.LastMessage, &ms, &s.CampaignID); err != nil {
			return nil, err
		}
		s.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (protocol.Message, error) {
	var (
		m  protocol.Message
		ms int64
	)
	err := s.Scan(&m.ID, &m.ClientID, &m.SenderID, &m.ReceiverID, &m.CampaignID, &m.Content, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Message{}, ErrNotFound
	}
	if err != nil {
		return protocol.Message{}, err
	}
	m.CreatedAt = time.UnixMilli(ms).UTC()
	return m, nil
}
