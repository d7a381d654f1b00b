package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"courier/apperrors"
	"courier/models"
)

// Message queries

// AppendMessage adds a message to conv on behalf of senderID and moves the
// conversation's last-message pointer to it.
//
// Bumping last_seq with a single UPDATE takes the conversation's row lock
// (PostgreSQL) or the database write lock (SQLite), so appends to the same
// conversation are serialized and each gets the next sequence number.
// Appends to different conversations do not contend on PostgreSQL.
//
// created_at is taken once the lock is held and never precedes the previous
// message, so timestamps do not decrease along seq.
func (tx *Tx) AppendMessage(ctx context.Context, conv *models.Conversation, senderID int64, content string) (*models.Message, error) {
	var seq int64
	err := tx.queryRow(ctx,
		"UPDATE conversations SET last_seq = last_seq + 1 WHERE id = ? RETURNING last_seq",
		conv.ID,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrConversationMissing
	}
	if err != nil {
		return nil, fmt.Errorf("advance conversation sequence: %w", err)
	}

	var prevAt sql.NullTime
	if err := tx.queryRow(ctx,
		"SELECT last_message_at FROM conversations WHERE id = ?",
		conv.ID,
	).Scan(&prevAt); err != nil {
		return nil, fmt.Errorf("select last message time: %w", err)
	}
	now := tx.now()
	if prevAt.Valid && prevAt.Time.After(now) {
		now = prevAt.Time
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		Seq:            seq,
		SenderID:       senderID,
		ReceiverID:     conv.Other(senderID),
		Content:        content,
		IsRead:         false,
		CreatedAt:      now,
	}
	err = tx.queryRow(ctx,
		`INSERT INTO messages (conversation_id, seq, sender_id, content, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		msg.ConversationID, msg.Seq, msg.SenderID, msg.Content, false, msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.exec(ctx,
		"UPDATE conversations SET last_message_id = ?, last_message_at = ?, updated_at = ? WHERE id = ?",
		msg.ID, msg.CreatedAt, now, conv.ID,
	); err != nil {
		return nil, fmt.Errorf("update last message: %w", err)
	}

	conv.LastSeq = seq
	conv.LastMessageID = &msg.ID
	conv.LastMessageAt = &msg.CreatedAt
	conv.UpdatedAt = now
	return msg, nil
}

const messageColumns = "m.id, m.conversation_id, m.seq, m.sender_id, m.content, m.is_read, m.read_at, m.created_at"

// ListMessages returns a conversation's messages oldest first. The receiver
// of each message is derived from conv.
func (s *Store) ListMessages(ctx context.Context, conv *models.Conversation, page models.Page) ([]models.Message, error) {
	page = page.Normalize()
	rows, err := s.conn().query(ctx,
		"SELECT "+messageColumns+` FROM messages m
		WHERE m.conversation_id = ?
		ORDER BY m.seq ASC
		LIMIT ? OFFSET ?`,
		conv.ID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msg.ReceiverID = conv.Other(msg.SenderID)
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// ListUserMessages returns messages userID sent or received, newest first.
// A non-nil conversationID restricts the listing to that conversation.
func (s *Store) ListUserMessages(ctx context.Context, userID int64, conversationID *int64, page models.Page) ([]models.Message, error) {
	page = page.Normalize()
	query := "SELECT " + messageColumns + `, c.user_low_id, c.user_high_id
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.user_low_id = ? OR c.user_high_id = ?)`
	args := []any{userID, userID}
	if conversationID != nil {
		query += " AND m.conversation_id = ?"
		args = append(args, *conversationID)
	}
	query += " ORDER BY m.created_at DESC, m.id DESC LIMIT ? OFFSET ?"
	args = append(args, page.Limit, page.Offset)

	rows, err := s.conn().query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select user messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var conv models.Conversation
		msg, err := scanMessage(rows, &conv.UserLowID, &conv.UserHighID)
		if err != nil {
			return nil, err
		}
		msg.ReceiverID = conv.Other(msg.SenderID)
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user messages: %w", err)
	}
	return messages, nil
}

// GetMessage retrieves a message together with its conversation.
func (s *Store) GetMessage(ctx context.Context, id int64) (*models.Message, *models.Conversation, error) {
	msg, err := scanMessage(s.conn().queryRow(ctx,
		"SELECT "+messageColumns+" FROM messages m WHERE m.id = ?",
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperrors.ErrMessageMissing
	}
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	msg.ReceiverID = conv.Other(msg.SenderID)
	return msg, conv, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanMessage reads messageColumns followed by any extra destinations.
func scanMessage(row scanner, extra ...any) (*models.Message, error) {
	var (
		msg    models.Message
		readAt sql.NullTime
	)
	dest := append([]any{&msg.ID, &msg.ConversationID, &msg.Seq, &msg.SenderID, &msg.Content, &msg.IsRead, &readAt, &msg.CreatedAt}, extra...)
	err := row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	msg.ReadAt = nullTime(readAt)
	return &msg, nil
}

// MarkConversationRead marks every unread message in conv that was written
// by someone other than viewerID. It returns the number of messages marked.
func (s *Store) MarkConversationRead(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	res, err := s.conn().exec(ctx,
		`UPDATE messages SET is_read = ?, read_at = ?
		WHERE conversation_id = ? AND sender_id <> ? AND is_read = ?`,
		true, s.now(), conversationID, viewerID, false,
	)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return n, nil
}

// MarkMessageRead flags a single message read. It is a no-op when the
// message is already read and returns the stored read time either way.
func (s *Store) MarkMessageRead(ctx context.Context, id int64) (*time.Time, error) {
	if _, err := s.conn().exec(ctx,
		"UPDATE messages SET is_read = ?, read_at = ? WHERE id = ? AND is_read = ?",
		true, s.now(), id, false,
	); err != nil {
		return nil, fmt.Errorf("mark message read: %w", err)
	}
	var readAt sql.NullTime
	err := s.conn().queryRow(ctx, "SELECT read_at FROM messages WHERE id = ?", id).Scan(&readAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrMessageMissing
	}
	if err != nil {
		return nil, fmt.Errorf("select read_at: %w", err)
	}
	return nullTime(readAt), nil
}
