package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"courier/apperrors"
	"courier/models"
)

const conversationColumns = "id, user_low_id, user_high_id, last_seq, last_message_id, last_message_at, created_at, updated_at"

// Conversation queries

// ResolveConversation returns the conversation between a and b, creating it
// if it does not exist yet. created reports whether this call inserted it.
//
// The insert is a no-op when the pair already exists, including when a
// concurrent transaction created it first; the select that follows then
// reads that row. Both users must exist.
func (tx *Tx) ResolveConversation(ctx context.Context, a, b int64) (conv *models.Conversation, created bool, err error) {
	if a == b || a <= 0 || b <= 0 {
		return nil, false, apperrors.ErrInvalidParticipants
	}
	n, err := tx.countUsers(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	if n != 2 {
		return nil, false, apperrors.ErrInvalidParticipants
	}

	low, high := models.NormalizePair(a, b)
	now := tx.now()
	res, err := tx.exec(ctx,
		`INSERT INTO conversations (user_low_id, user_high_id, last_seq, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT (user_low_id, user_high_id) DO NOTHING`,
		low, high, now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 1 {
		created = true
	}

	conv, err = scanConversation(tx.queryRow(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE user_low_id = ? AND user_high_id = ?",
		low, high,
	))
	if err != nil {
		return nil, false, err
	}
	return conv, created, nil
}

// GetConversation retrieves a conversation by its ID
func (s *Store) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	return getConversation(ctx, s.conn(), id)
}

// GetConversation retrieves a conversation by its ID within the transaction.
func (tx *Tx) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	return getConversation(ctx, tx.conn, id)
}

func getConversation(ctx context.Context, c conn, id int64) (*models.Conversation, error) {
	return scanConversation(c.queryRow(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE id = ?",
		id,
	))
}

func scanConversation(row *sql.Row) (*models.Conversation, error) {
	var (
		conv   models.Conversation
		lastID sql.NullInt64
		lastAt sql.NullTime
	)
	err := row.Scan(&conv.ID, &conv.UserLowID, &conv.UserHighID, &conv.LastSeq, &lastID, &lastAt, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrConversationMissing
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	conv.LastMessageID = nullInt(lastID)
	conv.LastMessageAt = nullTime(lastAt)
	return &conv, nil
}

// ListConversationSummaries returns every conversation userID takes part in,
// most recently active first, with the other participant, the last message
// and the count of unread messages written by the other participant.
func (s *Store) ListConversationSummaries(ctx context.Context, userID int64, page models.Page) ([]models.ConversationSummary, error) {
	page = page.Normalize()
	rows, err := s.conn().query(ctx,
		`SELECT c.id, c.created_at,
		        u.id, u.username, u.email, u.is_active, u.created_at,
		        m.id, m.seq, m.sender_id, m.content, m.is_read, m.read_at, m.created_at,
		        (SELECT COUNT(*) FROM messages um
		          WHERE um.conversation_id = c.id AND um.sender_id <> ? AND um.is_read = ?) AS unread_count
		FROM conversations c
		JOIN users u ON u.id = CASE WHEN c.user_low_id = ? THEN c.user_high_id ELSE c.user_low_id END
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE c.user_low_id = ? OR c.user_high_id = ?
		ORDER BY c.last_message_id IS NULL, c.last_message_at DESC, c.last_message_id DESC, c.id DESC
		LIMIT ? OFFSET ?`,
		userID, false, userID, userID, userID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select conversation summaries: %w", err)
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var (
			sum       models.ConversationSummary
			msgID     sql.NullInt64
			msgSeq    sql.NullInt64
			msgSender sql.NullInt64
			content   sql.NullString
			isRead    sql.NullBool
			readAt    sql.NullTime
			createdAt sql.NullTime
		)
		if err := rows.Scan(
			&sum.ID, &sum.CreatedAt,
			&sum.Participant.ID, &sum.Participant.Username, &sum.Participant.Email,
			&sum.Participant.IsActive, &sum.Participant.CreatedAt,
			&msgID, &msgSeq, &msgSender, &content, &isRead, &readAt, &createdAt,
			&sum.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		if msgID.Valid {
			receiver := userID
			if msgSender.Int64 == userID {
				receiver = sum.Participant.ID
			}
			sum.LastMessage = &models.Message{
				ID:             msgID.Int64,
				ConversationID: sum.ID,
				Seq:            msgSeq.Int64,
				SenderID:       msgSender.Int64,
				ReceiverID:     receiver,
				Content:        content.String,
				IsRead:         isRead.Bool,
				ReadAt:         nullTime(readAt),
				CreatedAt:      createdAt.Time,
			}
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation summaries: %w", err)
	}
	return summaries, nil
}
