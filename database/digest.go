package database

import (
	"context"
	"fmt"
)

// UnreadDigest is the unread state of one recipient across all conversations.
type UnreadDigest struct {
	RecipientID       int64
	RecipientUsername string
	RecipientEmail    string
	UnreadCount       int
	// SenderNames holds distinct sender usernames in order of first unread message.
	SenderNames []string
}

// ListUnreadDigests collects, for every active user with unread messages,
// how many are unread and who sent them.
func (s *Store) ListUnreadDigests(ctx context.Context) ([]UnreadDigest, error) {
	rows, err := s.conn().query(ctx,
		`SELECT r.id, r.username, r.email, su.username
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		JOIN users su ON su.id = m.sender_id
		JOIN users r ON r.id = CASE WHEN m.sender_id = c.user_low_id THEN c.user_high_id ELSE c.user_low_id END
		WHERE m.is_read = ? AND r.is_active = ?
		ORDER BY r.id, m.id`,
		false, true,
	)
	if err != nil {
		return nil, fmt.Errorf("select unread digest: %w", err)
	}
	defer rows.Close()

	var (
		digests []UnreadDigest
		seen    map[string]bool
	)
	for rows.Next() {
		var (
			recipientID             int64
			username, email, sender string
		)
		if err := rows.Scan(&recipientID, &username, &email, &sender); err != nil {
			return nil, fmt.Errorf("scan unread digest: %w", err)
		}
		if len(digests) == 0 || digests[len(digests)-1].RecipientID != recipientID {
			digests = append(digests, UnreadDigest{
				RecipientID:       recipientID,
				RecipientUsername: username,
				RecipientEmail:    email,
			})
			seen = map[string]bool{}
		}
		d := &digests[len(digests)-1]
		d.UnreadCount++
		if !seen[sender] {
			seen[sender] = true
			d.SenderNames = append(d.SenderNames, sender)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unread digest: %w", err)
	}
	return digests, nil
}
