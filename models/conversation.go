package models

import "time"

// Conversation is the single thread between an unordered pair of users.
// The pair is stored normalized: UserLowID < UserHighID.
type Conversation struct {
	ID            int64      `json:"id"`
	UserLowID     int64      `json:"user1_id"`
	UserHighID    int64      `json:"user2_id"`
	LastSeq       int64      `json:"-"`
	LastMessageID *int64     `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NormalizePair orders two user ids so the smaller comes first.
func NormalizePair(a, b int64) (low, high int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.UserLowID == userID || c.UserHighID == userID
}

// Other returns the participant that is not userID. The caller must have
// checked HasParticipant.
func (c *Conversation) Other(userID int64) int64 {
	if c.UserLowID == userID {
		return c.UserHighID
	}
	return c.UserLowID
}

// ConversationSummary is a conversation as listed for one of its participants
type ConversationSummary struct {
	ID          int64       `json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	Participant UserProfile `json:"participant"`
	LastMessage *Message    `json:"last_message"`
	UnreadCount int         `json:"unread_count"`
}
