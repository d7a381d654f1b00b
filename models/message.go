package models

import "time"

// Message is one entry in a conversation. ReceiverID is not stored; it is
// the participant of the conversation that is not the sender.
type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	Seq            int64      `json:"seq"`
	SenderID       int64      `json:"sender_id"`
	ReceiverID     int64      `json:"receiver_id"`
	Content        string     `json:"content"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Page bounds a listing. Offset is applied after ordering.
type Page struct {
	Offset int
	Limit  int
}

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 100
)

// Normalize clamps the page to the allowed range.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}
