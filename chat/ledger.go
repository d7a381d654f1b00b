package chat

import (
	"context"

	"courier/apperrors"
	"courier/database"
	"courier/metrics"
	"courier/models"
)

// Append adds a message from senderID to an existing conversation.
// Content is checked first, then existence, then participation.
func (s *Service) Append(ctx context.Context, conversationID, senderID int64, content string) (*models.Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	var msg *models.Message
	err := s.store.InTx(ctx, func(tx *database.Tx) error {
		conv, err := tx.GetConversation(ctx, conversationID)
		if err != nil {
			return err
		}
		if err := requireParticipant(conv, senderID); err != nil {
			return err
		}
		msg, err = tx.AppendMessage(ctx, conv, senderID, content)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.MessagesSentTotal.Inc()
	s.notifier.MessageSent(*msg)
	return msg, nil
}

// MarkRead marks every message the other participant wrote as read and
// returns how many changed. Calling it again returns 0.
func (s *Service) MarkRead(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	if _, err := s.GetConversation(ctx, conversationID, viewerID); err != nil {
		return 0, err
	}
	return s.store.MarkConversationRead(ctx, conversationID, viewerID)
}

// ListMessages returns a page of the conversation, oldest first.
func (s *Service) ListMessages(ctx context.Context, conversationID, requesterID int64, page models.Page) ([]models.Message, error) {
	conv, err := s.GetConversation(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conv, page)
}

// ListUserMessages returns messages the user sent or received across all
// conversations, newest first. A non-nil conversationID must name a
// conversation the user takes part in.
func (s *Service) ListUserMessages(ctx context.Context, userID int64, conversationID *int64, page models.Page) ([]models.Message, error) {
	if userID <= 0 {
		return nil, apperrors.InvalidArg("invalid user id")
	}
	if conversationID != nil {
		if _, err := s.GetConversation(ctx, *conversationID, userID); err != nil {
			return nil, err
		}
	}
	return s.store.ListUserMessages(ctx, userID, conversationID, page)
}

// GetMessage returns a single message visible to requesterID.
func (s *Service) GetMessage(ctx context.Context, messageID, requesterID int64) (*models.Message, error) {
	msg, conv, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(conv, requesterID); err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkMessageRead marks one message read. Only its receiver may do so.
func (s *Service) MarkMessageRead(ctx context.Context, messageID, viewerID int64) (*models.Message, error) {
	msg, conv, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(conv, viewerID); err != nil {
		return nil, err
	}
	if msg.ReceiverID != viewerID {
		return nil, apperrors.ErrNotReceiver
	}
	if msg.IsRead {
		return msg, nil
	}

	readAt, err := s.store.MarkMessageRead(ctx, messageID)
	if err != nil {
		return nil, err
	}
	msg.IsRead = true
	msg.ReadAt = readAt
	return msg, nil
}

func requireParticipant(conv *models.Conversation, userID int64) error {
	if !conv.HasParticipant(userID) {
		return apperrors.ErrNotParticipant
	}
	return nil
}
