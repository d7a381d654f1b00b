package chat

import (
	"context"

	"courier/database"
	"courier/metrics"
	"courier/models"
)

// Resolve returns the conversation between userA and userB, creating an
// empty one if the pair has never talked. Argument order does not matter.
func (s *Service) Resolve(ctx context.Context, userA, userB int64) (*models.Conversation, error) {
	var (
		conv    *models.Conversation
		created bool
	)
	err := s.store.InTx(ctx, func(tx *database.Tx) error {
		var err error
		conv, created, err = tx.ResolveConversation(ctx, userA, userB)
		return err
	})
	if err != nil {
		return nil, err
	}
	if created {
		metrics.ConversationsCreatedTotal.Inc()
	}
	return conv, nil
}

// GetConversation returns a conversation the requester takes part in.
func (s *Service) GetConversation(ctx context.Context, conversationID, requesterID int64) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(conv, requesterID); err != nil {
		return nil, err
	}
	return conv, nil
}
