package chat

import (
	"context"

	"courier/apperrors"
	"courier/models"
)

// ListConversations returns the user's conversations, most recently active
// first. Conversations without messages come last.
func (s *Service) ListConversations(ctx context.Context, userID int64, page models.Page) ([]models.ConversationSummary, error) {
	if userID <= 0 {
		return nil, apperrors.InvalidArg("invalid user id")
	}
	return s.store.ListConversationSummaries(ctx, userID, page)
}
