// Package chat implements two-party conversations: resolving the single
// conversation for a pair of users, appending to its ledger, tracking read
// state and building the per-user conversation list.
package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"courier/apperrors"
	"courier/database"
	"courier/metrics"
	"courier/models"
)

// MaxContentLength is the maximum message length in characters.
const MaxContentLength = 5000

// Notifier is told about every committed message. Implementations must not
// block and must not report failures back to the sender.
type Notifier interface {
	MessageSent(msg models.Message)
}

type nopNotifier struct{}

func (nopNotifier) MessageSent(models.Message) {}

// Service is the conversation core. All state lives in the store.
type Service struct {
	store    *database.Store
	notifier Notifier
	log      zerolog.Logger
}

// NewService creates the chat service. A nil notifier disables notifications.
func NewService(store *database.Store, notifier Notifier, log zerolog.Logger) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		store:    store,
		notifier: notifier,
		log:      log.With().Str("component", "chat").Logger(),
	}
}

// SendMessage delivers content from sender to receiver, creating their
// conversation on first contact. Resolution and append share one
// transaction, so a failed append never leaves an empty conversation behind.
//
// The receiver is notified after commit. ctx governs only the storage work:
// once the commit succeeds the send is successful whatever happens next.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID int64, content string) (*models.Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	var (
		msg     *models.Message
		created bool
	)
	err := s.store.InTx(ctx, func(tx *database.Tx) error {
		conv, isNew, err := tx.ResolveConversation(ctx, senderID, receiverID)
		if err != nil {
			return err
		}
		created = isNew
		msg, err = tx.AppendMessage(ctx, conv, senderID, content)
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		metrics.ConversationsCreatedTotal.Inc()
	}
	metrics.MessagesSentTotal.Inc()
	s.log.Debug().
		Int64("conversation_id", msg.ConversationID).
		Int64("message_id", msg.ID).
		Int64("seq", msg.Seq).
		Bool("new_conversation", created).
		Msg("message sent")

	s.notifier.MessageSent(*msg)
	return msg, nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperrors.ErrInvalidContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return apperrors.ErrContentTooLong
	}
	return nil
}
