package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"courier/apperrors"
	"courier/chat"
	"courier/middleware"
)

type sendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id" validate:"required"`
	Content    string `json:"content"`
}

// MessageHandler serves single-message endpoints.
type MessageHandler struct {
	chat     *chat.Service
	validate *validator.Validate
}

func NewMessageHandler(chatService *chat.Service) *MessageHandler {
	return &MessageHandler{
		chat:     chatService,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// SendMessage creates a new message, starting the conversation on first contact
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteError(w, r, apperrors.InvalidArg("receiver_id is required"))
		return
	}

	msg, err := h.chat.SendMessage(r.Context(), user.ID, req.ReceiverID, req.Content)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// ListMessages returns the user's messages across conversations, newest
// first, optionally narrowed to one conversation_id.
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	page, err := pageFromQuery(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var conversationID *int64
	if raw := r.URL.Query().Get("conversation_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			WriteError(w, r, apperrors.InvalidArg("invalid conversation_id"))
			return
		}
		conversationID = &id
	}

	messages, err := h.chat.ListUserMessages(r.Context(), user.ID, conversationID, page)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// GetMessage returns a message from one of the user's conversations
func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	msg, err := h.chat.GetMessage(r.Context(), id, user.ID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// MarkRead marks a received message as read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	msg, err := h.chat.MarkMessageRead(r.Context(), id, user.ID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
