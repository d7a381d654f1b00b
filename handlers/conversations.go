package handlers

import (
	"net/http"

	"courier/chat"
	"courier/middleware"
)

// ConversationHandler serves conversation listings and reads.
type ConversationHandler struct {
	chat *chat.Service
}

func NewConversationHandler(chatService *chat.Service) *ConversationHandler {
	return &ConversationHandler{chat: chatService}
}

// ListConversations returns all conversations for the current user
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	page, err := pageFromQuery(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	summaries, err := h.chat.ListConversations(r.Context(), user.ID, page)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	conv, err := h.chat.GetConversation(r.Context(), id, user.ID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ListMessages returns a page of a conversation's messages, oldest first
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	messages, err := h.chat.ListMessages(r.Context(), id, user.ID, page)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// MarkRead marks everything the other participant sent as read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	marked, err := h.chat.MarkRead(r.Context(), id, user.ID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": marked})
}
