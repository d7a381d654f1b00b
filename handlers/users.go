package handlers

import (
	"net/http"

	"courier/auth"
	"courier/middleware"
)

// UserHandler serves the user directory.
type UserHandler struct {
	auth *auth.Service
}

func NewUserHandler(authService *auth.Service) *UserHandler {
	return &UserHandler{auth: authService}
}

// SearchUsers searches for users by username
func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	users, err := h.auth.SearchUsers(r.Context(), user.ID, r.URL.Query().Get("q"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
