package handlers

import (
	"net/http"
	"strings"

	"courier/auth"
	"courier/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthHandler serves registration, login and the current profile.
type AuthHandler struct {
	auth *auth.Service
}

func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user.ToProfile())
}

// Login handles user authentication. It accepts a JSON body or an OAuth2
// password-grant form; username may also be an email address.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		limitBody(w, r)
		if err := r.ParseForm(); err != nil {
			WriteError(w, r, errInvalidBody)
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// Me returns the current authenticated user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	writeJSON(w, http.StatusOK, user.ToProfile())
}

// Deactivate disables the current user's account
func (h *AuthHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if err := h.auth.Deactivate(r.Context(), user.ID); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
