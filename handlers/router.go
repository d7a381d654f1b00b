package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"courier/apperrors"
	"courier/auth"
	"courier/chat"
	"courier/metrics"
	"courier/middleware"
)

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP API is built on.
type Deps struct {
	Auth  *auth.Service
	Chat  *chat.Service
	Store Pinger
	Log   zerolog.Logger
}

// NewRouter wires every route.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(d.Log))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Code: apperrors.CodeNotFound, Message: "route not found"}})
	})

	authHandler := NewAuthHandler(d.Auth)
	messageHandler := NewMessageHandler(d.Chat)
	conversationHandler := NewConversationHandler(d.Chat)
	userHandler := NewUserHandler(d.Auth)

	r.HandleFunc("/health", health(d.Store)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/register", authHandler.Register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)

	// Protected routes
	api := r.NewRoute().Subrouter()
	api.Use(middleware.Auth(d.Auth, WriteError))

	api.HandleFunc("/auth/me", authHandler.Me).Methods(http.MethodGet)
	api.HandleFunc("/auth/me", authHandler.Deactivate).Methods(http.MethodDelete)

	api.HandleFunc("/users/search", userHandler.SearchUsers).Methods(http.MethodGet)

	api.HandleFunc("/messages", messageHandler.SendMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages", messageHandler.ListMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id:[0-9]+}", messageHandler.GetMessage).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id:[0-9]+}/read", messageHandler.MarkRead).Methods(http.MethodPatch)

	api.HandleFunc("/conversations", conversationHandler.ListConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id:[0-9]+}", conversationHandler.GetConversation).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id:[0-9]+}/messages", conversationHandler.ListMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id:[0-9]+}/read", conversationHandler.MarkRead).Methods(http.MethodPost)

	return r
}

func health(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "ok"})
	}
}
