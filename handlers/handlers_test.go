package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/apperrors"
	"courier/auth"
	"courier/chat"
	"courier/config"
	"courier/database"
	"courier/models"
)

type testServer struct {
	t      *testing.T
	router http.Handler
	store  *database.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		DBDriver:       config.DriverSQLite,
		DatabaseURL:    filepath.Join(t.TempDir(), "api.db"),
		DBMaxOpenConns: 4,
		DBConnLifetime: time.Minute,
	}
	store, err := database.Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	authService := auth.NewService(store, auth.NewTokens("test-secret", time.Hour, "courier"), nil, zerolog.Nop())
	chatService := chat.NewService(store, nil, zerolog.Nop())
	return &testServer{
		t:     t,
		store: store,
		router: NewRouter(Deps{
			Auth:  authService,
			Chat:  chatService,
			Store: store,
			Log:   zerolog.Nop(),
		}),
	}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// signup registers a user and returns its id and an access token.
func (s *testServer) signup(name string) (int64, string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": name,
		"email":    name + "@example.com",
		"password": "Secret123",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var profile models.UserProfile
	decode(s.t, rec, &profile)

	rec = s.do(http.MethodPost, "/auth/login", "", map[string]string{"username": name, "password": "Secret123"})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var token auth.Token
	decode(s.t, rec, &token)
	return profile.ID, token.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) apperrors.Code {
	t.Helper()
	var body errorBody
	decode(t, rec, &body)
	return body.Error.Code
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	aliceID, token := s.signup("alice")

	rec := s.do(http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]any
	decode(t, rec, &me)
	assert.Equal(t, float64(aliceID), me["id"])
	assert.NotContains(t, me, "password_hash")

	rec = s.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "Secret123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.CodeAlreadyExists, errorCode(t, rec))

	rec = s.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "weak",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "Wrong1234"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperrors.CodeUnauthenticated, errorCode(t, rec))

	rec = s.do(http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_FormEncoded(t *testing.T) {
	s := newTestServer(t)
	s.signup("alice")

	form := url.Values{"username": {"alice@example.com"}, "password": {"Secret123"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var token auth.Token
	decode(t, rec, &token)
	assert.Equal(t, "bearer", token.TokenType)
	assert.NotEmpty(t, token.AccessToken)
}

func TestLogin_InactiveUserIsForbidden(t *testing.T) {
	s := newTestServer(t)
	id, _ := s.signup("alice")
	require.NoError(t, s.store.SetUserActive(context.Background(), id, false))

	rec := s.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "Secret123"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeactivateAccount(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signup("alice")

	rec := s.do(http.MethodDelete, "/auth/me", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "Secret123"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSearchUsers(t *testing.T) {
	s := newTestServer(t)
	_, aliceToken := s.signup("alice")
	aliciaID, _ := s.signup("alicia")
	s.signup("bob")

	rec := s.do(http.MethodGet, "/users/search?q=ali", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var found []models.UserProfile
	decode(t, rec, &found)
	require.Len(t, found, 1)
	assert.Equal(t, aliciaID, found[0].ID)

	rec = s.do(http.MethodPost, "/messages", aliceToken, map[string]any{"receiver_id": found[0].ID, "content": "found you"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, "/users/search", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/users/search?q=ali", "", nil).Code)
}

func TestListUserMessages(t *testing.T) {
	s := newTestServer(t)
	aliceID, aliceToken := s.signup("alice")
	bobID, bobToken := s.signup("bob")
	carolID, carolToken := s.signup("carol")

	send := func(token string, to int64, content string) models.Message {
		t.Helper()
		rec := s.do(http.MethodPost, "/messages", token, map[string]any{"receiver_id": to, "content": content})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var msg models.Message
		decode(t, rec, &msg)
		return msg
	}
	toBob := send(aliceToken, bobID, "to bob")
	toCarol := send(aliceToken, carolID, "to carol")
	fromBob := send(bobToken, aliceID, "reply")

	rec := s.do(http.MethodGet, "/messages", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []models.Message
	decode(t, rec, &msgs)
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{fromBob.ID, toCarol.ID, toBob.ID}, []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID})

	rec = s.do(http.MethodGet, fmt.Sprintf("/messages?conversation_id=%d&limit=1", toBob.ConversationID), aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &msgs)
	require.Len(t, msgs, 1)
	assert.Equal(t, fromBob.ID, msgs[0].ID)

	rec = s.do(http.MethodGet, fmt.Sprintf("/messages?conversation_id=%d", toBob.ConversationID), carolToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/messages?conversation_id=9999", aliceToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/messages?conversation_id=abc", aliceToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/messages?limit=101", aliceToken, nil).Code)
}

func TestRequestBodyLimit(t *testing.T) {
	s := newTestServer(t)
	_, aliceToken := s.signup("alice")
	bobID, _ := s.signup("bob")

	body := fmt.Sprintf(`{"receiver_id":%d,"content":"%s"}`, bobID, strings.Repeat("a", maxBodyBytes))
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody errorBody
	decode(t, rec, &errBody)
	assert.Equal(t, "request body too large", errBody.Error.Message)

	rec = s.do(http.MethodGet, "/conversations", aliceToken, nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestMessagingScenario(t *testing.T) {
	s := newTestServer(t)
	aliceID, aliceToken := s.signup("alice")
	bobID, bobToken := s.signup("bob")
	_, carolToken := s.signup("carol")

	rec := s.do(http.MethodPost, "/messages", aliceToken, map[string]any{"receiver_id": bobID, "content": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var msg models.Message
	decode(t, rec, &msg)
	assert.Equal(t, aliceID, msg.SenderID)
	assert.Equal(t, bobID, msg.ReceiverID)
	assert.False(t, msg.IsRead)

	rec = s.do(http.MethodGet, "/conversations", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.ConversationSummary
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, aliceID, list[0].Participant.ID)
	assert.Equal(t, "hi", list[0].LastMessage.Content)
	assert.Equal(t, 1, list[0].UnreadCount)

	convPath := fmt.Sprintf("/conversations/%d", msg.ConversationID)

	rec = s.do(http.MethodGet, convPath+"/messages", carolToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperrors.CodeForbidden, errorCode(t, rec))

	rec = s.do(http.MethodGet, convPath+"/messages?skip=0&limit=10", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []models.Message
	decode(t, rec, &msgs)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)

	rec = s.do(http.MethodPost, convPath+"/read", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked":1}`, rec.Body.String())

	rec = s.do(http.MethodPost, convPath+"/read", bobToken, nil)
	assert.JSONEq(t, `{"marked":0}`, rec.Body.String())

	rec = s.do(http.MethodGet, convPath, aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var conv models.Conversation
	decode(t, rec, &conv)
	require.NotNil(t, conv.LastMessageID)
	assert.Equal(t, msg.ID, *conv.LastMessageID)

	rec = s.do(http.MethodGet, "/conversations/9999", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessage_Errors(t *testing.T) {
	s := newTestServer(t)
	aliceID, aliceToken := s.signup("alice")
	bobID, _ := s.signup("bob")

	tests := []struct {
		name   string
		body   any
		status int
		code   apperrors.Code
	}{
		{"self", map[string]any{"receiver_id": aliceID, "content": "x"}, http.StatusBadRequest, apperrors.CodeInvalidParticipants},
		{"unknown receiver", map[string]any{"receiver_id": 9999, "content": "x"}, http.StatusBadRequest, apperrors.CodeInvalidParticipants},
		{"blank content", map[string]any{"receiver_id": bobID, "content": "   "}, http.StatusBadRequest, apperrors.CodeInvalidContent},
		{"too long", map[string]any{"receiver_id": bobID, "content": strings.Repeat("a", chat.MaxContentLength+1)}, http.StatusBadRequest, apperrors.CodeInvalidContent},
		{"missing receiver", map[string]any{"content": "x"}, http.StatusBadRequest, apperrors.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/messages", aliceToken, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/conversations", aliceToken, nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestMessageEndpoints(t *testing.T) {
	s := newTestServer(t)
	_, aliceToken := s.signup("alice")
	bobID, bobToken := s.signup("bob")
	_, carolToken := s.signup("carol")

	rec := s.do(http.MethodPost, "/messages", aliceToken, map[string]any{"receiver_id": bobID, "content": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.Message
	decode(t, rec, &msg)
	path := fmt.Sprintf("/messages/%d", msg.ID)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, bobToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, path, carolToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/messages/9999", bobToken, nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, path+"/read", aliceToken, nil).Code)

	rec = s.do(http.MethodPatch, path+"/read", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var read models.Message
	decode(t, rec, &read)
	assert.True(t, read.IsRead)
	assert.NotNil(t, read.ReadAt)
}

func TestPagination(t *testing.T) {
	s := newTestServer(t)
	_, aliceToken := s.signup("alice")

	for _, q := range []string{"skip=-1", "limit=0", "limit=101", "limit=abc"} {
		rec := s.do(http.MethodGet, "/conversations?"+q, aliceToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/conversations?skip=5&limit=100", aliceToken, nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","database":"ok"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth_DatabaseDown(t *testing.T) {
	rec := httptest.NewRecorder()
	health(downStore{})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteError_MasksInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"INTERNAL","message":"internal server error"}}`, rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := map[apperrors.Code]int{
		apperrors.CodeInvalidArgument:     http.StatusBadRequest,
		apperrors.CodeInvalidParticipants: http.StatusBadRequest,
		apperrors.CodeInvalidContent:      http.StatusBadRequest,
		apperrors.CodeUnauthenticated:     http.StatusUnauthorized,
		apperrors.CodeForbidden:           http.StatusForbidden,
		apperrors.CodeNotFound:            http.StatusNotFound,
		apperrors.CodeAlreadyExists:       http.StatusConflict,
		apperrors.CodeNotificationFailure: http.StatusInternalServerError,
		apperrors.CodeInternal:            http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), string(code))
	}
}
