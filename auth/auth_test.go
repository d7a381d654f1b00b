package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/apperrors"
	"courier/config"
	"courier/database"
	"courier/models"
)

type welcomeRecorder struct {
	mu    sync.Mutex
	users []models.User
}

func (w *welcomeRecorder) UserRegistered(u models.User) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.users = append(w.users, u)
}

func newTestService(t *testing.T) (*Service, *database.Store, *welcomeRecorder) {
	t.Helper()
	cfg := &config.Config{
		DBDriver:       config.DriverSQLite,
		DatabaseURL:    filepath.Join(t.TempDir(), "auth.db"),
		DBMaxOpenConns: 4,
	}
	store, err := database.Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	welcomes := &welcomeRecorder{}
	svc := NewService(store, NewTokens("test-secret", time.Hour, "courier"), welcomes, zerolog.Nop())
	return svc, store, welcomes
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123", hash)

	ok, err := CheckPassword(hash, "Secret123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword(hash, "secret123")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = CheckPassword("not-a-hash", "Secret123")
	assert.Error(t, err)
}

func TestTokens(t *testing.T) {
	tokens := NewTokens("test-secret", time.Minute, "courier")

	tok, err := tokens.Issue(42)
	require.NoError(t, err)
	assert.Equal(t, TokenType, tok.TokenType)

	id, err := tokens.Parse(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokens("other", time.Minute, "courier").Parse(tok.AccessToken)
		assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))
	})

	t.Run("expired", func(t *testing.T) {
		late := NewTokens("test-secret", time.Minute, "courier")
		late.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		_, err := late.Parse(tok.AccessToken)
		assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))
	})

	t.Run("other algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "42",
			Issuer:    "courier",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tokens.Parse(unsigned)
		assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Parse("not.a.token")
		assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))
	})
}

func TestRegister(t *testing.T) {
	svc, _, welcomes := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Username: "  alice ", Email: "Alice@Example.COM", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "Secret123", user.PasswordHash)
	require.Len(t, welcomes.users, 1)
	assert.Equal(t, user.ID, welcomes.users[0].ID)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "other@example.com", Password: "Secret123"})
	assert.ErrorIs(t, err, apperrors.ErrUsernameTaken)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice2", Email: "alice@example.com", Password: "Secret123"})
	assert.ErrorIs(t, err, apperrors.ErrEmailTaken)
	assert.Len(t, welcomes.users, 1)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)

	tests := []struct {
		name    string
		in      RegisterInput
		message string
	}{
		{"short username", RegisterInput{"al", "al@example.com", "Secret123"}, "username must be at least 3 characters"},
		{"long username", RegisterInput{string(make([]byte, 51)), "x@example.com", "Secret123"}, ""},
		{"bad email", RegisterInput{"alice", "not-an-email", "Secret123"}, "invalid email address"},
		{"short password", RegisterInput{"alice", "alice@example.com", "Se1"}, "password must be at least 8 characters"},
		{"no digit", RegisterInput{"alice", "alice@example.com", "SecretPass"}, "password must contain at least one digit and one uppercase letter"},
		{"no uppercase", RegisterInput{"alice", "alice@example.com", "secret123"}, "password must contain at least one digit and one uppercase letter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
			if tt.message != "" {
				assert.EqualError(t, err, tt.message)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "Secret123"})
	require.NoError(t, err)

	for _, identifier := range []string{"alice", "ALICE@example.com"} {
		tok, err := svc.Login(ctx, identifier, "Secret123")
		require.NoError(t, err, identifier)

		authed, err := svc.Authenticate(ctx, tok.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID, authed.ID)
	}

	_, err = svc.Login(ctx, "alice", "Wrong1234")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "Secret123")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	tok, err := svc.Login(ctx, "alice", "Secret123")
	require.NoError(t, err)

	require.NoError(t, store.SetUserActive(ctx, user.ID, false))
	_, err = svc.Login(ctx, "alice", "Secret123")
	assert.ErrorIs(t, err, apperrors.ErrInactiveUser)

	_, err = svc.Authenticate(ctx, tok.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrInactiveUser)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	tok, err := svc.tokens.Issue(999)
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), tok.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestDeactivate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "Secret123"})
	require.NoError(t, err)
	tok, err := svc.Login(ctx, "alice", "Secret123")
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, user.ID))

	_, err = svc.Authenticate(ctx, tok.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrInactiveUser)
	_, err = svc.Login(ctx, "alice", "Secret123")
	assert.ErrorIs(t, err, apperrors.ErrInactiveUser)

	assert.ErrorIs(t, svc.Deactivate(ctx, 999), apperrors.ErrUserNotFound)
}

func TestSearchUsers(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	var ids []int64
	for _, name := range []string{"alice", "alicia", "bob"} {
		u, err := svc.Register(ctx, RegisterInput{Username: name, Email: name + "@example.com", Password: "Secret123"})
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}

	found, err := svc.SearchUsers(ctx, ids[0], " ali ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alicia", found[0].Username)

	found, err = svc.SearchUsers(ctx, ids[0], "   ")
	require.NoError(t, err)
	assert.NotNil(t, found)
	assert.Empty(t, found)
}
