package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"courier/apperrors"
)

// TokenType is the scheme clients put in the Authorization header.
const TokenType = "bearer"

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Tokens issues and verifies HS256 access tokens whose subject is the user id.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration, issuer string) *Tokens {
	return &Tokens{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue signs a token for userID.
func (t *Tokens) Issue(userID int64) (*Token, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, apperrors.Internal("failed to sign token", err)
	}
	return &Token{AccessToken: signed, TokenType: TokenType, ExpiresAt: expiresAt}, nil
}

// Parse verifies a token and returns the user id it was issued for.
func (t *Tokens) Parse(tokenString string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	keyFunc := func(*jwt.Token) (any, error) { return t.secret, nil }
	_, err := jwt.ParseWithClaims(tokenString, claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid or expired token", err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, apperrors.ErrInvalidToken
	}
	return userID, nil
}
