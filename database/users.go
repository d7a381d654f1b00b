package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"courier/apperrors"
	"courier/models"
)

const userColumns = "id, username, email, password_hash, is_active, created_at, updated_at"

// User queries

// CreateUser inserts a new user. A taken username or email is reported as
// ErrUsernameTaken or ErrEmailTaken.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	now := s.now()
	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.conn().queryRow(ctx,
		`INSERT INTO users (username, email, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		username, email, passwordHash, true, now, now,
	).Scan(&user.ID)
	if err != nil {
		if column, ok := s.dialect.uniqueColumn(err); ok {
			if column == "email" {
				return nil, apperrors.ErrEmailTaken
			}
			return nil, apperrors.ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByUsername retrieves a user by their username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

// GetUserByEmail retrieves a user by their email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	err := s.conn().queryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+where,
		arg,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

// SearchUsers finds active users whose username contains query, ignoring
// case. excludeID is left out of the results.
func (s *Store) SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]models.User, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	rows, err := s.conn().query(ctx,
		"SELECT "+userColumns+` FROM users
		WHERE LOWER(username) LIKE ? ESCAPE '\' AND id <> ? AND is_active = ?
		ORDER BY username
		LIMIT ?`,
		pattern, excludeID, true, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// SetUserActive enables or disables an account.
func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := s.conn().exec(ctx,
		"UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?",
		active, s.now(), id,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// countUsers returns how many of the given ids exist.
func (tx *Tx) countUsers(ctx context.Context, a, b int64) (int, error) {
	var n int
	err := tx.queryRow(ctx, "SELECT COUNT(*) FROM users WHERE id IN (?, ?)", a, b).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
