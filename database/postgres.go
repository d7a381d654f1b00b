package database

import (
	"errors"
	"strings"

	"github.com/lib/pq"

	"courier/config"
)

var postgresDialect = dialect{
	driver:       config.DriverPostgres,
	schema:       postgresSchema,
	numbered:     true,
	uniqueColumn: postgresUniqueColumn,
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id BIGSERIAL PRIMARY KEY,
	user_low_id BIGINT NOT NULL REFERENCES users(id),
	user_high_id BIGINT NOT NULL REFERENCES users(id),
	last_seq BIGINT NOT NULL DEFAULT 0,
	last_message_id BIGINT,
	last_message_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT conversations_pair_ordered CHECK (user_low_id < user_high_id),
	CONSTRAINT conversations_pair_key UNIQUE (user_low_id, user_high_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	conversation_id BIGINT NOT NULL REFERENCES conversations(id),
	seq BIGINT NOT NULL,
	sender_id BIGINT NOT NULL REFERENCES users(id),
	content TEXT NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	read_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT messages_conversation_seq_key UNIQUE (conversation_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_conversations_high ON conversations(user_high_id);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, is_read, sender_id);
`

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = pq.ErrorCode("23505")

func postgresUniqueColumn(err error) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return "", false
	}
	// Default constraint names look like users_username_key.
	name := strings.TrimSuffix(pqErr.Constraint, "_key")
	if i := strings.Index(name, "_"); i >= 0 {
		return name[i+1:], true
	}
	return name, true
}
