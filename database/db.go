package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"courier/config"
)

// Store is the persistence layer. It is the only shared mutable resource of
// the service: every uniqueness and ordering rule is enforced here, by
// constraints and transactions, never by in-process locks.
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
	log     zerolog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for created_at/updated_at/read_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type dialect struct {
	driver string
	schema string
	// numbered reports whether the driver wants $1-style placeholders.
	numbered bool
	// uniqueColumn extracts the violated column from a unique-constraint error.
	uniqueColumn func(err error) (string, bool)
}

var sqliteDialect = dialect{
	driver:       config.DriverSQLite,
	schema:       sqliteSchema,
	uniqueColumn: sqliteUniqueColumn,
}

// Open connects to the configured database, tunes the pool and creates the
// schema.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*Store, error) {
	var (
		d   dialect
		dsn = cfg.DatabaseURL
	)
	switch cfg.DBDriver {
	case config.DriverSQLite:
		d = sqliteDialect
		dsn = sqliteDSN(dsn)
	case config.DriverPostgres:
		d = postgresDialect
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:      db,
		dialect: d,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log.With().Str("component", "store").Str("driver", d.driver).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	s.log.Info().Msg("Database initialized successfully")
	return s, nil
}

// sqliteDSN appends the pragmas the store relies on: WAL so readers do not
// block the writer, a busy timeout so concurrent writers queue, immediate
// transactions so a transaction takes the write lock up front, and foreign keys.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_txlock=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + sep + "_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on"
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) createTables(ctx context.Context) error {
	for _, stmt := range strings.Split(s.dialect.schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_low_id INTEGER NOT NULL REFERENCES users(id),
	user_high_id INTEGER NOT NULL REFERENCES users(id),
	last_seq INTEGER NOT NULL DEFAULT 0,
	last_message_id INTEGER,
	last_message_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	CHECK (user_low_id < user_high_id),
	UNIQUE (user_low_id, user_high_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	seq INTEGER NOT NULL,
	sender_id INTEGER NOT NULL REFERENCES users(id),
	content TEXT NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT 0,
	read_at DATETIME,
	created_at DATETIME NOT NULL,
	UNIQUE (conversation_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_conversations_high ON conversations(user_high_id);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, is_read, sender_id);
`

func sqliteUniqueColumn(err error) (string, bool) {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return "", false
	}
	// "UNIQUE constraint failed: users.username"
	msg := sqliteErr.Error()
	if i := strings.LastIndex(msg, "."); i >= 0 {
		return msg[i+1:], true
	}
	return "", true
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn binds an execer to the dialect so queries can be written once with
// '?' placeholders.
type conn struct {
	ex execer
	d  dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.ex.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.ex.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.ex.QueryRowContext(ctx, c.d.rebind(query), args...)
}

func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

func (s *Store) conn() conn {
	return conn{ex: s.db, d: s.dialect}
}

// Tx is a unit of work. Operations that must be observed together
// (conversation resolution, message insert, last-message pointer) run on a Tx.
type Tx struct {
	conn
	now func() time.Time
}

// InTx runs fn in a transaction, committing if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := &Tx{conn: conn{ex: sqlTx, d: s.dialect}, now: s.now}

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
