// Package sqlite persists chat history and surveys in SQLite using the
// cgo-free glebarez driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/concierge-go/internal/history"
	"github.com/comigor/concierge-go/internal/logger"
	"github.com/comigor/concierge-go/internal/survey"
)

// Timestamps are stored as fixed-width UTC text so that string order is
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// Store implements history.Store and survey.Store.
type Store struct {
	db *sql.DB
}

var (
	_ history.Store = (*Store)(nil)
	_ survey.Store  = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and applies migrations.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.L.Info("sqlite store ready", "path", path)
	return s, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session_created
		ON chat_messages(session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT UNIQUE,
		display_name TEXT,
		avatar_url TEXT,
		gender TEXT,
		birthday TEXT,
		email TEXT,
		phone TEXT,
		source TEXT,
		created_at TEXT,
		updated_at TEXT,
		last_interaction_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS surveys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT,
		category TEXT,
		is_active INTEGER DEFAULT 1,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS survey_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		survey_id INTEGER NOT NULL REFERENCES surveys(id) ON DELETE CASCADE,
		question_type TEXT NOT NULL,
		question_text TEXT NOT NULL,
		description TEXT,
		font_size INTEGER,
		options_json TEXT,
		is_required INTEGER DEFAULT 0,
		display_order INTEGER DEFAULT 0,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS survey_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		survey_id INTEGER NOT NULL REFERENCES surveys(id) ON DELETE CASCADE,
		member_id INTEGER REFERENCES members(id) ON DELETE SET NULL,
		external_id TEXT,
		answers_json TEXT NOT NULL,
		is_completed INTEGER DEFAULT 1,
		completed_at TEXT,
		source TEXT,
		ip_address TEXT,
		user_agent TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying handle for ad-hoc queries and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}
