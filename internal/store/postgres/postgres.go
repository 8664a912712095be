// Package postgres persists chat history and surveys in PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comigor/concierge-go/internal/history"
	"github.com/comigor/concierge-go/internal/logger"
	"github.com/comigor/concierge-go/internal/survey"
)

// Store implements history.Store and survey.Store.
type Store struct {
	db *pgxpool.Pool
}

var (
	_ history.Store = (*Store)(nil)
	_ survey.Store  = (*Store)(nil)
)

// Open connects a pool to url and applies migrations.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := New(pool)
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.L.Info("postgres store ready")
	return s, nil
}

// New wraps an existing pool without migrating.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session_created
		ON chat_messages(session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS members (
		id BIGSERIAL PRIMARY KEY,
		external_id TEXT UNIQUE,
		display_name TEXT,
		avatar_url TEXT,
		gender TEXT,
		birthday TEXT,
		email TEXT,
		phone TEXT,
		source TEXT,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ,
		last_interaction_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS surveys (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		category TEXT,
		is_active BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS survey_questions (
		id BIGSERIAL PRIMARY KEY,
		survey_id BIGINT NOT NULL REFERENCES surveys(id) ON DELETE CASCADE,
		question_type TEXT NOT NULL,
		question_text TEXT NOT NULL,
		description TEXT,
		font_size INTEGER,
		options_json TEXT,
		is_required BOOLEAN DEFAULT FALSE,
		display_order INTEGER DEFAULT 0,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS survey_responses (
		id BIGSERIAL PRIMARY KEY,
		survey_id BIGINT NOT NULL REFERENCES surveys(id) ON DELETE CASCADE,
		member_id BIGINT REFERENCES members(id) ON DELETE SET NULL,
		external_id TEXT,
		answers_json TEXT NOT NULL,
		is_completed BOOLEAN DEFAULT TRUE,
		completed_at TIMESTAMPTZ,
		source TEXT,
		ip_address TEXT,
		user_agent TEXT,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}
