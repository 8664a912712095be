package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/comigor/concierge-go/internal/history"
)

const upsertSessionSQL = `
	INSERT INTO chat_sessions (id, created_at, updated_at) VALUES ($1, $2, $2)
	ON CONFLICT (id) DO UPDATE SET updated_at = GREATEST(chat_sessions.updated_at, EXCLUDED.updated_at)`

const touchSessionSQL = `UPDATE chat_sessions SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`

const getSessionSQL = `SELECT created_at, updated_at FROM chat_sessions WHERE id = $1`

const deleteSessionSQL = `DELETE FROM chat_sessions WHERE id = $1`

const appendMessageSQL = `
	INSERT INTO chat_messages (session_id, role, content, created_at)
	VALUES ($1, $2, $3, $4) RETURNING id`

// recentMessagesSQL reads newest-first; callers reverse into chronological order.
const recentMessagesSQL = `
	SELECT id, session_id, role, content, created_at
	  FROM chat_messages
	 WHERE session_id = $1
	 ORDER BY created_at DESC, id DESC
	 LIMIT $2`

func (s *Store) Upsert(ctx context.Context, id string, at time.Time) (string, error) {
	if _, err := s.db.Exec(ctx, upsertSessionSQL, id, at.UTC()); err != nil {
		return "", fmt.Errorf("upsert session %s: %w", id, err)
	}
	return id, nil
}

func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx, touchSessionSQL, id, at.UTC())
	if err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	return requireRow(tag, id)
}

func (s *Store) Get(ctx context.Context, id string) (history.Session, error) {
	out := history.Session{ID: id}
	err := s.db.QueryRow(ctx, getSessionSQL, id).Scan(&out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Session{}, fmt.Errorf("get %s: %w", id, history.ErrNotFound)
	}
	if err != nil {
		return history.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	out.CreatedAt = out.CreatedAt.UTC()
	out.UpdatedAt = out.UpdatedAt.UTC()
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, deleteSessionSQL, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return requireRow(tag, id)
}

func (s *Store) Append(ctx context.Context, msg history.Message) (history.Message, error) {
	if !msg.Role.Valid() {
		return history.Message{}, fmt.Errorf("append: invalid role %q", msg.Role)
	}
	err := s.db.QueryRow(ctx, appendMessageSQL, msg.SessionID, string(msg.Role), msg.Content, msg.CreatedAt.UTC()).
		Scan(&msg.ID)
	if err != nil {
		return history.Message{}, fmt.Errorf("append to %s: %w", msg.SessionID, err)
	}
	return msg, nil
}

func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]history.Message, error) {
	rows, err := s.db.Query(ctx, recentMessagesSQL, sessionID, history.ClampWindow(limit))
	if err != nil {
		return nil, fmt.Errorf("recent %s: %w", sessionID, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Message, error) {
		var (
			m    history.Message
			role string
		)
		err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt)
		m.Role = history.Role(role)
		m.CreatedAt = m.CreatedAt.UTC()
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func requireRow(tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, history.ErrNotFound)
	}
	return nil
}
