package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/comigor/concierge-go/internal/history"
)

func (s *Store) Upsert(ctx context.Context, id string, at time.Time) (string, error) {
	ts := formatTime(at)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = MAX(chat_sessions.updated_at, excluded.updated_at)`,
		id, ts, ts)
	if err != nil {
		return "", fmt.Errorf("upsert session %s: %w", id, err)
	}
	return id, nil
}

func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = MAX(updated_at, ?) WHERE id = ?`,
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Store) Get(ctx context.Context, id string) (history.Session, error) {
	var created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM chat_sessions WHERE id = ?`, id).
		Scan(&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Session{}, fmt.Errorf("get %s: %w", id, history.ErrNotFound)
	}
	if err != nil {
		return history.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}

	out := history.Session{ID: id}
	if out.CreatedAt, err = parseTime(created); err != nil {
		return history.Session{}, err
	}
	if out.UpdatedAt, err = parseTime(updated); err != nil {
		return history.Session{}, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Store) Append(ctx context.Context, msg history.Message) (history.Message, error) {
	if !msg.Role.Valid() {
		return history.Message{}, fmt.Errorf("append: invalid role %q", msg.Role)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.SessionID, string(msg.Role), msg.Content, formatTime(msg.CreatedAt))
	if err != nil {
		return history.Message{}, fmt.Errorf("append to %s: %w", msg.SessionID, err)
	}
	if msg.ID, err = res.LastInsertId(); err != nil {
		return history.Message{}, fmt.Errorf("append to %s: %w", msg.SessionID, err)
	}
	return msg, nil
}

// Recent reads newest-first with a limit and reverses into chronological order.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]history.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at
		  FROM chat_messages
		 WHERE session_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, sessionID, history.ClampWindow(limit))
	if err != nil {
		return nil, fmt.Errorf("recent %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []history.Message
	for rows.Next() {
		var (
			m       history.Message
			role    string
			created string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = history.Role(role)
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, history.ErrNotFound)
	}
	return nil
}
