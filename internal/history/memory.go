package history

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory keeps sessions and messages in process memory. It is safe for
// concurrent use.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]Session
	messages []Message
	nextID   int64
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]Session)}
}

func (m *Memory) Upsert(_ context.Context, id string, at time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		m.sessions[id] = Session{ID: id, CreatedAt: at, UpdatedAt: at}
		return id, nil
	}
	if at.After(s.UpdatedAt) {
		s.UpdatedAt = at
		m.sessions[id] = s
	}
	return id, nil
}

func (m *Memory) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("touch %s: %w", id, ErrNotFound)
	}
	if at.After(s.UpdatedAt) {
		s.UpdatedAt = at
		m.sessions[id] = s
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (m *Memory) Append(_ context.Context, msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[msg.SessionID]; !ok {
		return Message{}, fmt.Errorf("append to %s: %w", msg.SessionID, ErrNotFound)
	}
	if !msg.Role.Valid() {
		return Message{}, fmt.Errorf("append: invalid role %q", msg.Role)
	}
	m.nextID++
	msg.ID = m.nextID
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *Memory) Recent(_ context.Context, sessionID string, limit int) ([]Message, error) {
	limit = ClampWindow(limit)

	m.mu.Lock()
	var out []Message
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	m.mu.Unlock()

	SortChronological(out)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Delete removes a session and, transitively, its messages.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(m.sessions, id)
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.SessionID != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}
