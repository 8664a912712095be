// Package history defines the session store and message log used by the chat
// relay, plus an in-memory implementation.
package history

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("history: session not found")

// DefaultWindow is the number of recent messages fed back to the provider.
const DefaultWindow = 12

// SessionStore creates sessions on demand and refreshes their activity time.
type SessionStore interface {
	// Upsert creates id or, if it exists, advances its last-activity time.
	Upsert(ctx context.Context, id string, at time.Time) (string, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Get(ctx context.Context, id string) (Session, error)
	// Delete removes the session and all of its messages.
	Delete(ctx context.Context, id string) error
}

// Log is the append-only message history.
type Log interface {
	Append(ctx context.Context, msg Message) (Message, error)
	// Recent returns at most limit of the newest messages, oldest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]Message, error)
}

// Store bundles both contracts; every backend implements it.
type Store interface {
	SessionStore
	Log
}

// ClampWindow enforces the minimum window size of one.
func ClampWindow(limit int) int {
	if limit < 1 {
		return 1
	}
	return limit
}

// SortChronological orders messages by creation time, breaking ties by ID.
func SortChronological(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
