// Package store persists per-user chat history behind a small interface with
// SQLite, Postgres, and in-memory implementations.
package store

import (
	"sync"

	"github.com/BabyNest/assistant/internal/models"
)

// Store saves and restores a user's conversation transcript. Histories are
// written whole; the transcript is small and bounded upstream.
type Store interface {
	SaveMessages(userID string, messages []models.Message) error
	LoadMessages(userID string) ([]models.Message, error)
	DeleteHistory(userID string) error
	Close() error
}

// Opts holds store configuration.
type Opts struct {
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithDSN sets the database connection string or file path.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore keeps history in a map. Used in tests and as the fallback
// when no database is configured.
type InMemoryStore struct {
	mu       sync.Mutex
	messages map[string][]models.Message
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{messages: make(map[string][]models.Message)}
}

// SaveMessages replaces the stored history for a user.
func (s *InMemoryStore) SaveMessages(userID string, messages []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(messages))
	copy(out, messages)
	s.messages[userID] = out
	return nil
}

// LoadMessages returns the stored history for a user, oldest first. A user
// with no history gets an empty slice, not an error.
func (s *InMemoryStore) LoadMessages(userID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.messages[userID]
	out := make([]models.Message, len(stored))
	copy(out, stored)
	return out, nil
}

// DeleteHistory removes the stored history for a user.
func (s *InMemoryStore) DeleteHistory(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, userID)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
