// Postgres-backed chat history store, for deployments where the assistant
// state must survive host restarts and be shared across replicas.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/BabyNest/assistant/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists chat history in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to Postgres with the given DSN and applies
// migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Postgres chat history store ready")
	return &PostgresStore{db: db}, nil
}

// SaveMessages upserts the user's full transcript.
func (s *PostgresStore) SaveMessages(userID string, messages []models.Message) error {
	blob, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO chat_history (user_id, messages, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET messages = EXCLUDED.messages, updated_at = NOW()`,
		userID, string(blob),
	)
	if err != nil {
		slog.Error("Failed to save chat history", "error", err, "userID", userID)
		return fmt.Errorf("failed to save chat history: %w", err)
	}
	slog.Debug("Chat history saved", "userID", userID, "messages", len(messages))
	return nil
}

// LoadMessages returns the user's transcript, or an empty slice if none is
// stored.
func (s *PostgresStore) LoadMessages(userID string) ([]models.Message, error) {
	var blob string
	err := s.db.QueryRow(`SELECT messages FROM chat_history WHERE user_id = $1`, userID).Scan(&blob)
	if err == sql.ErrNoRows {
		return []models.Message{}, nil
	}
	if err != nil {
		slog.Error("Failed to load chat history", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	var messages []models.Message
	if err := json.Unmarshal([]byte(blob), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return messages, nil
}

// DeleteHistory removes the user's transcript.
func (s *PostgresStore) DeleteHistory(userID string) error {
	_, err := s.db.Exec(`DELETE FROM chat_history WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat history: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
