// SQLite-backed chat history store. The whole transcript is stored as one
// JSON blob per user; transcripts are bounded upstream so row size stays
// small.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BabyNest/assistant/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions is used when creating the database directory.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists chat history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the SQLite database at the DSN
// path and applies migrations.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("SQLite chat history store ready", "dsn", dsn)
	return &SQLiteStore{db: db}, nil
}

// SaveMessages upserts the user's full transcript.
func (s *SQLiteStore) SaveMessages(userID string, messages []models.Message) error {
	blob, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO chat_history (user_id, messages, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET messages = excluded.messages, updated_at = CURRENT_TIMESTAMP`,
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
func (s *SQLiteStore) LoadMessages(userID string) ([]models.Message, error) {
	var blob string
	err := s.db.QueryRow(`SELECT messages FROM chat_history WHERE user_id = ?`, userID).Scan(&blob)
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
func (s *SQLiteStore) DeleteHistory(userID string) error {
	_, err := s.db.Exec(`DELETE FROM chat_history WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat history: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
