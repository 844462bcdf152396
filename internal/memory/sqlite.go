package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore SQLite user record storage implementation
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite storage
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer: database/sql serializes callers on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	store := &SQLiteStore{db: db}

	if err := store.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}

	return store, nil
}

// initTables initializes database tables
func (s *SQLiteStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			memory TEXT NOT NULL DEFAULT '',
			mood TEXT,
			last_seen TEXT
		)`,
		// Sync position for the Matrix bot, keyed by (user_id, key)
		`CREATE TABLE IF NOT EXISTS matrix_sync_state (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (user_id, key)
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %s, error: %w", query, err)
		}
	}
	return nil
}

// Get gets a user record by ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	var (
		rec      Record
		mood     sql.NullString
		lastSeen sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, memory, mood, last_seen FROM users WHERE id = ?",
		id,
	).Scan(&rec.ID, &rec.Memory, &mood, &lastSeen)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}

	if mood.Valid {
		rec.Mood = mood.String
	}
	if lastSeen.Valid && lastSeen.String != "" {
		ts, err := time.Parse(time.RFC3339Nano, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_seen for user %s: %w", id, err)
		}
		rec.LastSeen = &ts
	}

	return &rec, nil
}

// Put upserts a full user record
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	var mood, lastSeen any
	if rec.Mood != "" {
		mood = rec.Mood
	}
	if rec.LastSeen != nil {
		lastSeen = rec.LastSeen.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, memory, mood, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			memory = excluded.memory,
			mood = excluded.mood,
			last_seen = excluded.last_seen
	`, rec.ID, rec.Memory, mood, lastSeen)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", rec.ID, err)
	}
	return nil
}

// Delete deletes a user record by ID
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	return nil
}

// DB exposes the connection so the Matrix sync store can share the file
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
