package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists user records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			memory TEXT NOT NULL DEFAULT '',
			mood TEXT,
			last_seen TIMESTAMPTZ
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	var (
		rec      Record
		mood     *string
		lastSeen *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, memory, mood, last_seen FROM users WHERE id=$1`, id,
	).Scan(&rec.ID, &rec.Memory, &mood, &lastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if mood != nil {
		rec.Mood = *mood
	}
	rec.LastSeen = lastSeen
	return &rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec *Record) error {
	var mood *string
	if rec.Mood != "" {
		mood = &rec.Mood
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, memory, mood, last_seen)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
			memory = EXCLUDED.memory,
			mood = EXCLUDED.mood,
			last_seen = EXCLUDED.last_seen`,
		rec.ID,
		rec.Memory,
		mood,
		rec.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
