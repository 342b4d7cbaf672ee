// Package postgres stores session transcripts in PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KamdynS/weather-agents/memory"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "conversation_turns"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Store implements memory.SessionStore. Appends within one session are
// serialized with a transaction-scoped advisory lock, so sequence numbers
// never collide across processes.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// New creates a store over pool. Call Migrate once before use.
func New(pool *pgxpool.Pool, table string) (*Store, error) {
	if pool == nil {
		return nil, errors.New("postgres: nil pool")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Connect opens a pool for dsn and creates the store.
func Connect(ctx context.Context, dsn, table string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	s, err := New(pool, table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the transcript table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  session_id text NOT NULL,
  seq bigint NOT NULL,
  role text NOT NULL,
  body text NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (session_id, seq)
)`, s.table))
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Append implements memory.SessionStore.
func (s *Store) Append(ctx context.Context, sessionID, role, text string) (memory.Turn, error) {
	if err := memory.ValidateAppend(sessionID, role); err != nil {
		return memory.Turn{}, err
	}
	turn := memory.Turn{Role: role, Text: text}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", s.table+":"+sessionID); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, fmt.Sprintf(
			`INSERT INTO %[1]s (session_id, seq, role, body)
SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3 FROM %[1]s WHERE session_id = $1
RETURNING seq, created_at`, s.table), sessionID, role, text)
		return row.Scan(&turn.Sequence, &turn.CreatedAt)
	})
	if err != nil {
		return memory.Turn{}, fmt.Errorf("postgres: append turn: %w", err)
	}
	turn.CreatedAt = turn.CreatedAt.UTC()
	return turn, nil
}

// Turns implements memory.SessionStore.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]memory.Turn, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		"SELECT role, body, seq, created_at FROM %s WHERE session_id = $1 ORDER BY seq", s.table), sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load turns: %w", err)
	}
	defer rows.Close()

	turns := []memory.Turn{}
	for rows.Next() {
		var t memory.Turn
		var created time.Time
		if err := rows.Scan(&t.Role, &t.Text, &t.Sequence, &created); err != nil {
			return nil, fmt.Errorf("postgres: scan turn: %w", err)
		}
		t.CreatedAt = created.UTC()
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Reset implements memory.SessionStore with a single DELETE.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE session_id = $1", s.table), sessionID)
	if err != nil {
		return fmt.Errorf("postgres: reset: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

var _ memory.SessionStore = (*Store)(nil)
