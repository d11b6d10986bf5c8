// Package history records completed searches in PostgreSQL.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one recorded search.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	Source      string    `json:"source"`
	Cropped     bool      `json:"cropped"`
	Strategy    string    `json:"strategy,omitempty"`
	ResultCount int       `json:"result_count"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

const schema = `CREATE TABLE IF NOT EXISTS search_history (
	id           UUID PRIMARY KEY,
	source       TEXT NOT NULL,
	cropped      BOOLEAN NOT NULL DEFAULT FALSE,
	strategy     TEXT NOT NULL DEFAULT '',
	result_count INTEGER NOT NULL,
	duration_ms  BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// MaxRecent caps the number of rows Recent returns.
const MaxRecent = 500

// db is the subset of pgxpool.Pool used by the store.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// Store persists search history.
type Store struct {
	db    db
	close func()
	now   func() time.Time
}

// NewStore connects to PostgreSQL using dsn.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &Store{db: pool, close: pool.Close, now: time.Now}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// EnsureSchema creates the history table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create search_history table: %w", err)
	}
	return nil
}

// Record inserts e, assigning an ID and timestamp when unset.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if e.Source == "" {
		return Entry{}, errors.New("history entry needs a source")
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO search_history (id, source, cropped, strategy, result_count, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Source, e.Cropped, e.Strategy, e.ResultCount, e.DurationMS, e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("insert search history: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, source, cropped, strategy, result_count, duration_ms, created_at
		 FROM search_history ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query search history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Source, &e.Cropped, &e.Strategy, &e.ResultCount, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}
