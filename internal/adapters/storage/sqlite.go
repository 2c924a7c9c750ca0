// Package storage persists the keeper's local, reconstructible state in
// SQLite: the processed-request fast path, per-cadence draw windows, and the
// withdrawal-event cursor. Losing this file is safe: every answer it gives
// can be rebuilt from ledger state.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slyncl12/luckyvault/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_requests (
    request_id   TEXT PRIMARY KEY,
    processed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS draw_windows (
    cadence          TEXT PRIMARY KEY,
    last_executed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS event_cursor (
    id        INTEGER PRIMARY KEY CHECK (id = 1),
    cursor_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_requests(processed_at);
`

// Old processed-request rows are useless once the event lookback can no
// longer return them; keep a generous margin.
const processedRetention = 7 * 24 * time.Hour

// SQLiteStore implements ports.KeeperStore using SQLite (pure Go, no CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path, applies
// the schema, and prunes stale rows.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

func (s *SQLiteStore) IsProcessed(ctx context.Context, requestID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_requests WHERE request_id = ?`, requestID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage.IsProcessed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, requestID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_requests (request_id, processed_at) VALUES (?, ?)
		 ON CONFLICT(request_id) DO NOTHING`,
		requestID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.MarkProcessed: %s: %w", requestID, err)
	}
	return nil
}

func (s *SQLiteStore) LoadDrawWindows(ctx context.Context) (map[domain.Cadence]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cadence, last_executed_at FROM draw_windows`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadDrawWindows: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]domain.Cadence, len(domain.Cadences))
	for _, c := range domain.Cadences {
		byName[c.String()] = c
	}

	out := make(map[domain.Cadence]time.Time)
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, fmt.Errorf("storage.LoadDrawWindows: scan: %w", err)
		}
		if c, ok := byName[name]; ok {
			out[c] = at.UTC()
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveDrawExecuted(ctx context.Context, cadence domain.Cadence, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO draw_windows (cadence, last_executed_at) VALUES (?, ?)
		 ON CONFLICT(cadence) DO UPDATE SET last_executed_at = excluded.last_executed_at`,
		cadence.String(), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveDrawExecuted: %s: %w", cadence, err)
	}
	return nil
}

func (s *SQLiteStore) LoadEventCursor(ctx context.Context) (time.Time, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor_at FROM event_cursor WHERE id = 1`,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("storage.LoadEventCursor: %w", err)
	}
	return at.UTC(), nil
}

func (s *SQLiteStore) SaveEventCursor(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_cursor (id, cursor_at) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET cursor_at = excluded.cursor_at`,
		at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveEventCursor: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-processedRetention)
	s.db.ExecContext(ctx, `DELETE FROM processed_requests WHERE processed_at < ?`, cutoff)
}
