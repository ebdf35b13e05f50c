// Package sqlite implements kv.Store on an embedded SQLite database and keeps
// the audit trail of store events consumed by the worker.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"expenses/internal/kv"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

var _ kv.Store = (*Store)(nil)

// StoredEvent is one row of the store_events audit table.
type StoredEvent struct {
	ID          int64
	StoreKey    string
	Kind        string
	RecordCount int
	Payload     string
	OccurredAt  time.Time
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent Set calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get implements kv.Store
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Set implements kv.Store
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	slog.DebugContext(ctx, "Value saved to SQLite", "store_key", key, "bytes", len(value))
	return nil
}

// AppendEvent records one store event in the audit table.
func (s *Store) AppendEvent(ctx context.Context, e StoredEvent) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO store_events (store_key, kind, record_count, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.StoreKey, e.Kind, e.RecordCount, e.Payload, e.OccurredAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append event id: %w", err)
	}
	return id, nil
}

// ListEvents returns the newest events for key, oldest first.
func (s *Store) ListEvents(ctx context.Context, key string, limit int) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_key, kind, record_count, payload, occurred_at FROM (
			SELECT * FROM store_events WHERE store_key = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.StoreKey, &e.Kind, &e.RecordCount, &e.Payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
