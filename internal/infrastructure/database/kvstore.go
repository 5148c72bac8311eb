package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// KVStore persists the two remaining §6 persistence entities that
// aren't shaped like device/scene records: ui_state(key) -> opaque
// JSON, and per-integration bookkeeping (integration_id ->
// last_run_timestamp), representative of integration_neato's
// last-run-timestamp table.
type KVStore struct {
	db *DB
}

// NewKVStore wraps an open *DB.
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db}
}

// PutUIState upserts an opaque JSON blob under key.
func (s *KVStore) PutUIState(ctx context.Context, key, valueJSON string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ui_state (key, value_json) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json
	`, key, valueJSON)
	if err != nil {
		return fmt.Errorf("database: put ui_state %s: %w", key, err)
	}
	return nil
}

// GetUIState returns the JSON blob for key, or sql.ErrNoRows if absent.
func (s *KVStore) GetUIState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value_json FROM ui_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("database: get ui_state %s: %w", key, err)
	}
	return value, nil
}

// SetLastRun records the last successful poll time for a periodic
// integration (e.g. the Neato robot-vacuum adapter's schedule cursor).
func (s *KVStore) SetLastRun(ctx context.Context, integrationID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO integration_bookkeeping (integration_id, last_run_timestamp) VALUES (?, ?)
		ON CONFLICT(integration_id) DO UPDATE SET last_run_timestamp = excluded.last_run_timestamp
	`, integrationID, at)
	if err != nil {
		return fmt.Errorf("database: set last_run for %s: %w", integrationID, err)
	}
	return nil
}

// GetLastRun returns the last recorded poll time for integrationID, the
// zero time if none has been recorded.
func (s *KVStore) GetLastRun(ctx context.Context, integrationID string) (time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT last_run_timestamp FROM integration_bookkeeping WHERE integration_id = ?`, integrationID).Scan(&t)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("database: get last_run for %s: %w", integrationID, err)
	}
	if !t.Valid {
		return time.Time{}, nil
	}
	return t.Time, nil
}
