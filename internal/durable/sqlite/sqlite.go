// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite provides a SQLite durable.Store so workflows survive
// process restarts and signals can cross process boundaries.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ZhihaoAIRobotic/MetaAgent-sub000/internal/durable"
)

// Compile-time interface assertion.
var _ durable.Store = (*Store)(nil)

// timeFormat is fixed width so timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite durable store.
type Store struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging for concurrent readers in other processes.
	WAL bool
}

// Open opens (creating if needed) the database and runs migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; one connection keeps TakeSignal's
	// select-then-delete transaction exclusive.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) configurePragmas(ctx context.Context, wal bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if wal {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS activities (
			workflow_id TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			result TEXT,
			error TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (workflow_id, activity_id)
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workflow_id TEXT NOT NULL,
			name TEXT NOT NULL,
			waiter_id TEXT NOT NULL DEFAULT '',
			payload TEXT,
			description TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_mailbox ON signals(workflow_id, name)`,
		`CREATE TABLE IF NOT EXISTS signal_waiters (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_waiters_name ON signal_waiters(workflow_id, name)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// GetActivity retrieves an activity.
func (s *Store) GetActivity(ctx context.Context, workflowID, activityID string) (*durable.Activity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, activity_id, status, attempts, result, error, created_at, updated_at
		FROM activities WHERE workflow_id = ? AND activity_id = ?`, workflowID, activityID)

	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, durable.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return a, nil
}

// SaveActivity upserts an activity, preserving its original created_at.
func (s *Store) SaveActivity(ctx context.Context, a *durable.Activity) error {
	now := time.Now().UTC().Format(timeFormat)
	created := now
	if !a.CreatedAt.IsZero() {
		created = a.CreatedAt.UTC().Format(timeFormat)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (workflow_id, activity_id, status, attempts, result, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id, activity_id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			result = excluded.result,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		a.WorkflowID, a.ActivityID, string(a.Status), a.Attempts,
		nullString(string(a.Result)), nullString(a.Error), created, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save activity: %w", err)
	}
	return nil
}

// ListActivities returns a workflow's activities in insertion order.
func (s *Store) ListActivities(ctx context.Context, workflowID string) ([]*durable.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id, activity_id, status, attempts, result, error, created_at, updated_at
		FROM activities WHERE workflow_id = ? ORDER BY rowid`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var out []*durable.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PutSignal appends a signal to the mailbox.
func (s *Store) PutSignal(ctx context.Context, sig *durable.SignalRecord) error {
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (workflow_id, name, waiter_id, payload, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sig.WorkflowID, sig.Name, sig.WaiterID, nullString(string(sig.Payload)),
		nullString(sig.Description), sig.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to put signal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read signal id: %w", err)
	}
	sig.ID = id
	return nil
}

// TakeSignal removes and returns the oldest deliverable signal.
func (s *Store) TakeSignal(ctx context.Context, workflowID, name, waiterID string) (*durable.SignalRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		rec         durable.SignalRecord
		payload     sql.NullString
		description sql.NullString
		createdAt   string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, workflow_id, name, waiter_id, payload, description, created_at
		FROM signals
		WHERE workflow_id = ? AND name = ? AND (waiter_id = '' OR waiter_id = ?)
		ORDER BY id LIMIT 1`, workflowID, name, waiterID,
	).Scan(&rec.ID, &rec.WorkflowID, &rec.Name, &rec.WaiterID, &payload, &description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, durable.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read signal: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM signals WHERE id = ?`, rec.ID); err != nil {
		return nil, fmt.Errorf("failed to consume signal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	if payload.Valid {
		rec.Payload = []byte(payload.String)
	}
	rec.Description = description.String
	rec.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &rec, nil
}

// RegisterWaiter records a waiter.
func (s *Store) RegisterWaiter(ctx context.Context, w durable.Waiter) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO signal_waiters (id, workflow_id, name, created_at) VALUES (?, ?, ?, ?)`,
		w.ID, w.WorkflowID, w.Name, w.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to register waiter: %w", err)
	}
	return nil
}

// RemoveWaiter deletes a waiter and the signals addressed to it.
func (s *Store) RemoveWaiter(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM signal_waiters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove waiter: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM signals WHERE waiter_id = ?`, id); err != nil {
		return fmt.Errorf("failed to drop addressed signals: %w", err)
	}
	return tx.Commit()
}

// ListWaiters returns waiters for (workflowID, name), oldest first.
func (s *Store) ListWaiters(ctx context.Context, workflowID, name string) ([]durable.Waiter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, name, created_at FROM signal_waiters
		WHERE workflow_id = ? AND name = ? ORDER BY created_at, id`, workflowID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiters: %w", err)
	}
	defer rows.Close()

	var out []durable.Waiter
	for rows.Next() {
		var (
			w         durable.Waiter
			createdAt string
		)
		if err := rows.Scan(&w.ID, &w.WorkflowID, &w.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan waiter: %w", err)
		}
		w.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		out = append(out, w)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanActivity(row scanner) (*durable.Activity, error) {
	var (
		a                    durable.Activity
		status               string
		result, errMsg       sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.WorkflowID, &a.ActivityID, &status, &a.Attempts, &result, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Status = durable.ActivityStatus(status)
	if result.Valid {
		a.Result = []byte(result.String)
	}
	a.Error = errMsg.String
	a.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	a.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
