// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// SQLite driver
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                  TEXT PRIMARY KEY,
	task_class          TEXT NOT NULL,
	reward              REAL NOT NULL,
	lift_source         TEXT NOT NULL DEFAULT '',
	used_content_patch  INTEGER NOT NULL DEFAULT 0,
	created_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_task_class ON runs(task_class, created_at DESC);

CREATE TABLE IF NOT EXISTS variants (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL REFERENCES runs(id),
	engine          TEXT NOT NULL,
	operator        TEXT NOT NULL,
	use_memory      INTEGER NOT NULL DEFAULT 0,
	use_web_search  INTEGER NOT NULL DEFAULT 0,
	reward          REAL NOT NULL,
	patch_id        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_variants_run ON variants(run_id);
`

// SQLiteStore implements Store using a single SQLite file.
//
// # Thread Safety
//
// Safe for concurrent use; database/sql pools connections and WAL mode
// allows concurrent readers alongside the single writer.
type SQLiteStore struct {
	path string
	db   *sql.DB
}

// NewSQLiteStore creates a store for the given database path. Call Init
// before use.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: path}, nil
}

// Init opens the database, enables WAL mode, and applies the schema.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", s.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("applying schema: %w", err)
	}

	s.db = db
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SaveRun inserts or replaces a run record.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, task_class, reward, lift_source, used_content_patch, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.TaskClass, run.Reward, run.LiftSource,
		boolToInt(run.UsedContentPatch), run.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// SaveVariant inserts or replaces a variant record.
func (s *SQLiteStore) SaveVariant(ctx context.Context, v VariantRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO variants (id, run_id, engine, operator, use_memory, use_web_search, reward, patch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.RunID, v.Engine, v.Operator,
		boolToInt(v.UseMemory), boolToInt(v.UseWebSearch), v.Reward, v.PatchID)
	if err != nil {
		return fmt.Errorf("saving variant %s: %w", v.ID, err)
	}
	return nil
}

// GetRun fetches one run by ID. Returns sql.ErrNoRows wrapped when absent.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_class, reward, lift_source, used_content_patch, created_at
		FROM runs WHERE id = ?`, id)

	var run RunRecord
	var usedPatch int
	var createdAt string
	if err := row.Scan(&run.ID, &run.TaskClass, &run.Reward, &run.LiftSource, &usedPatch, &createdAt); err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", id, err)
	}
	run.UsedContentPatch = usedPatch != 0
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		run.CreatedAt = t
	}
	return &run, nil
}

// BaselineReward averages the rewards of the most recent limit runs of the
// task class. Returns nil when no comparable run exists.
func (s *SQLiteStore) BaselineReward(ctx context.Context, taskClass string, limit int) (*float64, error) {
	if limit <= 0 {
		limit = 10
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT AVG(reward), COUNT(*) FROM (
			SELECT reward FROM runs
			WHERE task_class = ?
			ORDER BY created_at DESC
			LIMIT ?
		)`, taskClass, limit)

	var avg sql.NullFloat64
	var count int
	if err := row.Scan(&avg, &count); err != nil {
		return nil, fmt.Errorf("computing baseline for %s: %w", taskClass, err)
	}
	if count == 0 || !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// SetAttribution writes the classifier's verdict onto a run.
func (s *SQLiteStore) SetAttribution(ctx context.Context, runID, liftSource string, usedContentPatch bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET lift_source = ?, used_content_patch = ? WHERE id = ?`,
		liftSource, boolToInt(usedContentPatch), runID)
	if err != nil {
		return fmt.Errorf("setting attribution on run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("setting attribution: run %s not found", runID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
