// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package store persists destinations in SQLite so they survive restarts.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Thermoquad/skyrelay/pkg/destination"
)

//go:embed schema.sql
var schemaSQL string

// Record is a saved destination
type Record struct {
	destination.Config
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a SQLite-backed destination table. The database is opened on
// first use.
type Store struct {
	path string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// New creates a store for the database file at path. ":memory:" keeps the
// table in memory for the life of the store.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		dsn := "file:" + s.path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
		if s.path == ":memory:" {
			dsn = ":memory:"
		}
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			s.dbErr = err
			return
		}
		// One connection keeps an in-memory database alive and serialises writers
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		s.db = db
	})
	return s.db, s.dbErr
}

const upsertSQL = `
INSERT INTO destinations (name, host, port, protocol, enabled)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
    host       = excluded.host,
    port       = excluded.port,
    protocol   = excluded.protocol,
    enabled    = excluded.enabled,
    updated_at = CURRENT_TIMESTAMP`

// Save inserts or replaces the destination with cfg.Name
func (s *Store) Save(ctx context.Context, cfg destination.Config, enabled bool) error {
	cfg, err := cfg.Normalize()
	if err != nil {
		return err
	}

	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, upsertSQL, cfg.Name, cfg.Host, cfg.Port, string(cfg.Transport), enabled); err != nil {
		return fmt.Errorf("saving destination %s: %w", cfg.Name, err)
	}
	return nil
}

// Delete removes a saved destination. Unknown names return
// destination.ErrNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}
	result, err := db.ExecContext(ctx, `DELETE FROM destinations WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting destination %s: %w", name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting destination %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", destination.ErrNotFound, name)
	}
	return nil
}

const selectSQL = `
SELECT name, host, port, protocol, enabled, created_at, updated_at
FROM destinations
ORDER BY created_at, rowid`

// List returns every saved destination, oldest first
func (s *Store) List(ctx context.Context) (records []Record, err error) {
	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectSQL)
	if err != nil {
		return nil, fmt.Errorf("querying destinations: %w", err)
	}
	defer func() {
		if cErr := rows.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cErr)
		}
	}()

	for rows.Next() {
		var (
			r        Record
			protocol string
		)
		if err = rows.Scan(&r.Name, &r.Host, &r.Port, &protocol, &r.Enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning destination: %w", err)
		}
		r.Transport = destination.Transport(protocol)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Restore adds every enabled saved destination through add. Destinations
// that fail to register are collected into the returned error; the rest are
// still added.
func (s *Store) Restore(ctx context.Context, add func(destination.Config) error) (int, error) {
	records, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	var (
		restored int
		errs     []error
	)
	for _, r := range records {
		if !r.Enabled {
			continue
		}
		if err := add(r.Config); err != nil {
			errs = append(errs, fmt.Errorf("restoring %s: %w", r.Name, err))
			continue
		}
		restored++
	}
	return restored, errors.Join(errs...)
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}
