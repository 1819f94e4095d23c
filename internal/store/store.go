// Package store implements persistence against PostgreSQL using database/sql
// and lib/pq. One Store satisfies the per-service Store interfaces declared
// by the workflow packages; services never see SQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store is the Postgres-backed persistence layer.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle. Used by tests with sqlmock.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for migrations and advisory locks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }
