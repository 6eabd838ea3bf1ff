package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store wraps database access. A Store is either bound to the connection
// pool or, via BeginUnitOfWork, to a single transaction. Services receive a
// transaction-bound Store per inbound event; commit and rollback are owned
// by the caller.
type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
	tx *sqlx.Tx
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// BeginUnitOfWork starts a transaction and returns a Store bound to it. All
// reads and writes of one inbound event go through the returned Store so the
// existence-check idempotency guards and the writes they protect share a
// transaction.
func (s *Store) BeginUnitOfWork(ctx context.Context) (*Store, error) {
	if s.tx != nil {
		return nil, fmt.Errorf("unit of work already started")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Store{db: s.db, q: tx, tx: tx}, nil
}

// Commit commits the unit of work.
func (s *Store) Commit() error {
	if s.tx == nil {
		return fmt.Errorf("no unit of work in progress")
	}
	return s.tx.Commit()
}

// Rollback rolls back the unit of work. Safe to defer after Commit.
func (s *Store) Rollback() error {
	if s.tx == nil {
		return fmt.Errorf("no unit of work in progress")
	}
	return s.tx.Rollback()
}
