// internal/repository/postgres/db.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/andresuchdata/autopo-params/internal/config"
)

// maxConcurrentTx bounds the transactions in flight against the pool.
const maxConcurrentTx = 10

type DB struct {
	*sqlx.DB
	sem *semaphore.Weighted
}

// NewDB opens a connection pool with lib/pq and verifies it with a ping.
func NewDB(cfg *config.DatabaseConfig) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return Wrap(db), nil
}

// Wrap adds the transaction semaphore to an existing handle, e.g. one opened
// with the pgx driver or a sqlmock in tests.
func Wrap(db *sqlx.DB) *DB {
	return &DB{
		DB:  db,
		sem: semaphore.NewWeighted(maxConcurrentTx),
	}
}

// Migrate creates the parameter tables when they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("could not apply schema: %w", err)
		}
		return nil
	})
}

// WithTx executes a function within a transaction
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	// Acquire semaphore
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("could not acquire semaphore: %w", err)
	}
	defer db.sem.Release(1)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	if err := fn(tx.Tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}
