// Package postgres implements internal/store's ports against PostgreSQL,
// grounded on the teacher's internal/app/storage/postgres package: plain
// SQL strings executed through database/sql (via jmoiron/sqlx for struct
// scanning), no ORM, errors wrapped with apperr.KindInternal/KindNotFound
// at the boundary rather than left as raw *sql.Rows errors.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store bundles a *sqlx.DB and implements every internal/store port; the
// components that depend on a single port (store.EventStore,
// store.TriggerStore, ...) take *Store and use it as that narrower
// interface, matching the teacher's single-struct-many-interfaces layout.
type Store struct {
	db *sqlx.DB
}

// Open establishes a PostgreSQL connection pool and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open handle, e.g. one set up by go-sqlmock in
// tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func isNoRows(err error) bool { return err == sql.ErrNoRows }
