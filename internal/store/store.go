// Package store abstracts the two supported SQL backends (PostgreSQL and
// MySQL) behind one small capability interface so business logic is written
// exactly once. Queries use pgx-style $1..$n placeholders; the MySQL adapter
// rebinds them to ?.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNoRows is returned by Row.Scan when the query matched nothing.
	ErrNoRows = errors.New("store: no rows in result set")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("store: duplicate key")
)

type Row interface {
	Scan(dest ...any) error
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier is the query surface shared by a DB handle and an open transaction.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type DB interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
	Close()
}
