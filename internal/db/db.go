// Package db is a hand-maintained, sqlc-style data access layer: the
// statements documented in queries.sql are implemented as methods on
// Queries, which runs over anything satisfying DBTX — a *pgxpool.Pool for
// ordinary calls or a single pgx.Tx/Conn when a caller needs one
// transaction (the cluster single-active-invariant update in
// clusterstore.Store.Activate).
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx, and *pgxpool.Conn — every
// query method below only needs these three.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a DBTX with the typed statements in queries.sql.
type Queries struct {
	db DBTX
}

// New builds a Queries over the given DBTX.
func New(dbtx DBTX) *Queries {
	return &Queries{db: dbtx}
}

// WithTx returns a copy of Queries bound to a transaction, for callers that
// need multiple statements to commit atomically.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
