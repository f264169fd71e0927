// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrRoundNotFound  = errors.New("round not found")
	ErrNoActiveRound  = errors.New("no active round")
	ErrRoundNotActive = errors.New("round is not active")
	ErrDuplicateWord  = errors.New("word already guessed this round")
	ErrQuotaNotFound  = errors.New("quota state not found")
	ErrRefundNotFound = errors.New("refund not found")
)

// Querier is the subset of pgx satisfied by *pgxpool.Pool and pgx.Tx.
// Repository methods take it so the services can run multi-repository
// settlement work inside a single transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// uniqueViolation is the postgres error code for unique constraint breaks.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint violation,
// optionally on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
