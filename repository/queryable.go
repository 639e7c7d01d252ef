package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Queryable is satisfied by both *pgxpool.Pool and pgx.Tx so repositories can
// run inside or outside a unit of work
type Queryable interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// rowScanner covers pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// applied reports whether a conditional update matched a row
func applied(tag pgconn.CommandTag) bool {
	return tag.RowsAffected() > 0
}
