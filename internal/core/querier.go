package core

import "context"

// Querier is the minimal surface the engine needs from a database
// connection: execute a structural statement, count rows, and stream an
// ordered result set. Both the pgx-backed Postgres adapter and the
// database/sql-backed MySQL adapter implement this so the engine itself
// never imports a driver package.
type Querier interface {
	// Exec runs a statement that returns no rows (CREATE TABLE ... AS
	// SELECT, DROP TABLE).
	Exec(ctx context.Context, sql string) error
	// Count runs a statement expected to return exactly one integer
	// column (SELECT COUNT(*) ...).
	Count(ctx context.Context, sql string) (int64, error)
	// Query runs a statement and returns a RowIter over the result set.
	Query(ctx context.Context, sql string) (RowIter, error)
	// UnsignedType names the column type used for idc/cks columns
	// (e.g. "INTEGER UNSIGNED" for MySQL, "BIGINT" for Postgres, which
	// has no native unsigned integer type).
	UnsignedType() string
}

// RowIter streams the rows of a result set. Callers must call Close
// when done, even after an error from Next.
type RowIter interface {
	Next() bool
	// Scan decodes the current row into whichever of idc, cks, id are
	// non-nil, each mapped to one actual result column in that order.
	// The walker's non-leaf select passes (idc, cks, nil) for a
	// two-column result; its leaf select passes (idc, cks, id) for
	// three columns; the bulk-chunk resolver's single-column id select
	// passes (nil, nil, id).
	Scan(idc, cks *uint32, id *string) error
	Err() error
	Close() error
}
