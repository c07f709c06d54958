// Package mysqlside adapts a database/sql connection pool, driven by
// go-sql-driver/mysql, to the core package's Querier interface.
package mysqlside

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/pgedge/rowdiff/internal/core"
)

// Side wraps a *sql.DB so it satisfies core.Querier. MySQL's native
// INTEGER UNSIGNED is used for idc/cks columns.
type Side struct {
	db *sql.DB
}

// Connect opens a connection pool using a go-sql-driver/mysql DSN.
func Connect(ctx context.Context, dsn string) (*Side, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlside: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("mysqlside: ping: %w", err)
	}
	return &Side{db: db}, nil
}

// New wraps an already-opened *sql.DB, for callers that manage pool
// lifetime themselves.
func New(db *sql.DB) *Side {
	return &Side{db: db}
}

func (s *Side) Close() error {
	return s.db.Close()
}

func (s *Side) Exec(ctx context.Context, sql string) error {
	_, err := s.db.ExecContext(ctx, sql)
	return err
}

func (s *Side) Count(ctx context.Context, query string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Side) Query(ctx context.Context, query string) (core.RowIter, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &rowIter{rows: rows}, nil
}

func (s *Side) UnsignedType() string {
	return "INTEGER UNSIGNED"
}

type rowIter struct {
	rows *sql.Rows
}

func (it *rowIter) Next() bool {
	return it.rows.Next()
}

func (it *rowIter) Scan(idc, cks *uint32, id *string) error {
	dests := make([]any, 0, 3)
	var rawIDC, rawCKS uint32
	if idc != nil {
		dests = append(dests, &rawIDC)
	}
	if cks != nil {
		dests = append(dests, &rawCKS)
	}
	if id != nil {
		dests = append(dests, id)
	}
	if err := it.rows.Scan(dests...); err != nil {
		return err
	}
	if idc != nil {
		*idc = rawIDC
	}
	if cks != nil {
		*cks = rawCKS
	}
	return nil
}

func (it *rowIter) Err() error {
	return it.rows.Err()
}

func (it *rowIter) Close() error {
	return it.rows.Close()
}
