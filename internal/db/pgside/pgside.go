// Package pgside adapts a pgx connection pool to the core package's
// Querier interface, so a comparison side can be backed by Postgres.
package pgside

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgedge/rowdiff/internal/core"
)

// Side wraps a pgxpool.Pool so it satisfies core.Querier. Postgres has
// no native unsigned integer type, so idc/cks columns are stored as
// BIGINT, wide enough to hold any 32-bit unsigned checksum.
type Side struct {
	pool *pgxpool.Pool
}

// Connect opens a pooled connection using a pgx connection string (see
// pgxpool.ParseConfig).
func Connect(ctx context.Context, dsn string) (*Side, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgside: connect: %w", err)
	}
	return &Side{pool: pool}, nil
}

// New wraps an already-constructed pool, for callers that manage pool
// lifetime themselves (e.g. a server sharing one pool across requests).
func New(pool *pgxpool.Pool) *Side {
	return &Side{pool: pool}
}

func (s *Side) Close() {
	s.pool.Close()
}

func (s *Side) Exec(ctx context.Context, sql string) error {
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return err
	}
	return nil
}

func (s *Side) Count(ctx context.Context, sql string) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, sql).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Side) Query(ctx context.Context, sql string) (core.RowIter, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &rowIter{rows: rows}, nil
}

func (s *Side) UnsignedType() string {
	return "BIGINT"
}

type rowIter struct {
	rows pgx.Rows
	err  error
}

func (it *rowIter) Next() bool {
	return it.rows.Next()
}

func (it *rowIter) Scan(idc, cks *uint32, id *string) error {
	dests := make([]any, 0, 3)
	var rawIDC, rawCKS int64
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
		it.err = err
		return err
	}
	if idc != nil {
		*idc = uint32(rawIDC)
	}
	if cks != nil {
		*cks = uint32(rawCKS)
	}
	return nil
}

func (it *rowIter) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *rowIter) Close() error {
	it.rows.Close()
	return nil
}
