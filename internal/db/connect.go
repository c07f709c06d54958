// Package db picks the right driver-specific Querier for a connection
// config, so callers above the engine (CLI, server, scheduler) never
// need to know about pgxpool or database/sql directly.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgedge/rowdiff/internal/core"
	"github.com/pgedge/rowdiff/internal/db/mysqlside"
	"github.com/pgedge/rowdiff/internal/db/pgside"
)

// Side is a Querier that also owns a connection this package opened,
// so callers can release it uniformly regardless of driver.
type Side interface {
	core.Querier
	Close() error
}

type pgCloser struct{ *pgside.Side }

func (c pgCloser) Close() error {
	c.Side.Close()
	return nil
}

// Connect opens a Side for driver ("postgres" or "mysql") against dsn.
func Connect(ctx context.Context, driver, dsn string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pg":
		s, err := pgside.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return pgCloser{s}, nil
	case "mysql":
		return mysqlside.Connect(ctx, dsn)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q (expected postgres or mysql)", driver)
	}
}
