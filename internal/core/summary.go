package core

import (
	"context"
	"fmt"

	"github.com/pgedge/rowdiff/db/queries"
	"github.com/pgedge/rowdiff/internal/dialect"
)

// BuildSummaries creates the level 1..len(masks)-1 summary cascade for
// one side. masks[0] is an unused placeholder (see DESIGN.md); level k
// aggregates level k-1 grouped by idc & masks[k], and the last level
// built is the root (its mask is 0 unless max_levels truncated the
// cascade, in which case the root still groups by a non-zero mask).
func BuildSummaries(ctx context.Context, s resolvedSide, d *dialect.Dialect, opts ResolvedOptions, masks []uint32) error {
	for k := 1; k < len(masks); k++ {
		tableName := TableName(opts.Prefix, s.side, k)
		sourceName := TableName(opts.Prefix, s.side, k-1)
		if err := queries.SanitiseIdentifier(tableName); err != nil {
			return &ErrInternalInvariant{Detail: err.Error()}
		}

		stmt, err := queries.RenderSQL(queries.SQLTemplates.CreateSummary, queries.SummaryData{
			Temporary:    dialect.Temporary(opts.Temporary),
			TableName:    tableName,
			UintType:     s.q.UnsignedType(),
			Mask:         masks[k],
			AggregateCks: d.AggregateExpr("cks"),
			SourceTable:  sourceName,
		})
		if err != nil {
			return fmt.Errorf("render level-%d statement: %w", k, err)
		}

		if err := s.q.Exec(ctx, stmt); err != nil {
			return &SQLError{Statement: stmt, Err: err}
		}
	}
	return nil
}

// DropCascade drops every intermediate table for one side, in reverse
// (root-to-leaf) order, per the cleanup policy. Errors are collected but
// do not stop the sweep, since cleanup runs on abort paths too.
func DropCascade(ctx context.Context, q Querier, prefix string, side Side, levels int) error {
	var firstErr error
	for level := levels - 1; level >= 0; level-- {
		tableName := TableName(prefix, side, level)
		stmt, err := queries.RenderSQL(queries.SQLTemplates.DropTable, tableName)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := q.Exec(ctx, stmt); err != nil && firstErr == nil {
			firstErr = &SQLError{Statement: stmt, Err: err}
		}
	}
	return firstErr
}
