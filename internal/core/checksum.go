package core

import (
	"context"
	"fmt"

	"github.com/pgedge/rowdiff/db/queries"
	"github.com/pgedge/rowdiff/internal/dialect"
)

// resolvedSide is one side's fully-resolved inputs and options: no
// fallback to the other side happens at use time, per the explicit
// post-construction merge step this repo carries out in NewComparator.
type resolvedSide struct {
	side Side
	q    Querier

	table  string
	keys   []string
	cols   []string
	keyLen int
}

// BuildLevelZero creates the level-0 checksum table for one side and
// returns its row count.
//
// It emits a single CREATE [TEMPORARY] TABLE ... AS SELECT statement,
// then a COUNT(*) unless numRecords overrides the probe.
func BuildLevelZero(ctx context.Context, s resolvedSide, d *dialect.Dialect, opts ResolvedOptions) (int64, error) {
	for _, ident := range append(append([]string{}, s.keys...), s.cols...) {
		if err := queries.SanitiseIdentifier(ident); err != nil {
			return 0, &ErrInvalidInput{Reason: err.Error()}
		}
	}

	tableName := TableName(opts.Prefix, s.side, 0)
	if err := queries.SanitiseIdentifier(tableName); err != nil {
		return 0, &ErrInternalInvariant{Detail: err.Error()}
	}
	if err := queries.SanitiseQualifiedIdentifier(s.table); err != nil {
		return 0, &ErrInvalidInput{Reason: err.Error()}
	}

	idExpr := d.ConcatKey(s.keys)
	idcExpr := d.ChecksumExpr(idExpr)
	cksExpr := d.ChecksumExpr(d.ConcatAll(s.keys, s.cols))

	stmt, err := queries.RenderSQL(queries.SQLTemplates.CreateLevelZero, queries.LevelZeroData{
		Temporary:   dialect.Temporary(opts.Temporary),
		TableName:   tableName,
		KeyLen:      s.keyLen,
		UintType:    s.q.UnsignedType(),
		IDExpr:      idExpr,
		IDCExpr:     idcExpr,
		CksExpr:     cksExpr,
		SourceTable: s.table,
		Where:       opts.Where,
	})
	if err != nil {
		return 0, fmt.Errorf("render level-0 statement: %w", err)
	}

	if err := s.q.Exec(ctx, stmt); err != nil {
		return 0, &SQLError{Statement: stmt, Err: err}
	}

	if opts.NumRecords != 0 {
		return opts.NumRecords, nil
	}

	countStmt, err := queries.RenderSQL(queries.SQLTemplates.CountRows, tableName)
	if err != nil {
		return 0, fmt.Errorf("render count statement: %w", err)
	}
	count, err := s.q.Count(ctx, countStmt)
	if err != nil {
		return 0, &SQLError{Statement: countStmt, Err: err}
	}
	return count, nil
}
