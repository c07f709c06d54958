package core

import (
	"context"
	"fmt"

	"github.com/scylladb/go-set/u32set"
	"golang.org/x/sync/errgroup"

	"github.com/pgedge/rowdiff/db/queries"
	"github.com/pgedge/rowdiff/pkg/types"
)

// BulkChunk is an (idc, mask) pair naming a whole subtree known to be
// present on exactly one side, deferred by the walker for resolution by
// ResolveBulkChunks.
type BulkChunk struct {
	IDC  uint32
	Mask uint32
}

// WalkResult accumulates the walker's classification counts and its
// bulk-chunk deferrals.
type WalkResult struct {
	Updates int
	Inserts int
	Deletes int

	MaskInsert []BulkChunk
	MaskDelete []BulkChunk
}

// Walk descends the two cascades from the root (masks[len(masks)-1],
// 0 unless max_levels truncated the cascade) to the leaf checksum table (level 0), merge-joining each
// side's ordered select at every level and streaming classified events
// to emit. Non-leaf disagreements are deferred into the next level's
// investigate set or, when neither side's partner idc matches, into a
// bulk-chunk deferral list for ResolveBulkChunks to expand.
func Walk(ctx context.Context, left, right resolvedSide, opts ResolvedOptions, masks []uint32, emit func(types.Event) error) (WalkResult, error) {
	var result WalkResult
	var investigate []uint32
	var parentMask uint32

	for lvl := len(masks) - 1; lvl >= 0; lvl-- {
		if opts.MaxReport > 0 && len(investigate) > opts.MaxReport {
			return result, &ErrEffortExceeded{Level: lvl, Size: len(investigate), Limit: opts.MaxReport}
		}

		isLeaf := lvl == 0
		hasFilter := len(investigate) > 0

		leftIter, rightIter, err := queryLevelBothSides(ctx, left, right, opts, lvl, parentMask, investigate, hasFilter, isLeaf)
		if err != nil {
			return result, err
		}

		next, err := mergeJoinLevel(lvl, masks, leftIter, rightIter, isLeaf, &result, emit)
		closeErr := closeBoth(leftIter, rightIter)
		if err != nil {
			return result, err
		}
		if closeErr != nil {
			return result, closeErr
		}

		parentMask = masks[lvl]
		investigate = next
		if len(investigate) == 0 {
			break
		}
	}

	return result, nil
}

// queryLevelBothSides issues each side's ordered select on that side's
// own connection. When opts.Parallel is set the two queries run
// concurrently (the left/right dimension is the only axis this engine
// ever parallelizes within the walker); levels themselves always run
// strictly sequentially.
func queryLevelBothSides(ctx context.Context, left, right resolvedSide, opts ResolvedOptions, lvl int, parentMask uint32, investigate []uint32, hasFilter, isLeaf bool) (RowIter, RowIter, error) {
	var leftIter, rightIter RowIter

	if !opts.Parallel {
		var err error
		if leftIter, err = querySide(ctx, left, opts.Prefix, lvl, parentMask, investigate, hasFilter, isLeaf); err != nil {
			return nil, nil, err
		}
		if rightIter, err = querySide(ctx, right, opts.Prefix, lvl, parentMask, investigate, hasFilter, isLeaf); err != nil {
			closeBoth(leftIter, nil)
			return nil, nil, err
		}
		return leftIter, rightIter, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		it, err := querySide(gctx, left, opts.Prefix, lvl, parentMask, investigate, hasFilter, isLeaf)
		leftIter = it
		return err
	})
	g.Go(func() error {
		it, err := querySide(gctx, right, opts.Prefix, lvl, parentMask, investigate, hasFilter, isLeaf)
		rightIter = it
		return err
	})
	if err := g.Wait(); err != nil {
		closeBoth(leftIter, rightIter)
		return nil, nil, err
	}
	return leftIter, rightIter, nil
}

func querySide(ctx context.Context, s resolvedSide, prefix string, lvl int, parentMask uint32, investigate []uint32, hasFilter, isLeaf bool) (RowIter, error) {
	tableName := TableName(prefix, s.side, lvl)

	var stmt string
	var err error
	if isLeaf {
		stmt, err = queries.RenderSQL(queries.SQLTemplates.SelectLevelZero, queries.SelectLevelZeroData{
			TableName:   tableName,
			ParentMask:  parentMask,
			Investigate: investigate,
			HasFilter:   hasFilter,
		})
	} else {
		stmt, err = queries.RenderSQL(queries.SQLTemplates.SelectLevel, queries.SelectLevelData{
			TableName:   tableName,
			ParentMask:  parentMask,
			Investigate: investigate,
			HasFilter:   hasFilter,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("render level-%d select: %w", lvl, err)
	}

	it, err := s.q.Query(ctx, stmt)
	if err != nil {
		return nil, &SQLError{Statement: stmt, Err: err}
	}
	return it, nil
}

func closeBoth(a, b RowIter) error {
	var firstErr error
	if a != nil {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b != nil {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type levelRow struct {
	idc   uint32
	cks   uint32
	id    string
	valid bool
}

func nextLevelRow(it RowIter, isLeaf bool) (levelRow, error) {
	if !it.Next() {
		if err := it.Err(); err != nil {
			return levelRow{}, err
		}
		return levelRow{}, nil
	}
	var row levelRow
	var idPtr *string
	if isLeaf {
		idPtr = &row.id
	}
	if err := it.Scan(&row.idc, &row.cks, idPtr); err != nil {
		return levelRow{}, err
	}
	row.valid = true
	return row, nil
}

// mergeJoinLevel streams both sides' ordered (idc,cks[,id]) result sets
// and classifies every row, returning the investigate set for the next
// shallower level.
func mergeJoinLevel(lvl int, masks []uint32, leftIter, rightIter RowIter, isLeaf bool, result *WalkResult, emit func(types.Event) error) ([]uint32, error) {
	investigate := u32set.New()

	left, err := nextLevelRow(leftIter, isLeaf)
	if err != nil {
		return nil, fmt.Errorf("reading left level %d: %w", lvl, err)
	}
	right, err := nextLevelRow(rightIter, isLeaf)
	if err != nil {
		return nil, fmt.Errorf("reading right level %d: %w", lvl, err)
	}

	for left.valid && right.valid {
		switch {
		case left.idc < right.idc:
			if err := classifyLeftOnly(lvl, masks, left, isLeaf, result, emit); err != nil {
				return nil, err
			}
			if left, err = nextLevelRow(leftIter, isLeaf); err != nil {
				return nil, fmt.Errorf("reading left level %d: %w", lvl, err)
			}
		case left.idc > right.idc:
			if err := classifyRightOnly(lvl, masks, right, isLeaf, result, emit); err != nil {
				return nil, err
			}
			if right, err = nextLevelRow(rightIter, isLeaf); err != nil {
				return nil, fmt.Errorf("reading right level %d: %w", lvl, err)
			}
		default:
			if left.cks != right.cks {
				if isLeaf {
					result.Updates++
					if err := emit(types.Event{Type: types.Update, Key: left.id}); err != nil {
						return nil, err
					}
				} else {
					investigate.Add(left.idc)
				}
			}
			if left, err = nextLevelRow(leftIter, isLeaf); err != nil {
				return nil, fmt.Errorf("reading left level %d: %w", lvl, err)
			}
			if right, err = nextLevelRow(rightIter, isLeaf); err != nil {
				return nil, fmt.Errorf("reading right level %d: %w", lvl, err)
			}
		}
	}

	for left.valid {
		if err := classifyLeftOnly(lvl, masks, left, isLeaf, result, emit); err != nil {
			return nil, err
		}
		if left, err = nextLevelRow(leftIter, isLeaf); err != nil {
			return nil, fmt.Errorf("reading left level %d: %w", lvl, err)
		}
	}
	for right.valid {
		if err := classifyRightOnly(lvl, masks, right, isLeaf, result, emit); err != nil {
			return nil, err
		}
		if right, err = nextLevelRow(rightIter, isLeaf); err != nil {
			return nil, fmt.Errorf("reading right level %d: %w", lvl, err)
		}
	}

	return investigate.List(), nil
}

func classifyLeftOnly(lvl int, masks []uint32, row levelRow, isLeaf bool, result *WalkResult, emit func(types.Event) error) error {
	if isLeaf {
		result.Inserts++
		return emit(types.Event{Type: types.Insert, Key: row.id})
	}
	result.MaskInsert = append(result.MaskInsert, BulkChunk{IDC: row.idc, Mask: masks[lvl]})
	return nil
}

func classifyRightOnly(lvl int, masks []uint32, row levelRow, isLeaf bool, result *WalkResult, emit func(types.Event) error) error {
	if isLeaf {
		result.Deletes++
		return emit(types.Event{Type: types.Delete, Key: row.id})
	}
	result.MaskDelete = append(result.MaskDelete, BulkChunk{IDC: row.idc, Mask: masks[lvl]})
	return nil
}
