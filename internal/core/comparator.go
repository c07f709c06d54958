package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pgedge/rowdiff/internal/dialect"
	"github.com/pgedge/rowdiff/pkg/types"
)

// SideInput is one side's connection handle plus its table and column
// descriptors, the constructor input described in §6.
type SideInput struct {
	Querier Querier
	Table   string
	Keys    []string
	Cols    []string
	KeyLen  int
}

// Comparator holds one fully-resolved comparison: two sides, a merged
// option set and a shared dialect. Construction performs the entire
// option merge up front; nothing downstream consults the other side.
type Comparator struct {
	left  resolvedSide
	right resolvedSide
	opts  ResolvedOptions
	d     *dialect.Dialect
}

// NewComparator validates both side inputs and resolves the comparison
// options, falling back from left to right per the documented
// constructor contract, and returns a Comparator ready to Process.
func NewComparator(leftIn, rightIn SideInput, userOpts types.Options) (*Comparator, error) {
	if leftIn.Querier == nil || rightIn.Querier == nil {
		return nil, &ErrInvalidInput{Reason: "both sides require a connection"}
	}
	if leftIn.Table == "" || rightIn.Table == "" {
		return nil, &ErrInvalidInput{Reason: "both sides require a table"}
	}

	leftSide := types.SideOptions{Keys: leftIn.Keys, Cols: leftIn.Cols, KeyLen: leftIn.KeyLen, Table: leftIn.Table}
	rightSide := types.SideOptions{Keys: rightIn.Keys, Cols: rightIn.Cols, KeyLen: rightIn.KeyLen, Table: rightIn.Table}

	leftResolved := resolveSideOptions(leftSide, types.SideOptions{})
	rightResolved := resolveSideOptions(rightSide, leftResolved)

	if len(leftResolved.Cols) == 0 || len(rightResolved.Cols) == 0 {
		return nil, &ErrInvalidInput{Reason: "both sides require at least one data column"}
	}

	opts := ResolveOptions(userOpts)

	d, err := dialect.New(opts.Null, opts.Concat, opts.Checksum, opts.Aggregate)
	if err != nil {
		return nil, err
	}

	return &Comparator{
		left: resolvedSide{
			side: Left, q: leftIn.Querier, table: leftIn.Table,
			keys: leftResolved.Keys, cols: leftResolved.Cols, keyLen: leftResolved.KeyLen,
		},
		right: resolvedSide{
			side: Right, q: rightIn.Querier, table: rightIn.Table,
			keys: rightResolved.Keys, cols: rightResolved.Cols, keyLen: rightResolved.KeyLen,
		},
		opts: opts,
		d:    d,
	}, nil
}

// Process builds both cascades, walks them, resolves any bulk-chunk
// deferrals, and streams every classified event to emit. If emit is
// nil, results are written to standard output as "<type> <key>" lines.
// Process never returns partial results: on any error it attempts
// cleanup (per the cleanup policy) before returning.
func (c *Comparator) Process(ctx context.Context, emit func(types.Event) error) (types.Stats, error) {
	stats := types.Stats{Factor: c.opts.Factor}

	if emit == nil {
		emit = stdoutEmitter(os.Stdout)
	}

	checksumStart := time.Now()
	leftCount, rightCount, err := c.buildLevelZeroBothSides(ctx)
	stats.ChecksumElapsed = time.Since(checksumStart)
	if err != nil {
		c.cleanupBestEffort(ctx, 1)
		return stats, err
	}
	stats.LeftCount = leftCount
	stats.RightCount = rightCount

	size := leftCount
	if rightCount > size {
		size = rightCount
	}
	if size == 0 {
		c.cleanupBestEffort(ctx, 1)
		return stats, &ErrEmptyDomain{}
	}

	masks := ComputeMasks(size, c.opts.Factor, c.opts.MaxLevels)
	stats.Levels = len(masks)

	summaryStart := time.Now()
	if err := c.buildSummariesBothSides(ctx, masks); err != nil {
		stats.SummaryElapsed = time.Since(summaryStart)
		c.cleanupBestEffort(ctx, len(masks))
		return stats, err
	}
	stats.SummaryElapsed = time.Since(summaryStart)

	mergeStart := time.Now()
	walkResult, err := Walk(ctx, c.left, c.right, c.opts, masks, emit)
	stats.MergeElapsed = time.Since(mergeStart)
	if err != nil {
		c.cleanupBestEffort(ctx, len(masks))
		return stats, err
	}
	stats.Updates += walkResult.Updates
	stats.Inserts += walkResult.Inserts
	stats.Deletes += walkResult.Deletes

	bulkStart := time.Now()
	if len(walkResult.MaskInsert) > 0 || len(walkResult.MaskDelete) > 0 {
		if err := ResolveBulkChunks(ctx, c.left, c.right, c.opts, walkResult.MaskInsert, walkResult.MaskDelete, bulkEmitter(&stats, emit)); err != nil {
			stats.BulkElapsed = time.Since(bulkStart)
			c.cleanupBestEffort(ctx, len(masks))
			return stats, err
		}
	}
	stats.BulkElapsed = time.Since(bulkStart)

	if c.opts.Cleanup {
		if err := c.cleanup(ctx, len(masks)); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (c *Comparator) buildLevelZeroBothSides(ctx context.Context) (int64, int64, error) {
	var leftCount, rightCount int64

	if !c.opts.Parallel {
		var err error
		if leftCount, err = BuildLevelZero(ctx, c.left, c.d, c.opts); err != nil {
			return 0, 0, err
		}
		if rightCount, err = BuildLevelZero(ctx, c.right, c.d, c.opts); err != nil {
			return 0, 0, err
		}
		return leftCount, rightCount, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := BuildLevelZero(gctx, c.left, c.d, c.opts)
		leftCount = n
		return err
	})
	g.Go(func() error {
		n, err := BuildLevelZero(gctx, c.right, c.d, c.opts)
		rightCount = n
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	return leftCount, rightCount, nil
}

func (c *Comparator) buildSummariesBothSides(ctx context.Context, masks []uint32) error {
	if !c.opts.Parallel {
		if err := BuildSummaries(ctx, c.left, c.d, c.opts, masks); err != nil {
			return err
		}
		return BuildSummaries(ctx, c.right, c.d, c.opts, masks)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return BuildSummaries(gctx, c.left, c.d, c.opts, masks) })
	g.Go(func() error { return BuildSummaries(gctx, c.right, c.d, c.opts, masks) })
	return g.Wait()
}

// cleanupBestEffort drops whatever cascade tables may already exist on
// an abort path. Cleanup errors are swallowed: the original error is
// what the caller sees.
func (c *Comparator) cleanupBestEffort(ctx context.Context, levels int) {
	if !c.opts.Cleanup {
		return
	}
	_ = c.cleanup(ctx, levels)
}

func (c *Comparator) cleanup(ctx context.Context, levels int) error {
	leftErr := DropCascade(ctx, c.left.q, c.opts.Prefix, Left, levels)
	rightErr := DropCascade(ctx, c.right.q, c.opts.Prefix, Right, levels)
	if leftErr != nil {
		return leftErr
	}
	return rightErr
}

func bulkEmitter(stats *types.Stats, emit func(types.Event) error) func(types.Event) error {
	return func(e types.Event) error {
		switch e.Type {
		case types.Insert:
			stats.Inserts++
		case types.Delete:
			stats.Deletes++
		}
		return emit(e)
	}
}

// stdoutEmitter is the §6 default callback: "<type> <key>" lines on
// standard output, flushed as each event arrives.
func stdoutEmitter(w io.Writer) func(types.Event) error {
	bw := bufio.NewWriter(w)
	return func(e types.Event) error {
		if _, err := fmt.Fprintf(bw, "%s %s\n", e.Type, e.Key); err != nil {
			return err
		}
		return bw.Flush()
	}
}
