package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pgedge/rowdiff/db/queries"
	"github.com/pgedge/rowdiff/pkg/types"
)

// ResolveBulkChunks expands every deferred (idc, mask) pair into
// concrete keys by scanning the leaf table under the disjunction of
// (idc & mask) = idc predicates, and emits one event per returned id.
// insertChunks are resolved against the left side's leaf table,
// deleteChunks against the right side's; when both lists are nonempty
// and opts.Parallel is set the two scans run concurrently.
func ResolveBulkChunks(ctx context.Context, left, right resolvedSide, opts ResolvedOptions, insertChunks, deleteChunks []BulkChunk, emit func(types.Event) error) error {
	runInsert := func() error {
		return resolveChunkList(ctx, left, opts, insertChunks, types.Insert, emit)
	}
	runDelete := func() error {
		return resolveChunkList(ctx, right, opts, deleteChunks, types.Delete, emit)
	}

	if !opts.Parallel || len(insertChunks) == 0 || len(deleteChunks) == 0 {
		if err := runInsert(); err != nil {
			return err
		}
		return runDelete()
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(runInsert)
	g.Go(runDelete)
	return g.Wait()
}

func resolveChunkList(ctx context.Context, s resolvedSide, opts ResolvedOptions, chunks []BulkChunk, changeType types.ChangeType, emit func(types.Event) error) error {
	if len(chunks) == 0 {
		return nil
	}

	tableName := TableName(opts.Prefix, s.side, 0)
	predicates := make([]queries.BulkChunkPredicate, len(chunks))
	for i, c := range chunks {
		predicates[i] = queries.BulkChunkPredicate{Mask: c.Mask, IDC: c.IDC}
	}

	stmt, err := queries.RenderSQL(queries.SQLTemplates.SelectBulkChunks, queries.BulkChunksData{
		TableName: tableName,
		Chunks:    predicates,
	})
	if err != nil {
		return fmt.Errorf("render bulk chunk select: %w", err)
	}

	it, err := s.q.Query(ctx, stmt)
	if err != nil {
		return &SQLError{Statement: stmt, Err: err}
	}
	defer it.Close()

	var id string
	for it.Next() {
		if err := it.Scan(nil, nil, &id); err != nil {
			return fmt.Errorf("scanning bulk chunk row: %w", err)
		}
		if err := emit(types.Event{Type: changeType, Key: id}); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("iterating bulk chunk rows: %w", err)
	}
	return nil
}
