package core

import (
	"context"
	"testing"

	"github.com/pgedge/rowdiff/pkg/types"
)

func xorAll(vals ...uint32) uint32 {
	var x uint32
	for _, v := range vals {
		x ^= v
	}
	return x
}

// seedTwoLevelSide seeds a leaf table and its single-row root (mask 0)
// summary table for one side, the shape every ComputeMasks(size,...)
// produces for small sizes: masks = [placeholder, 0].
func seedTwoLevelSide(q *fakeQuerier, prefix string, side Side, leaf []fakeRow) {
	q.seed(TableName(prefix, side, 0), leaf)
	var cks []uint32
	for _, r := range leaf {
		cks = append(cks, r.cks)
	}
	q.seed(TableName(prefix, side, 1), []fakeRow{{idc: 0, cks: xorAll(cks...)}})
}

func collect(events *[]types.Event) func(types.Event) error {
	return func(e types.Event) error {
		*events = append(*events, e)
		return nil
	}
}

func twoLevelMasks() []uint32 {
	return ComputeMasks(3, 7, 0)
}

func TestWalkIdenticalTablesEmitsNothing(t *testing.T) {
	leftQ, rightQ := newFakeQuerier(), newFakeQuerier()
	rows := []fakeRow{{idc: 10, cks: 1, id: "1"}, {idc: 20, cks: 2, id: "2"}, {idc: 30, cks: 3, id: "3"}}
	seedTwoLevelSide(leftQ, "cmp", Left, rows)
	seedTwoLevelSide(rightQ, "cmp", Right, rows)

	left := resolvedSide{side: Left, q: leftQ}
	right := resolvedSide{side: Right, q: rightQ}
	opts := ResolvedOptions{Prefix: "cmp", MaxReport: 32}

	var events []types.Event
	result, err := Walk(context.Background(), left, right, opts, twoLevelMasks(), collect(&events))
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	if len(events) != 0 || result.Updates+result.Inserts+result.Deletes != 0 {
		t.Fatalf("expected zero differences, got %d events, result=%+v", len(events), result)
	}
}

func TestWalkSingleUpdate(t *testing.T) {
	leftQ, rightQ := newFakeQuerier(), newFakeQuerier()
	seedTwoLevelSide(leftQ, "cmp", Left, []fakeRow{{idc: 10, cks: 1, id: "1"}, {idc: 20, cks: 2, id: "2"}})
	seedTwoLevelSide(rightQ, "cmp", Right, []fakeRow{{idc: 10, cks: 1, id: "1"}, {idc: 20, cks: 99, id: "2"}})

	left := resolvedSide{side: Left, q: leftQ}
	right := resolvedSide{side: Right, q: rightQ}
	opts := ResolvedOptions{Prefix: "cmp", MaxReport: 32}

	var events []types.Event
	result, err := Walk(context.Background(), left, right, opts, twoLevelMasks(), collect(&events))
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	if len(events) != 1 || events[0].Type != types.Update || events[0].Key != "2" {
		t.Fatalf("expected one update for key 2, got %+v", events)
	}
	if result.Updates != 1 || result.Inserts != 0 || result.Deletes != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}
}

func TestWalkInsertOnly(t *testing.T) {
	leftQ, rightQ := newFakeQuerier(), newFakeQuerier()
	seedTwoLevelSide(leftQ, "cmp", Left, []fakeRow{
		{idc: 10, cks: 1, id: "1"}, {idc: 20, cks: 2, id: "2"}, {idc: 30, cks: 3, id: "3"},
	})
	seedTwoLevelSide(rightQ, "cmp", Right, []fakeRow{
		{idc: 10, cks: 1, id: "1"}, {idc: 20, cks: 2, id: "2"},
	})

	left := resolvedSide{side: Left, q: leftQ}
	right := resolvedSide{side: Right, q: rightQ}
	opts := ResolvedOptions{Prefix: "cmp", MaxReport: 32}

	var events []types.Event
	result, err := Walk(context.Background(), left, right, opts, twoLevelMasks(), collect(&events))
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	if len(events) != 1 || events[0].Type != types.Insert || events[0].Key != "3" {
		t.Fatalf("expected one insert for key 3, got %+v", events)
	}
	if result.Inserts != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
}

func TestWalkDeleteOnly(t *testing.T) {
	leftQ, rightQ := newFakeQuerier(), newFakeQuerier()
	seedTwoLevelSide(leftQ, "cmp", Left, []fakeRow{
		{idc: 10, cks: 1, id: "1"}, {idc: 20, cks: 2, id: "2"},
	})
	seedTwoLevelSide(rightQ, "cmp", Right, []fakeRow{
		{idc: 10, cks: 1, id: "1"}, {idc: 20, cks: 2, id: "2"}, {idc: 30, cks: 3, id: "3"},
	})

	left := resolvedSide{side: Left, q: leftQ}
	right := resolvedSide{side: Right, q: rightQ}
	opts := ResolvedOptions{Prefix: "cmp", MaxReport: 32}

	var events []types.Event
	result, err := Walk(context.Background(), left, right, opts, twoLevelMasks(), collect(&events))
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	if len(events) != 1 || events[0].Type != types.Delete || events[0].Key != "3" {
		t.Fatalf("expected one delete for key 3, got %+v", events)
	}
	if result.Deletes != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
}

func TestWalkMixedMultiKey(t *testing.T) {
	leftQ, rightQ := newFakeQuerier(), newFakeQuerier()
	seedTwoLevelSide(leftQ, "cmp", Left, []fakeRow{
		{idc: 10, cks: 1, id: "10:1"},
	})
	seedTwoLevelSide(rightQ, "cmp", Right, []fakeRow{
		{idc: 10, cks: 99, id: "10:1"},
		{idc: 20, cks: 2, id: "10:2"},
	})

	left := resolvedSide{side: Left, q: leftQ}
	right := resolvedSide{side: Right, q: rightQ}
	opts := ResolvedOptions{Prefix: "cmp", MaxReport: 32}

	var events []types.Event
	result, err := Walk(context.Background(), left, right, opts, twoLevelMasks(), collect(&events))
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two events, got %+v", events)
	}
	if result.Updates != 1 || result.Deletes != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
}

// TestMergeJoinLevelNonLeafDefersBulkChunks exercises the non-leaf
// branch directly: a left-only idc at a summary level must defer into
// MaskInsert carrying that level's own mask, not emit an event.
func TestMergeJoinLevelNonLeafDefersBulkChunks(t *testing.T) {
	masks := []uint32{0xFFFF, 0x0F, 0x00}
	left := &fakeRowIter{rows: []fakeRow{{idc: 1, cks: 5}, {idc: 2, cks: 6}}}
	right := &fakeRowIter{rows: []fakeRow{{idc: 1, cks: 5}}}

	var result WalkResult
	investigate, err := mergeJoinLevel(1, masks, left, right, false, &result, func(types.Event) error {
		t.Fatalf("non-leaf level must not emit events")
		return nil
	})
	if err != nil {
		t.Fatalf("mergeJoinLevel returned error: %v", err)
	}
	if len(investigate) != 0 {
		t.Fatalf("expected no investigate carry-over, got %v", investigate)
	}
	if len(result.MaskInsert) != 1 || result.MaskInsert[0] != (BulkChunk{IDC: 2, Mask: masks[1]}) {
		t.Fatalf("expected one mask_insert deferral for idc=2, got %+v", result.MaskInsert)
	}
}

func TestWalkEffortExceeded(t *testing.T) {
	leftQ, rightQ := newFakeQuerier(), newFakeQuerier()

	leftQ.seed("cmp_1_2", []fakeRow{{idc: 0, cks: 1}})
	rightQ.seed("cmp_2_2", []fakeRow{{idc: 0, cks: 2}})

	leftQ.seed("cmp_1_1", []fakeRow{{idc: 1, cks: 1}, {idc: 2, cks: 2}, {idc: 3, cks: 3}})
	rightQ.seed("cmp_2_1", []fakeRow{{idc: 1, cks: 11}, {idc: 2, cks: 22}, {idc: 3, cks: 33}})

	left := resolvedSide{side: Left, q: leftQ}
	right := resolvedSide{side: Right, q: rightQ}
	opts := ResolvedOptions{Prefix: "cmp", MaxReport: 2}

	masks := []uint32{0xFFFF, 0x0F, 0x00}
	_, err := Walk(context.Background(), left, right, opts, masks, func(types.Event) error { return nil })
	if err == nil {
		t.Fatalf("expected effort exceeded error")
	}
	if _, ok := err.(*ErrEffortExceeded); !ok {
		t.Fatalf("expected *ErrEffortExceeded, got %T: %v", err, err)
	}
}
