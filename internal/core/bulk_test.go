package core

import (
	"context"
	"testing"

	"github.com/pgedge/rowdiff/pkg/types"
)

func TestResolveBulkChunksInsertAndDelete(t *testing.T) {
	leftQ, rightQ := newFakeQuerier(), newFakeQuerier()
	leftQ.seed("cmp_1_0", []fakeRow{
		{idc: 501, cks: 1, id: "501"},
		{idc: 502, cks: 1, id: "502"},
		{idc: 1, cks: 1, id: "1"},
	})
	rightQ.seed("cmp_2_0", []fakeRow{
		{idc: 9001, cks: 1, id: "9001"},
		{idc: 1, cks: 1, id: "1"},
	})

	left := resolvedSide{side: Left, q: leftQ}
	right := resolvedSide{side: Right, q: rightQ}
	opts := ResolvedOptions{Prefix: "cmp"}

	// Bulk chunk idc values are the masked (summary-level) values, not
	// the raw leaf idc: 501&0x0F==5, 502&0x0F==6, 9001&0x0F==9.
	insertChunks := []BulkChunk{{IDC: 5, Mask: 0x0F}, {IDC: 6, Mask: 0x0F}}
	deleteChunks := []BulkChunk{{IDC: 9, Mask: 0x0F}}

	var events []types.Event
	err := ResolveBulkChunks(context.Background(), left, right, opts, insertChunks, deleteChunks, collect(&events))
	if err != nil {
		t.Fatalf("ResolveBulkChunks returned error: %v", err)
	}

	var inserts, deletes int
	for _, e := range events {
		switch e.Type {
		case types.Insert:
			inserts++
		case types.Delete:
			deletes++
		default:
			t.Fatalf("unexpected event type %v", e.Type)
		}
	}
	if inserts != 2 || deletes != 1 {
		t.Fatalf("expected 2 inserts and 1 delete, got inserts=%d deletes=%d events=%+v", inserts, deletes, events)
	}
}

func TestResolveBulkChunksEmptyListsAreNoop(t *testing.T) {
	leftQ, rightQ := newFakeQuerier(), newFakeQuerier()
	left := resolvedSide{side: Left, q: leftQ}
	right := resolvedSide{side: Right, q: rightQ}
	opts := ResolvedOptions{Prefix: "cmp"}

	var events []types.Event
	err := ResolveBulkChunks(context.Background(), left, right, opts, nil, nil, collect(&events))
	if err != nil {
		t.Fatalf("ResolveBulkChunks returned error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
}
