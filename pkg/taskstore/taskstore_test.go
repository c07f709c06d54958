package taskstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pgedge/rowdiff/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id string) types.Run {
	return types.Run{
		RunID:      id,
		LeftTable:  "public.accounts",
		RightTable: "public.accounts",
		Status:     StatusRunning,
		StartedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestCreateAndGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	run := sampleRun("run-1")

	if err := s.Create(run); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get("run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RunID != run.RunID || got.LeftTable != run.LeftTable || got.Status != run.Status {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, run)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Fatalf("StartedAt = %v, want %v", got.StartedAt, run.StartedAt)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("nope"); err != ErrNotFound {
		t.Fatalf("Get missing run: got %v, want ErrNotFound", err)
	}
}

func TestCreateRejectsMissingFields(t *testing.T) {
	s := newTestStore(t)
	run := sampleRun("")
	if err := s.Create(run); err == nil {
		t.Fatal("Create with empty run id: want error, got nil")
	}
}

func TestUpdateSetsStatusAndStats(t *testing.T) {
	s := newTestStore(t)
	run := sampleRun("run-2")
	if err := s.Create(run); err != nil {
		t.Fatalf("Create: %v", err)
	}

	run.Status = StatusCompleted
	run.FinishedAt = run.StartedAt.Add(5 * time.Second)
	run.Stats = types.Stats{LeftCount: 10, RightCount: 10, Inserts: 1, Deletes: 2}
	if err := s.Update(run); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get("run-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("Status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.Stats.Inserts != 1 || got.Stats.Deletes != 2 {
		t.Fatalf("Stats = %+v, want Inserts=1 Deletes=2", got.Stats)
	}
	if !got.FinishedAt.Equal(run.FinishedAt) {
		t.Fatalf("FinishedAt = %v, want %v", got.FinishedAt, run.FinishedAt)
	}
}

func TestUpdateMissingReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.Update(sampleRun("ghost")); err != ErrNotFound {
		t.Fatalf("Update missing run: got %v, want ErrNotFound", err)
	}
}

func TestListOrdersByStartedAtDescending(t *testing.T) {
	s := newTestStore(t)
	older := sampleRun("run-older")
	newer := sampleRun("run-newer")
	newer.StartedAt = older.StartedAt.Add(time.Hour)

	if err := s.Create(older); err != nil {
		t.Fatalf("Create older: %v", err)
	}
	if err := s.Create(newer); err != nil {
		t.Fatalf("Create newer: %v", err)
	}

	runs, err := s.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("List returned %d runs, want 2", len(runs))
	}
	if runs[0].RunID != "run-newer" || runs[1].RunID != "run-older" {
		t.Fatalf("List order = [%s, %s], want [run-newer, run-older]", runs[0].RunID, runs[1].RunID)
	}
}

func TestRecorderOnlyUpdatesAfterCreate(t *testing.T) {
	store := newTestStore(t)
	rec, err := NewRecorder(store, "")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if rec.OwnsStore() {
		t.Fatal("OwnsStore() = true for an externally supplied store")
	}

	run := sampleRun("run-3")
	run.Status = StatusCompleted
	if err := rec.Update(run); err != nil {
		t.Fatalf("Update before Create: %v", err)
	}
	if _, err := store.Get("run-3"); err != ErrNotFound {
		t.Fatalf("Update before Create should be a no-op, got run in store: %v", err)
	}

	run.Status = StatusRunning
	if err := rec.Create(run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !rec.Created() {
		t.Fatal("Created() = false after Create")
	}

	run.Status = StatusCompleted
	if err := rec.Update(run); err != nil {
		t.Fatalf("Update after Create: %v", err)
	}
	got, err := store.Get("run-3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("Status = %q, want %q", got.Status, StatusCompleted)
	}
}

func TestRecorderNewStoreClosesOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owned.db")
	rec, err := NewRecorder(nil, path)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if !rec.OwnsStore() {
		t.Fatal("OwnsStore() = false for a store the recorder opened itself")
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.Store() != nil {
		t.Fatal("Store() should be nil after Close")
	}
}
