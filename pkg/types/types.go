// Package types holds the plain data carriers shared between the
// comparator engine and its callers: options, events and run statistics.
package types

import (
	"fmt"
	"time"
)

// ChangeType classifies one row-level difference between the two sides
// of a comparison.
type ChangeType string

const (
	Insert ChangeType = "insert"
	Update ChangeType = "update"
	Delete ChangeType = "delete"
)

// Event is one classified difference, keyed by the textual composite of
// the primary key columns.
type Event struct {
	Type ChangeType
	Key  string
}

// Options holds the comparison options, all with the defaults named in
// the comparison options table.
//
// Temporary and Cleanup are *bool, not bool: their documented default is
// conditional on one another (cleanup defaults to true iff temporary is
// false), so a plain bool's zero value can't stand in for "caller didn't
// set this" the way it does for Factor/Sep/Prefix and the rest. This is
// the same *bool-tri-state shape pkg/config's DiffConfig uses for the
// identical pair.
type Options struct {
	Factor     int
	MaxLevels  int
	MaxReport  int
	Sep        string
	Where      string
	Prefix     string
	Null       string
	Concat     string
	Checksum   string
	Aggregate  string
	Temporary  *bool
	Cleanup    *bool
	Parallel   bool
	NumRecords int64
}

// ConcatTemplate builds the default concat template for a given
// separator: CONCAT_WS(sep,%s). ResolveOptions calls this whenever the
// caller hasn't supplied a custom concat template, so setting sep alone
// (via YAML or the HTTP API; the diff command has no sep flag) changes the composed multi-column
// key without requiring the caller to also override concat by hand.
func ConcatTemplate(sep string) string {
	return fmt.Sprintf("CONCAT_WS('%s',%%s)", sep)
}

// DefaultOptions returns the comparison options table's defaults.
func DefaultOptions() Options {
	temporary := true
	cleanup := false
	sep := ":"
	return Options{
		Factor:    7,
		MaxLevels: 0,
		MaxReport: 32,
		Sep:       sep,
		Prefix:    "cmp",
		Null:      "COALESCE(%s,'null')",
		Concat:    ConcatTemplate(sep),
		Checksum:  "CRC32",
		Aggregate: "BIT_XOR",
		Temporary: &temporary,
		Cleanup:   &cleanup,
		Parallel:  false,
	}
}

// SideOptions are the per-side inputs describing which table and which
// columns to compare. The connection handle is supplied separately since
// it is not a plain value.
type SideOptions struct {
	Table  string
	Keys   []string
	Cols   []string
	KeyLen int
}

// DefaultSideOptions returns the invariant per-side defaults.
func DefaultSideOptions() SideOptions {
	return SideOptions{
		Keys:   []string{"id"},
		KeyLen: 255,
	}
}

// Stats is returned by Process; the diff command prints it as a summary
// table after every run.
type Stats struct {
	LeftCount  int64
	RightCount int64
	Factor     int
	Levels     int
	Updates    int
	Inserts    int
	Deletes    int

	ChecksumElapsed time.Duration
	SummaryElapsed  time.Duration
	MergeElapsed    time.Duration
	BulkElapsed     time.Duration
}

// TotalDiffs returns the total number of differences found.
func (s Stats) TotalDiffs() int {
	return s.Updates + s.Inserts + s.Deletes
}

// Run is one recorded comparator invocation, persisted by pkg/taskstore.
type Run struct {
	RunID       string
	LeftTable   string
	RightTable  string
	Status      string
	StartedAt   time.Time
	FinishedAt  time.Time
	Stats       Stats
	ErrorDetail string
}
