// Package taskstore persists comparator run history to a local SQLite
// database, so a server or scheduler can answer "what happened" after
// the fact without holding every run in memory.
package taskstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pgedge/rowdiff/pkg/types"
)

const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS rowdiff_runs (
    run_id       TEXT PRIMARY KEY,
    status       TEXT NOT NULL,
    left_table   TEXT NOT NULL,
    right_table  TEXT NOT NULL,
    started_at   TEXT,
    finished_at  TEXT,
    stats        TEXT,
    error_detail TEXT
);`

var ErrNotFound = errors.New("run not found")

type Store struct {
	db *sql.DB
}

// Recorder wraps a Store with the create-then-maybe-update lifecycle a
// single run goes through: at most one Create, any number of Update
// calls once created, and a Close that only tears down a store the
// recorder itself opened.
type Recorder struct {
	store     *Store
	ownsStore bool
	created   bool
}

func NewRecorder(existing *Store, path string) (*Recorder, error) {
	if existing != nil {
		return &Recorder{store: existing}, nil
	}
	store, err := New(path)
	if err != nil {
		return nil, err
	}
	return &Recorder{store: store, ownsStore: true}, nil
}

func (r *Recorder) Store() *Store {
	if r == nil {
		return nil
	}
	return r.store
}

func (r *Recorder) OwnsStore() bool {
	if r == nil {
		return false
	}
	return r.ownsStore
}

func (r *Recorder) HasStore() bool {
	return r != nil && r.store != nil
}

func (r *Recorder) Created() bool {
	return r != nil && r.created
}

func (r *Recorder) Create(run types.Run) error {
	if !r.HasStore() {
		return nil
	}
	if err := r.store.Create(run); err != nil {
		return err
	}
	r.created = true
	return nil
}

func (r *Recorder) Update(run types.Run) error {
	if !r.HasStore() || !r.created {
		return nil
	}
	return r.store.Update(run)
}

func (r *Recorder) Close() error {
	if !r.OwnsStore() || r.store == nil {
		return nil
	}
	err := r.store.Close()
	r.store = nil
	return err
}

func New(path string) (*Store, error) {
	sqlitePath := resolvePath(path)
	if err := ensureDir(sqlitePath); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite3", sqlitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(runID string) (types.Run, error) {
	var run types.Run
	if strings.TrimSpace(runID) == "" {
		return run, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRow(
		`SELECT run_id, status, left_table, right_table,
                started_at, finished_at, stats, error_detail
         FROM rowdiff_runs WHERE run_id = ?`, runID)

	var (
		startedAt   sql.NullString
		finishedAt  sql.NullString
		statsVal    sql.NullString
		errorDetail sql.NullString
	)
	if err := row.Scan(
		&run.RunID,
		&run.Status,
		&run.LeftTable,
		&run.RightTable,
		&startedAt,
		&finishedAt,
		&statsVal,
		&errorDetail,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Run{}, ErrNotFound
		}
		return types.Run{}, fmt.Errorf("fetch run %s: %w", runID, err)
	}

	if startedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, startedAt.String); err == nil {
			run.StartedAt = t
		}
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			run.FinishedAt = t
		}
	}
	if errorDetail.Valid {
		run.ErrorDetail = errorDetail.String
	}
	if statsVal.Valid && strings.TrimSpace(statsVal.String) != "" {
		var stats types.Stats
		if err := json.Unmarshal([]byte(statsVal.String), &stats); err == nil {
			run.Stats = stats
		}
	}

	return run, nil
}

func (s *Store) List(limit int) ([]types.Run, error) {
	rows, err := s.db.Query(
		`SELECT run_id, status, left_table, right_table,
                started_at, finished_at, stats, error_detail
         FROM rowdiff_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []types.Run
	for rows.Next() {
		var (
			run         types.Run
			startedAt   sql.NullString
			finishedAt  sql.NullString
			statsVal    sql.NullString
			errorDetail sql.NullString
		)
		if err := rows.Scan(
			&run.RunID,
			&run.Status,
			&run.LeftTable,
			&run.RightTable,
			&startedAt,
			&finishedAt,
			&statsVal,
			&errorDetail,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if startedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, startedAt.String); err == nil {
				run.StartedAt = t
			}
		}
		if finishedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
				run.FinishedAt = t
			}
		}
		if errorDetail.Valid {
			run.ErrorDetail = errorDetail.String
		}
		if statsVal.Valid && strings.TrimSpace(statsVal.String) != "" {
			var stats types.Stats
			if err := json.Unmarshal([]byte(statsVal.String), &stats); err == nil {
				run.Stats = stats
			}
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *Store) Create(run types.Run) error {
	if err := validateForCreate(run); err != nil {
		return err
	}
	statsVal, err := statsValue(run.Stats)
	if err != nil {
		return fmt.Errorf("marshal run stats: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO rowdiff_runs (
            run_id, status, left_table, right_table,
            started_at, finished_at, stats, error_detail
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.Status,
		run.LeftTable,
		run.RightTable,
		timeOrNil(run.StartedAt),
		timeOrNil(run.FinishedAt),
		statsVal,
		nullableString(run.ErrorDetail),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) Update(run types.Run) error {
	if strings.TrimSpace(run.RunID) == "" {
		return errors.New("run id is required")
	}
	statsVal, err := statsValue(run.Stats)
	if err != nil {
		return fmt.Errorf("marshal run stats: %w", err)
	}

	res, err := s.db.Exec(
		`UPDATE rowdiff_runs SET
            status = ?,
            finished_at = ?,
            stats = ?,
            error_detail = ?
        WHERE run_id = ?`,
		run.Status,
		timeOrNil(run.FinishedAt),
		statsVal,
		nullableString(run.ErrorDetail),
		run.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("ensure rowdiff_runs schema: %w", err)
	}
	return nil
}

func validateForCreate(run types.Run) error {
	if strings.TrimSpace(run.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(run.Status) == "" {
		return errors.New("run status is required")
	}
	if strings.TrimSpace(run.LeftTable) == "" || strings.TrimSpace(run.RightTable) == "" {
		return errors.New("left and right table names are required")
	}
	return nil
}

func statsValue(stats types.Stats) (any, error) {
	blob, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	return string(blob), nil
}

func resolvePath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := os.Getenv("ROWDIFF_TASKS_DB"); strings.TrimSpace(env) != "" {
		return env
	}
	return filepath.Join(".", "rowdiff_tasks.db")
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func nullableString(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
