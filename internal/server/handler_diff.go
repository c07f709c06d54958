package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pgedge/rowdiff/internal/core"
	"github.com/pgedge/rowdiff/internal/db"
	"github.com/pgedge/rowdiff/pkg/logger"
	"github.com/pgedge/rowdiff/pkg/taskstore"
	"github.com/pgedge/rowdiff/pkg/types"
)

type sideRequest struct {
	Driver string   `json:"driver"`
	DSN    string   `json:"dsn"`
	Table  string   `json:"table"`
	Keys   []string `json:"keys"`
	Cols   []string `json:"cols"`
	KeyLen int      `json:"keylen"`
}

type optionsRequest struct {
	Factor     int    `json:"factor"`
	MaxLevels  int    `json:"max_levels"`
	MaxReport  int    `json:"max_report"`
	Sep        string `json:"sep"`
	Where      string `json:"where"`
	Prefix     string `json:"prefix"`
	Null       string `json:"null"`
	Concat     string `json:"concat"`
	Checksum   string `json:"checksum"`
	Aggregate  string `json:"aggregate"`
	Parallel   bool   `json:"parallel"`
	NoCleanup  *bool  `json:"no_cleanup"`
	Persistent *bool  `json:"persistent"`
}

// toOptions resolves the request onto the engine's own defaults.
// Persistent/NoCleanup are *bool, not bool: an absent JSON field must
// leave temporary/cleanup at their conditional default rather than
// forcing both true, the way a bare bool's zero value would.
func (o optionsRequest) toOptions() types.Options {
	opts := types.DefaultOptions()
	if o.Factor > 0 {
		opts.Factor = o.Factor
	}
	opts.MaxLevels = o.MaxLevels
	opts.MaxReport = o.MaxReport
	if o.Sep != "" {
		opts.Sep = o.Sep
	}
	opts.Where = o.Where
	if o.Prefix != "" {
		opts.Prefix = o.Prefix
	}
	if o.Null != "" {
		opts.Null = o.Null
	}
	if o.Concat != "" {
		opts.Concat = o.Concat
	}
	if o.Checksum != "" {
		opts.Checksum = o.Checksum
	}
	if o.Aggregate != "" {
		opts.Aggregate = o.Aggregate
	}
	opts.Parallel = o.Parallel
	if o.Persistent != nil {
		temporary := !*o.Persistent
		opts.Temporary = &temporary
	}
	if o.NoCleanup != nil {
		cleanup := !*o.NoCleanup
		opts.Cleanup = &cleanup
	} else {
		cleanup := !*opts.Temporary
		opts.Cleanup = &cleanup
	}
	return opts
}

type diffRequest struct {
	Left    sideRequest    `json:"left"`
	Right   sideRequest    `json:"right"`
	Options optionsRequest `json:"options"`
	Async   bool           `json:"async"`
}

type diffResponse struct {
	RunID  string       `json:"run_id"`
	Status string       `json:"status"`
	Stats  types.Stats  `json:"stats,omitempty"`
	Events []types.Event `json:"events,omitempty"`
}

func (s *APIServer) handleDiff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "only POST is supported")
		return
	}
	defer r.Body.Close()

	var req diffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if strings.TrimSpace(req.Left.Table) == "" || strings.TrimSpace(req.Right.Table) == "" {
		writeError(w, http.StatusBadRequest, "left.table and right.table are required")
		return
	}

	clientInfo, ok := getClientInfo(r.Context())
	if !ok || strings.TrimSpace(clientInfo.role) == "" {
		writeError(w, http.StatusUnauthorized, "client identity unavailable")
		return
	}

	runID := uuid.NewString()
	run := types.Run{
		RunID:      runID,
		LeftTable:  req.Left.Table,
		RightTable: req.Right.Table,
		Status:     taskstore.StatusPending,
		StartedAt:  time.Now(),
	}
	if err := s.taskStore.Create(run); err != nil {
		logger.Error("failed to record run %s: %v", runID, err)
		writeError(w, http.StatusInternalServerError, "failed to record run")
		return
	}

	execute := func(ctx context.Context) (types.Stats, []types.Event, error) {
		leftSide, err := db.Connect(ctx, req.Left.Driver, req.Left.DSN)
		if err != nil {
			return types.Stats{}, nil, fmt.Errorf("connect left: %w", err)
		}
		defer leftSide.Close()

		rightSide, err := db.Connect(ctx, req.Right.Driver, req.Right.DSN)
		if err != nil {
			return types.Stats{}, nil, fmt.Errorf("connect right: %w", err)
		}
		defer rightSide.Close()

		cmp, err := core.NewComparator(
			core.SideInput{Querier: leftSide, Table: req.Left.Table, Keys: req.Left.Keys, Cols: req.Left.Cols, KeyLen: req.Left.KeyLen},
			core.SideInput{Querier: rightSide, Table: req.Right.Table, Keys: req.Right.Keys, Cols: req.Right.Cols, KeyLen: req.Right.KeyLen},
			req.Options.toOptions(),
		)
		if err != nil {
			return types.Stats{}, nil, err
		}

		var events []types.Event
		stats, err := cmp.Process(ctx, func(e types.Event) error {
			events = append(events, e)
			return nil
		})
		return stats, events, err
	}

	finish := func(ctx context.Context) error {
		stats, _, err := execute(ctx)
		finished := run
		finished.FinishedAt = time.Now()
		finished.Stats = stats
		if err != nil {
			finished.Status = taskstore.StatusFailed
			finished.ErrorDetail = err.Error()
		} else {
			finished.Status = taskstore.StatusCompleted
		}
		return s.taskStore.Update(finished)
	}

	if req.Async {
		running := run
		running.Status = taskstore.StatusRunning
		if err := s.taskStore.Update(running); err != nil {
			logger.Warn("failed to mark run %s running: %v", runID, err)
		}
		if err := s.enqueueTask(runID, finish); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, diffResponse{RunID: runID, Status: taskstore.StatusRunning})
		return
	}

	stats, events, err := execute(r.Context())
	completed := run
	completed.FinishedAt = time.Now()
	completed.Stats = stats
	if err != nil {
		completed.Status = taskstore.StatusFailed
		completed.ErrorDetail = err.Error()
		if uerr := s.taskStore.Update(completed); uerr != nil {
			logger.Warn("failed to record failed run %s: %v", runID, uerr)
		}
		logger.Error("diff run %s failed: %v", runID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	completed.Status = taskstore.StatusCompleted
	if err := s.taskStore.Update(completed); err != nil {
		logger.Warn("failed to record completed run %s: %v", runID, err)
	}

	writeJSON(w, http.StatusOK, diffResponse{RunID: runID, Status: taskstore.StatusCompleted, Stats: stats, Events: events})
}

func (s *APIServer) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "only GET is supported")
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	runID = strings.Trim(runID, "/")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run id is required")
		return
	}

	run, err := s.taskStore.Get(runID)
	if err != nil {
		if err == taskstore.ErrNotFound {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, run)
}
