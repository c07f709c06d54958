// Package jobs turns the config file's schedule_jobs/schedule_config
// entries into scheduler.Job values that run the comparator directly,
// so a scheduled diff needs no more than a job definition and a cron
// or frequency spec.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pgedge/rowdiff/internal/core"
	"github.com/pgedge/rowdiff/internal/db"
	"github.com/pgedge/rowdiff/internal/scheduler"
	"github.com/pgedge/rowdiff/pkg/config"
	"github.com/pgedge/rowdiff/pkg/types"
)

type scheduleSpec struct {
	frequency time.Duration
	cron      string
}

// BuildJobsFromConfig turns every enabled entry in cfg.ScheduleConfig
// into a scheduler.Job, resolved against its named entry in
// cfg.ScheduleJobs.
func BuildJobsFromConfig(cfg *config.Config) ([]scheduler.Job, error) {
	if cfg == nil {
		return nil, fmt.Errorf("scheduler: configuration is not initialised")
	}

	jobDefs := make(map[string]config.JobDef, len(cfg.ScheduleJobs))
	for _, def := range cfg.ScheduleJobs {
		jobDefs[def.Name] = def
	}

	var jobs []scheduler.Job
	for _, sched := range cfg.ScheduleConfig {
		if !sched.Enabled {
			continue
		}
		def, ok := jobDefs[sched.JobName]
		if !ok {
			return nil, fmt.Errorf("scheduler: job definition %q not found", sched.JobName)
		}
		spec, err := specFromConfig(sched)
		if err != nil {
			return nil, fmt.Errorf("scheduler: job %q: %w", def.Name, err)
		}
		job, err := buildComparatorJob(def, spec)
		if err != nil {
			return nil, fmt.Errorf("scheduler: job %q: %w", def.Name, err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func specFromConfig(def config.SchedDef) (scheduleSpec, error) {
	var spec scheduleSpec

	if strings.TrimSpace(def.CrontabSchedule) != "" {
		spec.cron = def.CrontabSchedule
	}
	if strings.TrimSpace(def.RunFrequency) != "" {
		freq, err := scheduler.ParseFrequency(def.RunFrequency)
		if err != nil {
			return scheduleSpec{}, err
		}
		spec.frequency = freq
	}

	if spec.cron == "" && spec.frequency == 0 {
		return scheduleSpec{}, fmt.Errorf("either run_frequency or crontab_schedule must be set")
	}
	if spec.cron != "" && spec.frequency > 0 {
		return scheduleSpec{}, fmt.Errorf("cannot set both run_frequency and crontab_schedule")
	}

	return spec, nil
}

func buildComparatorJob(def config.JobDef, spec scheduleSpec) (scheduler.Job, error) {
	if strings.TrimSpace(def.Left.Table) == "" || strings.TrimSpace(def.Right.Table) == "" {
		return scheduler.Job{}, fmt.Errorf("left.table and right.table are required")
	}

	name := def.Name
	if name == "" {
		name = fmt.Sprintf("%s<->%s", def.Left.Table, def.Right.Table)
	}

	return scheduler.Job{
		Name:       name,
		Frequency:  spec.frequency,
		Cron:       spec.cron,
		RunOnStart: true,
		Task: func(ctx context.Context) (types.Stats, error) {
			return runComparatorJob(ctx, def)
		},
	}, nil
}

func runComparatorJob(ctx context.Context, def config.JobDef) (types.Stats, error) {
	leftSide, err := db.Connect(ctx, def.Left.Driver, def.Left.DSN)
	if err != nil {
		return types.Stats{}, fmt.Errorf("connect left: %w", err)
	}
	defer leftSide.Close()

	rightSide, err := db.Connect(ctx, def.Right.Driver, def.Right.DSN)
	if err != nil {
		return types.Stats{}, fmt.Errorf("connect right: %w", err)
	}
	defer rightSide.Close()

	opts := diffConfigToOptions(def.Diff)

	cmp, err := core.NewComparator(
		core.SideInput{Querier: leftSide, Table: def.Left.Table, Keys: def.Left.Keys, Cols: def.Left.Cols, KeyLen: def.Left.KeyLen},
		core.SideInput{Querier: rightSide, Table: def.Right.Table, Keys: def.Right.Keys, Cols: def.Right.Cols, KeyLen: def.Right.KeyLen},
		opts,
	)
	if err != nil {
		return types.Stats{}, err
	}

	return cmp.Process(ctx, func(types.Event) error { return nil })
}

func diffConfigToOptions(d config.DiffConfig) types.Options {
	opts := types.DefaultOptions()
	if d.Factor > 0 {
		opts.Factor = d.Factor
	}
	opts.MaxLevels = d.MaxLevels
	opts.MaxReport = d.MaxReport
	if d.Sep != "" {
		opts.Sep = d.Sep
	}
	if d.Prefix != "" {
		opts.Prefix = d.Prefix
	}
	if d.Null != "" {
		opts.Null = d.Null
	}
	if d.Concat != "" {
		opts.Concat = d.Concat
	}
	if d.Checksum != "" {
		opts.Checksum = d.Checksum
	}
	if d.Aggregate != "" {
		opts.Aggregate = d.Aggregate
	}
	if d.Temporary != nil {
		opts.Temporary = d.Temporary
	}
	if d.Cleanup != nil {
		opts.Cleanup = d.Cleanup
	} else {
		cleanup := !*opts.Temporary
		opts.Cleanup = &cleanup
	}
	opts.Parallel = d.Parallel
	return opts
}
