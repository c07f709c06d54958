// ///////////////////////////////////////////////////////////////////////////
//
// # rowdiff
//
// Copyright (C) 2026, the rowdiff authors
//
// This software is released under the PostgreSQL License:
// https://opensource.org/license/postgresql
//
// ///////////////////////////////////////////////////////////////////////////

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/pgedge/rowdiff/internal/core"
	"github.com/pgedge/rowdiff/internal/db"
	"github.com/pgedge/rowdiff/internal/jobs"
	"github.com/pgedge/rowdiff/internal/scheduler"
	"github.com/pgedge/rowdiff/internal/server"
	"github.com/pgedge/rowdiff/pkg/config"
	"github.com/pgedge/rowdiff/pkg/logger"
	"github.com/pgedge/rowdiff/pkg/types"
)

func SetupCLI() *cli.App {
	commonFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
			Value:   false,
		},
	}

	sideFlags := func(side string) []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:  side + "-driver",
				Usage: "Driver for the " + side + " side: postgres or mysql",
				Value: "postgres",
			},
			&cli.StringFlag{
				Name:     side + "-dsn",
				Usage:    "Connection string for the " + side + " side",
				Required: true,
			},
			&cli.StringFlag{
				Name:     side + "-table",
				Usage:    "Qualified table name on the " + side + " side",
				Required: true,
			},
			&cli.StringFlag{
				Name:  side + "-keys",
				Usage: "Comma-separated primary key columns for the " + side + " side (default: id; the right side defaults to the left side's keys)",
			},
			&cli.StringFlag{
				Name:  side + "-cols",
				Usage: "Comma-separated data columns for the " + side + " side (the right side defaults to the left side's columns; the run fails if neither side names any)",
			},
			&cli.IntFlag{
				Name:  side + "-keylen",
				Usage: "Max composite key length for the " + side + " side",
				Value: 255,
			},
		}
	}

	diffFlags := []cli.Flag{
		&cli.IntFlag{
			Name:  "factor",
			Usage: "Folding factor: each cascade level folds 2^factor buckets of the level below into one",
			Value: 7,
		},
		&cli.IntFlag{
			Name:  "max-levels",
			Usage: "Cap on the number of cascade levels (0: unbounded)",
		},
		&cli.IntFlag{
			Name:  "max-report",
			Usage: "Abort once a single level's investigate set exceeds this size (0: unbounded)",
			Value: 32,
		},
		&cli.StringFlag{
			Name:  "where",
			Usage: "Extra SQL predicate restricting both sides to a subset of rows",
		},
		&cli.StringFlag{
			Name:  "prefix",
			Usage: "Prefix for the cascade tables this run creates",
			Value: "cmp",
		},
		&cli.BoolFlag{
			Name:  "parallel",
			Usage: "Query both sides concurrently at every cascade level",
		},
		&cli.BoolFlag{
			Name:  "no-cleanup",
			Usage: "Leave the cascade tables in place after the run finishes",
		},
		&cli.BoolFlag{
			Name:  "persistent",
			Usage: "Create cascade tables as ordinary tables instead of temporary ones",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress the progress bar",
		},
	}

	diffCmdFlags := append(append(append([]cli.Flag{}, commonFlags...), sideFlags("left")...), sideFlags("right")...)
	diffCmdFlags = append(diffCmdFlags, diffFlags...)

	configInitFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "path",
			Usage: "Where to write the config file (default: rowdiff.yaml)",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Overwrite an existing file",
		},
		&cli.BoolFlag{
			Name:  "stdout",
			Usage: "Print the default config to standard output instead of writing a file",
		},
	}

	debugBefore := func(ctx *cli.Context) error {
		if ctx.Bool("debug") {
			logger.SetLevel(log.DebugLevel)
		} else {
			logger.SetLevel(log.InfoLevel)
		}
		return nil
	}

	app := &cli.App{
		Name:  "rowdiff",
		Usage: "row-level checksum diffing between two SQL tables",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Manage rowdiff configuration files",
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "Create a default rowdiff.yaml file",
						Flags:  configInitFlags,
						Action: ConfigInitCLI,
					},
				},
			},
			{
				Name:   "diff",
				Usage:  "Compare two tables and report the differences",
				Flags:  diffCmdFlags,
				Before: debugBefore,
				Action: DiffCLI,
			},
			{
				Name:  "server",
				Usage: "Run the rowdiff HTTP API server",
				Flags: commonFlags,
				Before: func(ctx *cli.Context) error {
					if err := requireConfig(); err != nil {
						return err
					}
					return debugBefore(ctx)
				},
				Action: ServerCLI,
			},
			{
				Name:  "start",
				Usage: "Start the scheduler for configured jobs, and the API server if configured",
				Flags: append(append([]cli.Flag{}, commonFlags...), &cli.StringFlag{
					Name:    "component",
					Aliases: []string{"C"},
					Usage:   "Component to start: scheduler, api, or all",
					Value:   "all",
				}),
				Before: func(ctx *cli.Context) error {
					if err := requireConfig(); err != nil {
						return err
					}
					return debugBefore(ctx)
				},
				Action: StartCLI,
			},
		},
	}

	return app
}

func requireConfig() error {
	if config.Cfg == nil {
		return fmt.Errorf("configuration not loaded; run inside a directory with rowdiff.yaml or set ROWDIFF_CONFIG")
	}
	return nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func sideInputFromFlags(ctx *cli.Context, side string) (core.SideInput, error) {
	driver := ctx.String(side + "-driver")
	dsn := ctx.String(side + "-dsn")
	tableName := ctx.String(side + "-table")
	if strings.TrimSpace(dsn) == "" || strings.TrimSpace(tableName) == "" {
		return core.SideInput{}, fmt.Errorf("--%s-dsn and --%s-table are required", side, side)
	}

	s, err := db.Connect(context.Background(), driver, dsn)
	if err != nil {
		return core.SideInput{}, fmt.Errorf("connect %s: %w", side, err)
	}

	return core.SideInput{
		Querier: s,
		Table:   tableName,
		Keys:    splitList(ctx.String(side + "-keys")),
		Cols:    splitList(ctx.String(side + "-cols")),
		KeyLen:  ctx.Int(side + "-keylen"),
	}, nil
}

func optionsFromFlags(ctx *cli.Context) types.Options {
	opts := types.DefaultOptions()
	if v := ctx.Int("factor"); v > 0 {
		opts.Factor = v
	}
	opts.MaxLevels = ctx.Int("max-levels")
	opts.MaxReport = ctx.Int("max-report")
	if opts.MaxReport == 0 {
		// ResolveOptions reads 0 as "use the default"; a negative value
		// turns the check off.
		opts.MaxReport = -1
	}
	opts.Where = ctx.String("where")
	if v := ctx.String("prefix"); v != "" {
		opts.Prefix = v
	}
	opts.Parallel = ctx.Bool("parallel")
	if ctx.IsSet("persistent") {
		temporary := !ctx.Bool("persistent")
		opts.Temporary = &temporary
	}
	if ctx.IsSet("no-cleanup") {
		cleanup := !ctx.Bool("no-cleanup")
		opts.Cleanup = &cleanup
	} else {
		cleanup := !*opts.Temporary
		opts.Cleanup = &cleanup
	}
	return opts
}

// DiffCLI runs a single one-off comparison and prints its results as a
// table of insert/update/delete events followed by a summary.
func DiffCLI(ctx *cli.Context) error {
	leftIn, err := sideInputFromFlags(ctx, "left")
	if err != nil {
		return err
	}
	defer closeQuerier(leftIn.Querier)

	rightIn, err := sideInputFromFlags(ctx, "right")
	if err != nil {
		return err
	}
	defer closeQuerier(rightIn.Querier)

	cmp, err := core.NewComparator(leftIn, rightIn, optionsFromFlags(ctx))
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Type", "Key"})

	var progress *mpb.Progress
	var bar *mpb.Bar
	if !ctx.Bool("quiet") {
		progress = mpb.New(mpb.WithOutput(os.Stderr))
		bar = progress.AddBar(0,
			mpb.BarRemoveOnComplete(),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("comparing %s <-> %s: ", leftIn.Table, rightIn.Table)),
				decor.CountersNoUnit("%d diffs"),
			),
			mpb.AppendDecorators(
				decor.Elapsed(decor.ET_STYLE_GO),
				decor.Name(" | "),
				decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "done"),
			),
		)
	}

	stats, err := cmp.Process(runCtx, func(e types.Event) error {
		tw.AppendRow(table.Row{e.Type, e.Key})
		if bar != nil {
			bar.SetTotal(bar.Current()+1, false)
			bar.Increment()
		}
		return nil
	})
	if bar != nil {
		bar.SetTotal(bar.Current(), true)
		progress.Wait()
	}
	if err != nil {
		return err
	}
	if stats.TotalDiffs() > 0 {
		tw.Render()
	}

	summary := table.NewWriter()
	summary.SetOutputMirror(os.Stdout)
	summary.AppendHeader(table.Row{"Metric", "Value"})
	summary.AppendRows([]table.Row{
		{"Left rows", stats.LeftCount},
		{"Right rows", stats.RightCount},
		{"Folding factor", stats.Factor},
		{"Cascade levels", stats.Levels},
		{"Inserts", stats.Inserts},
		{"Updates", stats.Updates},
		{"Deletes", stats.Deletes},
		{"Total diffs", stats.TotalDiffs()},
		{"Checksum time", stats.ChecksumElapsed},
		{"Summary time", stats.SummaryElapsed},
		{"Merge time", stats.MergeElapsed},
		{"Bulk time", stats.BulkElapsed},
	})
	summary.Render()

	return nil
}

func closeQuerier(q core.Querier) {
	if c, ok := q.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func initTemplateFile(ctx *cli.Context, content []byte, defaultPath string, label string, perm os.FileMode) error {
	outputPath := ctx.String("path")
	if outputPath == "" {
		outputPath = defaultPath
	}

	if ctx.Bool("stdout") || outputPath == "-" {
		fmt.Println(string(content))
		return nil
	}

	if !ctx.Bool("force") {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("%s already exists at %s (use --force to overwrite)", label, outputPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("unable to verify existing %s at %s: %w", label, outputPath, err)
		}
	}

	dir := filepath.Dir(outputPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(outputPath, content, perm); err != nil {
		return fmt.Errorf("failed to write %s to %s: %w", label, outputPath, err)
	}

	fmt.Printf("Wrote %s to %s\n", label, outputPath)
	return nil
}

func ConfigInitCLI(ctx *cli.Context) error {
	return initTemplateFile(ctx, config.DefaultYAML(), "rowdiff.yaml", "config file", 0o644)
}

func ServerCLI(ctx *cli.Context) error {
	apiServer, err := server.New(config.Cfg)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return apiServer.Run(runCtx)
}

func StartCLI(ctx *cli.Context) error {
	component := strings.ToLower(strings.TrimSpace(ctx.String("component")))
	runScheduler := false
	runAPI := false
	switch component {
	case "", "all":
		runScheduler = true
		runAPI = true
	case "scheduler":
		runScheduler = true
	case "api":
		runAPI = true
	default:
		return fmt.Errorf("invalid component %q (expected scheduler, api, or all)", component)
	}

	scheduledJobs, err := jobs.BuildJobsFromConfig(config.Cfg)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	type runner struct {
		name string
		run  func(context.Context) error
	}

	var runners []runner

	if runScheduler {
		if len(scheduledJobs) == 0 {
			logger.Info("scheduler: no enabled jobs found in configuration")
		} else {
			for _, job := range scheduledJobs {
				logger.Info("scheduler: registering job %s", job.Name)
			}
			runners = append(runners, runner{
				name: "scheduler",
				run: func(ctx context.Context) error {
					return scheduler.RunJobs(ctx, scheduledJobs)
				},
			})
		}
	}

	if runAPI {
		if ok, apiErr := canStartAPIServer(config.Cfg); ok {
			apiServer, err := server.New(config.Cfg)
			if err != nil {
				return fmt.Errorf("api server init failed: %w", err)
			}
			runners = append(runners, runner{
				name: "api-server",
				run: func(ctx context.Context) error {
					return apiServer.Run(ctx)
				},
			})
		} else if component == "api" {
			return fmt.Errorf("api server requested but cannot start: %w", apiErr)
		} else {
			logger.Info("api server not started: %v", apiErr)
		}
	}

	if len(runners) == 0 {
		return nil
	}

	errCh := make(chan error, len(runners))
	for _, r := range runners {
		go func(r runner) {
			errCh <- r.run(runCtx)
		}(r)
	}

	for i := 0; i < len(runners); i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			stop()
			return err
		}
	}

	return nil
}

func canStartAPIServer(cfg *config.Config) (bool, error) {
	if cfg == nil {
		return false, fmt.Errorf("configuration not loaded")
	}
	if strings.TrimSpace(cfg.Server.CertAuth.ServerCert) == "" {
		return false, fmt.Errorf("server.cert_auth.server_cert_file is not configured")
	}
	if strings.TrimSpace(cfg.Server.CertAuth.ServerKey) == "" {
		return false, fmt.Errorf("server.cert_auth.server_key_file is not configured")
	}
	if strings.TrimSpace(cfg.Server.CertAuth.CACertFile) == "" {
		return false, fmt.Errorf("server.cert_auth.ca_cert_file is not configured")
	}
	return true, nil
}
