/////////////////////////////////////////////////////////////////////////////
//
// rowdiff-server
//
// Copyright (C) 2026, the rowdiff authors
//
// This software is released under the PostgreSQL License:
//      https://opensource.org/license/postgresql
//
/////////////////////////////////////////////////////////////////////////////

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pgedge/rowdiff/internal/server"
	"github.com/pgedge/rowdiff/pkg/config"
	"github.com/pgedge/rowdiff/pkg/logger"
)

func main() {
	cfgPath := "rowdiff.yaml"
	if envPath := os.Getenv("ROWDIFF_CONFIG"); envPath != "" {
		cfgPath = envPath
	} else if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		execPath, err := os.Executable()
		if err != nil {
			logger.Fatal("unable to determine executable path: %v", err)
		}
		root := filepath.Dir(filepath.Dir(execPath))
		cfgPath = filepath.Join(root, "rowdiff.yaml")
	}
	if err := config.Init(cfgPath); err != nil {
		logger.Fatal("loading config (%s): %v", cfgPath, err)
	}
	logger.SetVerbosity(config.Cfg.Verbosity)

	apiServer, err := server.New(config.Cfg)
	if err != nil {
		logger.Fatal("failed to initialise API server: %v", err)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := apiServer.Run(runCtx); err != nil {
		logger.Fatal("API server exited with error: %v", err)
	}
}
