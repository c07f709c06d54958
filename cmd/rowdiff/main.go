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

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pgedge/rowdiff/internal/cli"
	"github.com/pgedge/rowdiff/pkg/config"
	"github.com/pgedge/rowdiff/pkg/logger"
)

func main() {
	var cfgPath string
	if !shouldSkipConfig(os.Args[1:]) {
		potentialPaths := []string{}

		// Order of precedence for finding the config file:
		// 1. env var (ROWDIFF_CONFIG)
		// 2. current dir
		// 3. $HOME/.config/rowdiff/
		// 4. /etc/rowdiff/
		if envPath := os.Getenv("ROWDIFF_CONFIG"); envPath != "" {
			potentialPaths = append(potentialPaths, envPath)
		}

		potentialPaths = append(potentialPaths, "rowdiff.yaml")
		if home, err := os.UserHomeDir(); err == nil {
			p := filepath.Join(home, ".config", "rowdiff", "rowdiff.yaml")
			potentialPaths = append(potentialPaths, p)
		}

		potentialPaths = append(potentialPaths, "/etc/rowdiff/rowdiff.yaml")

		for _, p := range potentialPaths {
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
				break
			}
		}

		if cfgPath != "" {
			if err := config.Init(cfgPath); err != nil {
				logger.Fatal("loading config (%s): %v", cfgPath, err)
			}
		}
	}

	app := cli.SetupCLI()
	if err := app.Run(os.Args); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func shouldSkipConfig(args []string) bool {
	if len(args) == 0 {
		return true
	}

	for _, arg := range args {
		if arg == "--help" || arg == "-h" || arg == "help" {
			return true
		}
	}

	var commandPath []string
	for _, arg := range args {
		if arg == "--" {
			break
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		commandPath = append(commandPath, arg)
		if len(commandPath) >= 2 {
			break
		}
	}

	if len(commandPath) == 0 {
		return true
	}

	if commandPath[0] == "config" {
		if len(commandPath) == 1 || commandPath[1] == "init" {
			return true
		}
	}
	if commandPath[0] == "diff" {
		return true
	}

	return false
}
