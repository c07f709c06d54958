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

package logger

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

var (
	Log = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
)

func SetLevel(level log.Level) {
	Log.SetLevel(level)
}

func SetOutput(w *os.File) {
	Log.SetOutput(w)
}

// SetVerbosity maps the comparator's 0..3 diagnostic verbosity to a
// charmbracelet/log level: 0 is errors only, 3 is debug.
func SetVerbosity(v int) {
	switch {
	case v <= 0:
		Log.SetLevel(log.ErrorLevel)
	case v == 1:
		Log.SetLevel(log.WarnLevel)
	case v == 2:
		Log.SetLevel(log.InfoLevel)
	default:
		Log.SetLevel(log.DebugLevel)
	}
}

func Info(format string, args ...any) {
	Log.Infof(format, args...)
}

func Debug(format string, args ...any) {
	Log.Debugf(format, args...)
}

func Warn(format string, args ...any) {
	Log.Warnf(format, args...)
}

func Error(format string, args ...any) error {
	Log.Errorf(format, args...)
	return fmt.Errorf(format, args...)
}

func Fatal(msg any, args ...any) {
	Log.Fatal(msg, args...)
}
