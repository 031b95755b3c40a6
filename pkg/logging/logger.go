// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures the process-wide slog logger for Stationwise
// services. Logs go to stderr as JSON by default; a service may additionally
// request a rotating file target under a log directory.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level is the log verbosity for a service logger.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel maps a config string onto a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) toSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config controls logger construction.
//
// # Fields
//
//   - Service: logical service name attached to every record.
//   - Level: minimum level emitted.
//   - LogDir: if non-empty, a <service>.log file is written there in
//     addition to stderr.
//   - JSON: emit JSON records (the default for deployed services); text
//     output is for local debugging only.
type Config struct {
	Service string
	Level   Level
	LogDir  string
	JSON    bool
}

// Logger wraps a slog.Logger together with the file handle it may own.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New builds a Logger from cfg and returns it without touching the global
// default. Call SetDefault if the whole process should use it.
func New(cfg Config) (*Logger, error) {
	var targets []io.Writer
	targets = append(targets, os.Stderr)

	var file *os.File
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		path := filepath.Join(cfg.LogDir, cfg.Service+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		targets = append(targets, f)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.toSlog()}
	w := io.MultiWriter(targets...)

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	base := slog.New(handler).With(
		"service", cfg.Service,
		"startedAt", time.Now().UTC().Format(time.RFC3339),
	)
	return &Logger{Logger: base, file: file}, nil
}

// SetDefault installs the logger as the process default so that package-level
// slog calls throughout the codebase share one sink.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

// Close releases the log file if one was opened. Safe to call on a
// stderr-only logger.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
