package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"taskflow/internal/config"
)

const logFileName = "taskflow.log"

// newLogger builds the text logger. Records go to the log file when there is
// one. The terminal gets them in verbose mode, or warnings only when there is
// no file; quietStderr keeps them off the terminal entirely.
func newLogger(root string, flags *globalFlags, quietStderr bool) (*slog.Logger, io.Closer) {
	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}

	var writers []io.Writer
	file, err := openLogFile(root, flags.logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskflow: %v\n", err)
	}
	if file != nil {
		writers = append(writers, file)
	}
	if !quietStderr && (flags.verbose || file == nil) {
		writers = append(writers, os.Stderr)
	}
	if file == nil && !flags.verbose {
		level = slog.LevelWarn
	}

	var w io.Writer = io.Discard
	if len(writers) > 0 {
		w = io.MultiWriter(writers...)
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	if file == nil {
		return logger, nil
	}
	return logger, file
}

// openLogFile appends to path, defaulting to .taskflow/logs/taskflow.log.
// The default is only used in an initialized workspace; it returns nil, nil
// otherwise.
func openLogFile(root, path string) (*os.File, error) {
	if path == "" {
		if _, err := os.Stat(filepath.Join(root, config.Dir)); err != nil {
			return nil, nil
		}
		path = filepath.Join(config.LogsDir(root), logFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return f, nil
}
