// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// New returns a logger writing to w in the given format ("text" or "json").
// It panics on an unknown format; config validation rejects those earlier.
func New(level, format string, w io.Writer) *slog.Logger {
	return slog.New(handlerForFormat(format, ParseLevel(level), w))
}

// NewChecked is like New but reports an unknown format as an error
func NewChecked(level, format string, w io.Writer) (*slog.Logger, error) {
	switch format {
	case "text", "json":
		return New(level, format, w), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func handlerForFormat(format string, level slog.Level, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}

	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "text":
		opts.ReplaceAttr = shortenSource
		return slog.NewTextHandler(w, opts)
	default:
		panic(fmt.Sprintf("invalid format: %s", format))
	}
}

// shortenSource keeps the last two directories and the file name of the source
func shortenSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	src, ok := a.Value.Any().(*slog.Source)
	if !ok {
		return a
	}
	parts := strings.Split(filepath.ToSlash(src.File), "/")
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	src.File = filepath.Join(parts...)
	return a
}

// ParseLevel maps a level name to a slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
