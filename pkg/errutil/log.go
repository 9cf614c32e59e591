// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package errutil logs and asserts oops errors consistently.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at ERROR with its oops code and context, if any.
// Extra attrs are appended as key/value pairs.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	log(ctx, logger, slog.LevelError, msg, err, attrs)
}

// LogWarn is LogError at WARN, for failures that do not affect the outcome
// returned to the caller.
func LogWarn(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	log(ctx, logger, slog.LevelWarn, msg, err, attrs)
}

func log(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error, extra []any) {
	if logger == nil {
		logger = slog.Default()
	}

	attrs := make([]any, 0, len(extra)+6)
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs = append(attrs, "error", oopsErr.Error())
		if code := oopsErr.Code(); code != nil && code != "" {
			attrs = append(attrs, "code", code)
		}
		if errCtx := oopsErr.Context(); len(errCtx) > 0 {
			attrs = append(attrs, "context", errCtx)
		}
	} else {
		attrs = append(attrs, "error", err)
	}
	attrs = append(attrs, extra...)

	logger.Log(ctx, level, msg, attrs...)
}
