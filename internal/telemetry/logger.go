// Package telemetry carries the run-scoped logger, Prometheus metrics and
// OpenTelemetry spans shared by the scoring and rule packages.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type loggerKey struct{}
type runIDKey struct{}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the logger carried by ctx, or the default logger.
func Logger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}

// StartRun opens a batch run: it assigns a fresh run id and attaches a
// logger tagged with the run id and the evaluation to the context.
func StartRun(ctx context.Context, operation string, evaluationID int64) (context.Context, string) {
	runID := uuid.NewString()
	logger := Logger(ctx).With("run_id", runID, "operation", operation, "evaluation_id", evaluationID)
	ctx = context.WithValue(ctx, runIDKey{}, runID)
	return WithLogger(ctx, logger), runID
}

// RunID returns the run id set by StartRun, if any.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
