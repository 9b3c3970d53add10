package metrictree

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with metrictree-specific helpers so build and
// query events carry consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// LogBuild logs the outcome of a bulk build.
func (l *Logger) LogBuild(ctx context.Context, items int, stats TreeStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"items", items,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "build completed",
		"items", items,
		"height", stats.Height,
		"nodes", stats.Nodes,
		"leaves", stats.Leaves,
		"distance_computations", stats.BuildDistanceComputations,
		"duration", stats.BuildDuration,
	)
}

// LogDegenerate records a partition that could not be split any further and
// was emitted as a leaf.
func (l *Logger) LogDegenerate(ctx context.Context, depth, size int, reason string) {
	l.DebugContext(ctx, "forced leaf",
		"depth", depth,
		"size", size,
		"reason", reason,
	)
}

// LogQuery logs a finished range or kNN query.
func (l *Logger) LogQuery(ctx context.Context, kind string, results int, stats QueryStats, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"kind", kind,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "query completed",
		"kind", kind,
		"results", results,
		"distance_computations", stats.DistanceComputations,
		"nodes_visited", stats.NodesVisited,
		"duration", elapsed,
	)
}
