// Package joblog routes log output to the right job without threading a job
// handle through every call.
//
// The orchestrator binds a job-scoped *zap.Logger into the task's
// context.Context before invoking it. Code anywhere in the task's call tree
// retrieves it with FromContext; the binding survives goroutine hops as long
// as the context is propagated, and concurrent jobs each carry their own
// independent binding. With no binding present, FromContext returns a no-op
// logger, so logging is always safe but produces no job-attributed output.
package joblog

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/waqasshaukat/job-applicator/internal/jobmanager/logbuffer"
)

type ctxKey struct{}

// WithJob returns a context carrying the job-bound logger.
func WithJob(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the job-bound logger, or a no-op logger if the
// context has no binding.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return logger
	}

	return zap.NewNop()
}

// New builds a logger whose entries are appended to buf. When parent is
// non-nil, entries are additionally forwarded to it, so process-level
// diagnostics still see job output.
func New(buf *logbuffer.Buffer, parent *zap.Logger) *zap.Logger {
	core := newBufferCore(buf)

	if parent == nil {
		return zap.New(core)
	}

	return zap.New(zapcore.NewTee(core, parent.Core()))
}
