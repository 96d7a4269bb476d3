// Package operation wraps units of work with structured logging, audit forwarding
// and typed errors.
package operation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	apperrors "github.com/allisson/e2ee/internal/errors"
)

// Runner runs the operations of one module.
type Runner struct {
	module  string
	logger  *slog.Logger
	auditor Auditor
	rules   []Rule
}

// NewRunner creates a Runner. Rules are checked in order before the defaults.
func NewRunner(module string, logger *slog.Logger, auditor Auditor, rules ...Rule) *Runner {
	if auditor == nil {
		auditor = NoOpAuditor{}
	}
	return &Runner{
		module:  module,
		logger:  logger,
		auditor: auditor,
		rules:   rules,
	}
}

// Module returns the module name.
func (r *Runner) Module() string {
	return r.module
}

// Run executes fn as operation op. fields describe the input and are redacted
// before they reach the log or the auditor.
func (r *Runner) Run(ctx context.Context, op string, fields map[string]any, fn func(ctx context.Context) error) error {
	return r.run(ctx, op, fields, fn, 3)
}

// Do is Run for functions returning a value.
func Do[T any](
	ctx context.Context,
	r *Runner,
	op string,
	fields map[string]any,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var result T
	err := r.run(ctx, op, fields, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	}, 3)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (r *Runner) run(
	ctx context.Context,
	op string,
	fields map[string]any,
	fn func(ctx context.Context) error,
	skip int,
) error {
	safe := Redact(fields)
	start := time.Now()

	r.logger.DebugContext(ctx, op+"_start",
		slog.String("module", r.module),
		slog.Any("context", safe),
	)
	r.auditor.Record(ctx, r.module, op+"_start", safe)

	err := fn(ctx)
	if err == nil {
		r.logger.InfoContext(ctx, op+"_success",
			slog.String("module", r.module),
			slog.Any("context", safe),
			slog.Duration("duration", time.Since(start)),
		)
		r.auditor.Record(ctx, r.module, op+"_success", safe)
		return nil
	}

	opErr := r.wrap(op, safe, err, skip)

	r.logger.ErrorContext(ctx, op+"_error",
		slog.String("module", r.module),
		slog.String("kind", string(opErr.Kind)),
		slog.String("fault_type", opErr.FaultType),
		slog.String("location", opErr.Location),
		slog.Any("context", safe),
		slog.Any("error", err),
	)
	r.auditor.Record(ctx, r.module, op+"_error", errorFields(safe, opErr))

	return opErr
}

func (r *Runner) wrap(op string, safe map[string]any, err error, skip int) *Error {
	var inner *Error
	if apperrors.As(err, &inner) {
		return &Error{
			Op:        op,
			Module:    r.module,
			Kind:      inner.Kind,
			Context:   safe,
			FaultType: inner.FaultType,
			Location:  inner.Location,
			Err:       inner.Err,
		}
	}

	return &Error{
		Op:        op,
		Module:    r.module,
		Kind:      classify(err, r.rules),
		Context:   safe,
		FaultType: fmt.Sprintf("%T", err),
		Location:  callerLocation(skip + 1),
		Err:       err,
	}
}

func errorFields(safe map[string]any, opErr *Error) map[string]any {
	out := make(map[string]any, len(safe)+3)
	for k, v := range safe {
		out[k] = v
	}
	out["error"] = opErr.Err.Error()
	out["kind"] = string(opErr.Kind)
	out["fault_type"] = opErr.FaultType
	return out
}

func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
