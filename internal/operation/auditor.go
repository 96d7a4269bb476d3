package operation

import (
	"context"
	"log/slog"
)

// Auditor receives one record per operation step. It is fire-and-forget: the
// caller never reads audit state back and audit failures never fail an operation.
type Auditor interface {
	Record(ctx context.Context, module, action string, fields map[string]any)
}

// NoOpAuditor discards every record.
type NoOpAuditor struct{}

func (NoOpAuditor) Record(context.Context, string, string, map[string]any) {}

// LogAuditor writes records to a slog logger.
type LogAuditor struct {
	logger *slog.Logger
}

// NewLogAuditor creates a LogAuditor.
func NewLogAuditor(logger *slog.Logger) *LogAuditor {
	return &LogAuditor{logger: logger}
}

func (a *LogAuditor) Record(ctx context.Context, module, action string, fields map[string]any) {
	a.logger.InfoContext(ctx, "audit",
		slog.String("module", module),
		slog.String("action", action),
		slog.Any("context", fields),
	)
}
