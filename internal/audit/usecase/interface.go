// Package usecase records, verifies and prunes audit records.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/e2ee/internal/audit/domain"
)

// AuditRecordRepository persists audit records.
type AuditRecordRepository interface {
	Create(ctx context.Context, record *auditDomain.AuditRecord) error
	List(ctx context.Context, offset, limit int, createdAtFrom, createdAtTo *time.Time) ([]*auditDomain.AuditRecord, error)
	DeleteOlderThan(ctx context.Context, olderThan time.Time, dryRun bool) (int64, error)
}

// VerificationReport summarizes an integrity check over a time range.
type VerificationReport struct {
	TotalChecked   int64
	SignedCount    int64
	UnsignedCount  int64
	ValidCount     int64
	InvalidCount   int64
	InvalidRecords []uuid.UUID
}

// AuditUseCase is the audit collaborator. Record satisfies operation.Auditor.
type AuditUseCase interface {
	// Record persists one operation step. Failures are logged and never returned.
	Record(ctx context.Context, module, action string, fields map[string]any)

	// List returns records newest first.
	List(ctx context.Context, offset, limit int, createdAtFrom, createdAtTo *time.Time) ([]*auditDomain.AuditRecord, error)

	// VerifyBatch checks the signature of every record created in [start, end].
	VerifyBatch(ctx context.Context, start, end time.Time) (*VerificationReport, error)

	// DeleteOlderThan removes records older than days. With dryRun it only counts them.
	DeleteOlderThan(ctx context.Context, days int, dryRun bool) (int64, error)
}
