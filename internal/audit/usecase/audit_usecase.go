package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/e2ee/internal/audit/domain"
	auditService "github.com/allisson/e2ee/internal/audit/service"
	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	apperrors "github.com/allisson/e2ee/internal/errors"
	"github.com/allisson/e2ee/internal/operation"
)

const verifyPageSize = 500

type auditUseCase struct {
	repo           AuditRecordRepository
	signer         auditService.AuditSigner
	masterKeyChain *cryptoDomain.MasterKeyChain
	logger         *slog.Logger
	now            func() time.Time
}

// NewAuditUseCase creates the audit use case. A nil chain stores records unsigned.
func NewAuditUseCase(
	repo AuditRecordRepository,
	signer auditService.AuditSigner,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	logger *slog.Logger,
) AuditUseCase {
	return &auditUseCase{
		repo:           repo,
		signer:         signer,
		masterKeyChain: masterKeyChain,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (a *auditUseCase) Record(ctx context.Context, module, action string, fields map[string]any) {
	record := &auditDomain.AuditRecord{
		ID:        uuid.Must(uuid.NewV7()),
		Module:    module,
		Action:    action,
		Context:   operation.Redact(fields),
		CreatedAt: a.now(),
	}

	if a.masterKeyChain != nil {
		if masterKey, err := a.masterKeyChain.Active(); err == nil {
			record.MasterKeyID = masterKey.ID
			signature, err := a.signer.Sign(masterKey.Key, record)
			if err != nil {
				a.logger.Warn("failed to sign audit record",
					slog.String("action", action), slog.Any("error", err))
			} else {
				record.Signature = signature
				record.IsSigned = true
			}
		}
	}

	if err := a.repo.Create(ctx, record); err != nil {
		a.logger.Warn("failed to persist audit record",
			slog.String("module", module),
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}

func (a *auditUseCase) List(
	ctx context.Context,
	offset, limit int,
	createdAtFrom, createdAtTo *time.Time,
) ([]*auditDomain.AuditRecord, error) {
	records, err := a.repo.List(ctx, offset, limit, createdAtFrom, createdAtTo)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit records")
	}
	return records, nil
}

func (a *auditUseCase) VerifyBatch(ctx context.Context, start, end time.Time) (*VerificationReport, error) {
	if !end.After(start) {
		return nil, auditDomain.ErrInvalidTimeRange
	}

	report := &VerificationReport{InvalidRecords: make([]uuid.UUID, 0)}

	for offset := 0; ; offset += verifyPageSize {
		records, err := a.repo.List(ctx, offset, verifyPageSize, &start, &end)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to list audit records")
		}

		for _, record := range records {
			report.TotalChecked++
			if !record.IsSigned {
				report.UnsignedCount++
				continue
			}
			report.SignedCount++

			if a.verify(record) {
				report.ValidCount++
			} else {
				report.InvalidCount++
				report.InvalidRecords = append(report.InvalidRecords, record.ID)
			}
		}

		if len(records) < verifyPageSize {
			break
		}
	}

	return report, nil
}

func (a *auditUseCase) verify(record *auditDomain.AuditRecord) bool {
	if a.masterKeyChain == nil {
		return false
	}
	masterKey, ok := a.masterKeyChain.Get(record.MasterKeyID)
	if !ok {
		return false
	}
	return a.signer.Verify(masterKey.Key, record) == nil
}

func (a *auditUseCase) DeleteOlderThan(ctx context.Context, days int, dryRun bool) (int64, error) {
	if days < 0 {
		return 0, auditDomain.ErrInvalidRetention
	}

	olderThan := a.now().AddDate(0, 0, -days)

	count, err := a.repo.DeleteOlderThan(ctx, olderThan, dryRun)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit records")
	}

	return count, nil
}
