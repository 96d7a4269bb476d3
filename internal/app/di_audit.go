package app

import (
	"fmt"

	auditRepository "github.com/allisson/e2ee/internal/audit/repository"
	auditService "github.com/allisson/e2ee/internal/audit/service"
	auditUseCase "github.com/allisson/e2ee/internal/audit/usecase"
	"github.com/allisson/e2ee/internal/database"
	"github.com/allisson/e2ee/internal/operation"
)

type auditComponents struct {
	auditRepo    lazy[auditUseCase.AuditRecordRepository]
	auditUseCase lazy[auditUseCase.AuditUseCase]
}

// AuditRecordRepository returns the audit repository for DB_DRIVER.
func (c *Container) AuditRecordRepository() (auditUseCase.AuditRecordRepository, error) {
	return c.auditRepo.get(func() (auditUseCase.AuditRecordRepository, error) {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for audit repository: %w", err)
		}

		switch c.config.DBDriver {
		case database.DriverPostgres:
			return auditRepository.NewPostgreSQLAuditRecordRepository(db), nil
		case database.DriverMySQL:
			return auditRepository.NewMySQLAuditRecordRepository(db), nil
		default:
			return nil, c.unsupportedDriver()
		}
	})
}

// AuditUseCase returns the audit use case signing records with the active master key.
func (c *Container) AuditUseCase() (auditUseCase.AuditUseCase, error) {
	return c.auditUseCase.get(func() (auditUseCase.AuditUseCase, error) {
		repo, err := c.AuditRecordRepository()
		if err != nil {
			return nil, err
		}
		chain, err := c.MasterKeyChain()
		if err != nil {
			return nil, err
		}
		return auditUseCase.NewAuditUseCase(repo, auditService.NewAuditSigner(), chain, c.Logger()), nil
	})
}

// Auditor returns the collaborator receiving operation records: the audit use case
// when AUDIT_ENABLED is true, the logger otherwise.
func (c *Container) Auditor() (operation.Auditor, error) {
	if !c.config.AuditEnabled {
		return operation.NewLogAuditor(c.Logger()), nil
	}
	return c.AuditUseCase()
}
