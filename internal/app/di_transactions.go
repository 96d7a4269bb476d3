package app

import (
	"fmt"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	"github.com/allisson/e2ee/internal/database"
	transactionsRepository "github.com/allisson/e2ee/internal/transactions/repository"
	transactionsUseCase "github.com/allisson/e2ee/internal/transactions/usecase"
)

type transactionsComponents struct {
	transactionRepo    lazy[transactionsUseCase.TransactionRepository]
	transactionUseCase lazy[transactionsUseCase.TransactionUseCase]
}

// TransactionRepository returns the transaction repository for DB_DRIVER.
func (c *Container) TransactionRepository() (transactionsUseCase.TransactionRepository, error) {
	return c.transactionRepo.get(func() (transactionsUseCase.TransactionRepository, error) {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for transaction repository: %w", err)
		}

		switch c.config.DBDriver {
		case database.DriverPostgres:
			return transactionsRepository.NewPostgreSQLTransactionRepository(db), nil
		case database.DriverMySQL:
			return transactionsRepository.NewMySQLTransactionRepository(db), nil
		default:
			return nil, c.unsupportedDriver()
		}
	})
}

// TransactionUseCase returns the transaction manager wrapped with metrics. It resolves
// user keys through KeyUseCase.
func (c *Container) TransactionUseCase() (transactionsUseCase.TransactionUseCase, error) {
	return c.transactionUseCase.get(func() (transactionsUseCase.TransactionUseCase, error) {
		repo, err := c.TransactionRepository()
		if err != nil {
			return nil, err
		}
		keys, err := c.KeyUseCase()
		if err != nil {
			return nil, err
		}
		chain, err := c.MasterKeyChain()
		if err != nil {
			return nil, err
		}
		snapshotCache, err := c.Cache()
		if err != nil {
			return nil, err
		}
		auditor, err := c.Auditor()
		if err != nil {
			return nil, err
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, err
		}

		useCase := transactionsUseCase.NewTransactionUseCase(
			repo,
			keys,
			c.Cipher(),
			chain,
			snapshotCache,
			auditor,
			c.Logger(),
			transactionsUseCase.Options{
				Algorithm: cryptoDomain.Algorithm(c.config.KeysAlgorithm),
				CacheTTL:  c.config.TransactionsCacheTTL,
			},
		)
		return transactionsUseCase.NewTransactionUseCaseWithMetrics(useCase, businessMetrics), nil
	})
}
