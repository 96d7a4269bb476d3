package app

import (
	"context"
	"fmt"

	"github.com/allisson/e2ee/internal/cache"
	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	"github.com/allisson/e2ee/internal/database"
	keysRepository "github.com/allisson/e2ee/internal/keys/repository"
	keysService "github.com/allisson/e2ee/internal/keys/service"
	keysUseCase "github.com/allisson/e2ee/internal/keys/usecase"
	"github.com/allisson/e2ee/internal/storage"
)

type keysComponents struct {
	cache         lazy[cache.Cache]
	blobStore     lazy[storage.BlobStore]
	encryptionKey lazy[keysUseCase.EncryptionKeyRepository]
	keyUseCase    lazy[keysUseCase.KeyUseCase]
}

// Cache returns the cache selected by CACHE_DRIVER. Key bundles and transaction
// snapshots share it under distinct key prefixes.
func (c *Container) Cache() (cache.Cache, error) {
	return c.cache.get(func() (cache.Cache, error) {
		store, err := cache.New(c.config.CacheDriver, c.config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		return store, nil
	})
}

// BlobStore returns the bucket at BACKUP_BUCKET_URL.
func (c *Container) BlobStore() (storage.BlobStore, error) {
	return c.blobStore.get(func() (storage.BlobStore, error) {
		store, err := storage.OpenBucketStore(context.Background(), c.config.BackupBucketURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open backup bucket: %w", err)
		}
		return store, nil
	})
}

// EncryptionKeyRepository returns the key repository for DB_DRIVER.
func (c *Container) EncryptionKeyRepository() (keysUseCase.EncryptionKeyRepository, error) {
	return c.encryptionKey.get(func() (keysUseCase.EncryptionKeyRepository, error) {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for encryption key repository: %w", err)
		}

		switch c.config.DBDriver {
		case database.DriverPostgres:
			return keysRepository.NewPostgreSQLEncryptionKeyRepository(db), nil
		case database.DriverMySQL:
			return keysRepository.NewMySQLEncryptionKeyRepository(db), nil
		default:
			return nil, c.unsupportedDriver()
		}
	})
}

// KeyUseCase returns the key lifecycle manager wrapped with metrics.
func (c *Container) KeyUseCase() (keysUseCase.KeyUseCase, error) {
	return c.keyUseCase.get(c.initKeyUseCase)
}

func (c *Container) initKeyUseCase() (keysUseCase.KeyUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for key use case: %w", err)
	}
	repo, err := c.EncryptionKeyRepository()
	if err != nil {
		return nil, err
	}
	chain, err := c.MasterKeyChain()
	if err != nil {
		return nil, err
	}
	keyCache, err := c.Cache()
	if err != nil {
		return nil, err
	}
	blobStore, err := c.BlobStore()
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

	useCase := keysUseCase.NewKeyUseCase(
		txManager,
		repo,
		c.KeyManager(),
		c.Cipher(),
		c.KeyDeriver(),
		keysService.NewPassphraseVerifier(),
		chain,
		keyCache,
		blobStore,
		auditor,
		c.Logger(),
		keysUseCase.Options{
			Algorithm:                 cryptoDomain.Algorithm(c.config.KeysAlgorithm),
			RotationInterval:          c.config.KeysRotationInterval,
			CacheTTL:                  c.config.KeysCacheTTL,
			AutoGenerate:              c.config.KeysAutoGenerate,
			RestoreRateLimitPerMinute: c.config.RestoreRateLimitPerMinute,
			RestoreRateLimitBurst:     c.config.RestoreRateLimitBurst,
		},
	)
	return keysUseCase.NewKeyUseCaseWithMetrics(useCase, businessMetrics), nil
}
