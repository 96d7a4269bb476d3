package app

import (
	"context"
	"fmt"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	cryptoService "github.com/allisson/e2ee/internal/crypto/service"
)

type cryptoComponents struct {
	masterKeyChain lazy[*cryptoDomain.MasterKeyChain]
	aeadManager    lazy[cryptoService.AEADManager]
	kmsService     lazy[cryptoService.KMSService]
}

// MasterKeyChain returns the system master keys loaded from MASTER_KEYS and
// ACTIVE_MASTER_KEY_ID, decrypted through KMS_KEY_URI when it is set.
func (c *Container) MasterKeyChain() (*cryptoDomain.MasterKeyChain, error) {
	return c.masterKeyChain.get(func() (*cryptoDomain.MasterKeyChain, error) {
		chain, err := cryptoDomain.LoadMasterKeyChain(
			context.Background(),
			cryptoDomain.MasterKeySourceFromEnv(c.config.KMSKeyURI),
			c.KMSService(),
			c.Logger(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load master key chain: %w", err)
		}
		return chain, nil
	})
}

// AEADManager returns the AEAD manager service.
func (c *Container) AEADManager() cryptoService.AEADManager {
	manager, _ := c.aeadManager.get(func() (cryptoService.AEADManager, error) {
		return cryptoService.NewAEADManager(), nil
	})
	return manager
}

// KeyManager returns a key manager over the shared AEAD manager.
func (c *Container) KeyManager() cryptoService.KeyManager {
	return cryptoService.NewKeyManager(c.AEADManager())
}

// Cipher returns the envelope cipher used for user data and cached bundles.
func (c *Container) Cipher() cryptoService.Cipher {
	return cryptoService.NewEnvelopeCipher(c.AEADManager())
}

// KeyDeriver returns the PBKDF2 deriver configured with KDF_ITERATIONS.
func (c *Container) KeyDeriver() cryptoService.KeyDeriver {
	return cryptoService.NewPBKDF2Deriver(c.config.KDFIterations)
}

// KMSService returns the KMS service.
func (c *Container) KMSService() cryptoService.KMSService {
	service, _ := c.kmsService.get(func() (cryptoService.KMSService, error) {
		return cryptoService.NewKMSService(), nil
	})
	return service
}
