package service

import (
	"crypto/rand"
	"fmt"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

// KeyManagerService generates and wraps keys for the system master key ->
// user master key -> user key hierarchy.
type KeyManagerService struct {
	aeadManager AEADManager
}

// NewKeyManager creates a new KeyManagerService.
func NewKeyManager(aeadManager AEADManager) *KeyManagerService {
	return &KeyManagerService{
		aeadManager: aeadManager,
	}
}

// NewKey returns a fresh 32-byte key from crypto/rand.
func (km *KeyManagerService) NewKey() ([]byte, error) {
	key := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// WrapKey encrypts key under wrappingKey.
func (km *KeyManagerService) WrapKey(
	wrappingKey []byte,
	alg cryptoDomain.Algorithm,
	key, aad []byte,
) (encrypted, nonce []byte, err error) {
	aead, err := km.aeadManager.CreateCipher(wrappingKey, alg)
	if err != nil {
		return nil, nil, err
	}

	encrypted, nonce, err = aead.Encrypt(key, aad)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wrap key: %w", err)
	}
	return encrypted, nonce, nil
}

// UnwrapKey decrypts a key wrapped by WrapKey.
func (km *KeyManagerService) UnwrapKey(
	wrappingKey []byte,
	alg cryptoDomain.Algorithm,
	encrypted, nonce, aad []byte,
) ([]byte, error) {
	aead, err := km.aeadManager.CreateCipher(wrappingKey, alg)
	if err != nil {
		return nil, err
	}

	key, err := aead.Decrypt(encrypted, nonce, aad)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	if len(key) != cryptoDomain.KeySize {
		cryptoDomain.Zero(key)
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	return key, nil
}
