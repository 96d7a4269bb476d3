package service

import (
	"fmt"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

type aeadFactory func(key []byte) (AEAD, error)

var aeadFactories = map[cryptoDomain.Algorithm]aeadFactory{
	cryptoDomain.AESGCM: func(key []byte) (AEAD, error) {
		c, err := NewAESGCM(key)
		if err != nil {
			return nil, err
		}
		return c, nil
	},
	cryptoDomain.ChaCha20: func(key []byte) (AEAD, error) {
		c, err := NewChaCha20Poly1305(key)
		if err != nil {
			return nil, err
		}
		return c, nil
	},
}

// AEADManagerService builds the AEAD for a configured algorithm. Every key in the
// system (system master, per-user master, user, backup and server-side keys) goes
// through it.
type AEADManagerService struct{}

// NewAEADManager creates a new AEADManagerService.
func NewAEADManager() *AEADManagerService {
	return &AEADManagerService{}
}

// CreateCipher returns the AEAD for alg keyed with key. The key must be KeySize bytes.
func (am *AEADManagerService) CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", cryptoDomain.ErrInvalidKeySize, len(key))
	}

	factory, ok := aeadFactories[alg]
	if !ok {
		return nil, fmt.Errorf("%w: %q", cryptoDomain.ErrUnsupportedAlgorithm, alg)
	}
	return factory(key)
}
