package service

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

const (
	// DefaultKDFIterations is the PBKDF2 iteration count used when none is configured.
	DefaultKDFIterations = 100000
	// SaltSize is the size of the random salt drawn per derivation.
	SaltSize = 16
)

// DerivedKey is a passphrase-derived key with the parameters needed to derive it again.
type DerivedKey struct {
	Key        []byte
	Salt       []byte
	Iterations int
}

// PBKDF2Deriver implements KeyDeriver with PBKDF2-HMAC-SHA256.
type PBKDF2Deriver struct {
	iterations int
}

// NewPBKDF2Deriver creates a deriver. A non-positive iteration count falls back to the default.
func NewPBKDF2Deriver(iterations int) *PBKDF2Deriver {
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	return &PBKDF2Deriver{iterations: iterations}
}

// DeriveKey derives a 32-byte key from passphrase under a fresh random salt.
func (d *PBKDF2Deriver) DeriveKey(passphrase string) (*DerivedKey, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return d.DeriveKeyWithSalt(passphrase, salt, d.iterations)
}

// DeriveKeyWithSalt derives the key for persisted salt and iterations.
func (d *PBKDF2Deriver) DeriveKeyWithSalt(passphrase string, salt []byte, iterations int) (*DerivedKey, error) {
	if passphrase == "" {
		return nil, cryptoDomain.ErrInvalidPassphrase
	}
	if len(salt) == 0 || iterations <= 0 {
		return nil, fmt.Errorf("%w: missing salt or iterations", cryptoDomain.ErrInvalidPassphrase)
	}

	key := pbkdf2.Key([]byte(passphrase), salt, iterations, cryptoDomain.KeySize, sha256.New)
	return &DerivedKey{
		Key:        key,
		Salt:       append([]byte(nil), salt...),
		Iterations: iterations,
	}, nil
}

// ExpandKey derives a 32-byte subkey from secret with HKDF-SHA256.
func ExpandKey(secret, salt, info []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	key := make([]byte, cryptoDomain.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}
