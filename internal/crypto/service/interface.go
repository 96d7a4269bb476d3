// Package service provides the cryptographic primitives: AEAD ciphers, key wrapping,
// the detached-tag envelope cipher and key derivation.
package service

import (
	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext (tag appended) and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// KeyManager generates symmetric keys and wraps them under other keys.
type KeyManager interface {
	// NewKey returns 32 random bytes.
	NewKey() ([]byte, error)

	// WrapKey encrypts key under wrappingKey. aad binds the wrapped key to its owner.
	WrapKey(wrappingKey []byte, alg cryptoDomain.Algorithm, key, aad []byte) (encrypted, nonce []byte, err error)

	// UnwrapKey reverses WrapKey. Any authentication failure is ErrDecryptionFailed.
	UnwrapKey(wrappingKey []byte, alg cryptoDomain.Algorithm, encrypted, nonce, aad []byte) ([]byte, error)
}

// Cipher is the data encryption primitive: it produces envelopes with a detached tag.
type Cipher interface {
	Encrypt(key []byte, alg cryptoDomain.Algorithm, plaintext, aad []byte) (*cryptoDomain.Envelope, error)
	Decrypt(key []byte, alg cryptoDomain.Algorithm, envelope *cryptoDomain.Envelope, aad []byte) ([]byte, error)
}

// KeyDeriver turns passphrases into wrapping keys.
type KeyDeriver interface {
	// DeriveKey derives a key under a fresh random salt.
	DeriveKey(passphrase string) (*DerivedKey, error)

	// DeriveKeyWithSalt re-derives a key from persisted parameters.
	DeriveKeyWithSalt(passphrase string, salt []byte, iterations int) (*DerivedKey, error)
}
