package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

// sealer draws a fresh nonce from crypto/rand on every Encrypt and returns the
// ciphertext with the tag appended. Safe for concurrent use.
type sealer struct {
	aead cipher.AEAD
}

func (s sealer) Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nil, nonce, plaintext, aad), nonce, nil
}

func (s sealer) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(nonce) != s.aead.NonceSize() || len(ciphertext) < s.aead.Overhead() {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// AESGCMCipher implements AEAD with AES-256-GCM.
type AESGCMCipher struct {
	sealer
}

// NewAESGCM creates an AES-256-GCM cipher. The key must be exactly 32 bytes.
func NewAESGCM(key []byte) (*AESGCMCipher, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &AESGCMCipher{sealer{aead: aead}}, nil
}

// ChaCha20Poly1305Cipher implements AEAD with ChaCha20-Poly1305.
type ChaCha20Poly1305Cipher struct {
	sealer
}

// NewChaCha20Poly1305 creates a ChaCha20-Poly1305 cipher.
func NewChaCha20Poly1305(key []byte) (*ChaCha20Poly1305Cipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}
	return &ChaCha20Poly1305Cipher{sealer{aead: aead}}, nil
}
