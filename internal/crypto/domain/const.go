package domain

import "fmt"

// Algorithm represents the AEAD cipher used for key wrapping and data encryption.
//
// Both algorithms use 256-bit keys, 12-byte nonces and 16-byte tags, so keys and
// envelopes are interchangeable in size. Use AESGCM on CPUs with AES-NI and
// ChaCha20 elsewhere.
type Algorithm string

const (
	// AESGCM represents AES-256-GCM.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 represents ChaCha20-Poly1305.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

const (
	// KeySize is the size in bytes of every symmetric key in the system.
	KeySize = 32
	// NonceSize is the AEAD nonce size for both algorithms.
	NonceSize = 12
	// TagSize is the AEAD authentication tag size for both algorithms.
	TagSize = 16
)

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case AESGCM, ChaCha20:
		return Algorithm(name), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}
