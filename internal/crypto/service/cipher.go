package service

import (
	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

// EnvelopeCipher implements Cipher on top of an AEADManager, splitting the tag
// off the sealed output.
type EnvelopeCipher struct {
	aeadManager AEADManager
}

// NewEnvelopeCipher creates an EnvelopeCipher.
func NewEnvelopeCipher(aeadManager AEADManager) *EnvelopeCipher {
	return &EnvelopeCipher{aeadManager: aeadManager}
}

// Encrypt seals plaintext and returns the envelope with a detached tag.
func (c *EnvelopeCipher) Encrypt(
	key []byte,
	alg cryptoDomain.Algorithm,
	plaintext, aad []byte,
) (*cryptoDomain.Envelope, error) {
	aead, err := c.aeadManager.CreateCipher(key, alg)
	if err != nil {
		return nil, err
	}

	sealed, nonce, err := aead.Encrypt(plaintext, aad)
	if err != nil {
		return nil, err
	}

	split := len(sealed) - cryptoDomain.TagSize
	return &cryptoDomain.Envelope{
		Ciphertext: sealed[:split:split],
		IV:         nonce,
		Tag:        sealed[split:],
	}, nil
}

// Decrypt opens an envelope. When the tag is absent the ciphertext is expected to
// still carry it at the end.
func (c *EnvelopeCipher) Decrypt(
	key []byte,
	alg cryptoDomain.Algorithm,
	envelope *cryptoDomain.Envelope,
	aad []byte,
) ([]byte, error) {
	if err := envelope.Validate(); err != nil {
		return nil, err
	}

	aead, err := c.aeadManager.CreateCipher(key, alg)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(envelope.Ciphertext)+len(envelope.Tag))
	sealed = append(sealed, envelope.Ciphertext...)
	sealed = append(sealed, envelope.Tag...)

	return aead.Decrypt(sealed, envelope.IV, aad)
}
