package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

func TestEnvelopeCipher(t *testing.T) {
	c := NewEnvelopeCipher(NewAEADManager())

	for _, alg := range []cryptoDomain.Algorithm{cryptoDomain.AESGCM, cryptoDomain.ChaCha20} {
		t.Run("Success_RoundTrip_"+string(alg), func(t *testing.T) {
			key := randomKey(t)

			env, err := c.Encrypt(key, alg, []byte("hello"), nil)
			require.NoError(t, err)
			assert.Len(t, env.Ciphertext, 5)
			assert.Len(t, env.IV, cryptoDomain.NonceSize)
			assert.Len(t, env.Tag, cryptoDomain.TagSize)

			plaintext, err := c.Decrypt(key, alg, env, nil)
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), plaintext)
		})
	}

	t.Run("Success_AttachedTag", func(t *testing.T) {
		key := randomKey(t)
		env, err := c.Encrypt(key, cryptoDomain.AESGCM, []byte("payload"), nil)
		require.NoError(t, err)

		attached := &cryptoDomain.Envelope{
			Ciphertext: append(append([]byte(nil), env.Ciphertext...), env.Tag...),
			IV:         env.IV,
		}
		plaintext, err := c.Decrypt(key, cryptoDomain.AESGCM, attached, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), plaintext)
	})

	t.Run("Success_EmptyPlaintext", func(t *testing.T) {
		key := randomKey(t)
		env, err := c.Encrypt(key, cryptoDomain.AESGCM, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, env.Ciphertext)

		plaintext, err := c.Decrypt(key, cryptoDomain.AESGCM, env, nil)
		require.NoError(t, err)
		assert.Empty(t, plaintext)
	})

	t.Run("Error_TamperedTag", func(t *testing.T) {
		key := randomKey(t)
		env, err := c.Encrypt(key, cryptoDomain.AESGCM, []byte("hello"), nil)
		require.NoError(t, err)

		env.Tag[0] ^= 0x01
		_, err = c.Decrypt(key, cryptoDomain.AESGCM, env, nil)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("Error_WrongKey", func(t *testing.T) {
		env, err := c.Encrypt(randomKey(t), cryptoDomain.ChaCha20, []byte("hello"), nil)
		require.NoError(t, err)

		_, err = c.Decrypt(randomKey(t), cryptoDomain.ChaCha20, env, nil)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("Error_MalformedEnvelope", func(t *testing.T) {
		_, err := c.Decrypt(randomKey(t), cryptoDomain.AESGCM, &cryptoDomain.Envelope{IV: []byte("x")}, nil)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidEnvelope)
	})
}
