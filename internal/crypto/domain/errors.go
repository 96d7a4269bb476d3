package domain

import (
	"github.com/allisson/e2ee/internal/errors"
)

// Cryptographic operation errors.
var (
	// ErrUnsupportedAlgorithm indicates the requested encryption algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates a key is not exactly 32 bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrDecryptionFailed indicates a decryption operation failed.
	//
	// Wrong key, tampered ciphertext, wrong nonce or corrupted data all surface as this
	// error. The specific cause is not disclosed.
	ErrDecryptionFailed = errors.Wrap(errors.ErrInvalidInput, "decryption failed")

	// ErrInvalidEnvelope indicates a ciphertext envelope has a malformed IV or tag.
	ErrInvalidEnvelope = errors.Wrap(errors.ErrInvalidInput, "invalid ciphertext envelope")

	// ErrInvalidPassphrase indicates an empty passphrase was given to the key deriver.
	ErrInvalidPassphrase = errors.Wrap(errors.ErrInvalidInput, "invalid passphrase")
)

// Master key configuration errors.
var (
	ErrMasterKeysNotSet         = errors.New("MASTER_KEYS not set")
	ErrActiveMasterKeyIDNotSet  = errors.New("ACTIVE_MASTER_KEY_ID not set")
	ErrInvalidMasterKeysFormat  = errors.New("invalid MASTER_KEYS format")
	ErrInvalidMasterKeyBase64   = errors.New("invalid master key base64")
	ErrActiveMasterKeyNotFound  = errors.New("active master key not found")
	ErrMasterKeyNotFound        = errors.Wrap(errors.ErrNotFound, "master key not found")
	ErrKMSDecryptionFailed      = errors.New("failed to decrypt master key with KMS")
	ErrKMSProviderWithoutKeyURI = errors.New("KMS_PROVIDER set without KMS_KEY_URI")
)
