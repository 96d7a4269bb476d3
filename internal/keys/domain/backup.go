package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
)

const (
	// BackupSchemaVersion is the payload version written by BackupUserKeys.
	BackupSchemaVersion = 1
	// BackupFormat identifies a backup container.
	BackupFormat = "e2ee-key-backup"
	// BackupKDF names the derivation applied to the backup password.
	BackupKDF = "pbkdf2-sha256"
)

// BackupHandle locates a written backup.
type BackupHandle struct {
	Path          string    `json:"path"`
	UserID        int64     `json:"user_id"`
	KeyID         uuid.UUID `json:"key_id"`
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// BackupPath returns backups/users/<id>/<timestamp>-<key id>.json.
func BackupPath(userID int64, keyID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("backups/users/%d/%s-%s.json", userID, at.UTC().Format("20060102T150405Z"), keyID)
}

// WrappedKey is a key as stored: ciphertext (tag attached) and nonce.
type WrappedKey struct {
	MasterKeyID string `json:"master_key_id,omitempty"`
	Ciphertext  []byte `json:"ciphertext"`
	Nonce       []byte `json:"nonce"`
}

// BackupPassphrase carries the passphrase protection of a protected key.
type BackupPassphrase struct {
	Salt       []byte `json:"salt"`
	Iterations int    `json:"iterations"`
	Verifier   string `json:"verifier"`
}

// BackupPayload is the plaintext sealed inside a BackupContainer. Key material stays
// wrapped exactly as stored.
type BackupPayload struct {
	UserID           int64             `json:"user_id"`
	KeyID            string            `json:"key_id"`
	Algorithm        string            `json:"algorithm"`
	WrappedMasterKey *WrappedKey       `json:"wrapped_master_key"`
	WrappedUserKey   *WrappedKey       `json:"wrapped_user_key"`
	Passphrase       *BackupPassphrase `json:"passphrase,omitempty"`
	BackupDate       time.Time         `json:"backup_date"`
	SchemaVersion    int               `json:"schema_version"`
}

// NewBackupPayload captures key for backup.
func NewBackupPayload(key *EncryptionKey, now time.Time) *BackupPayload {
	payload := &BackupPayload{
		UserID:    key.UserID,
		KeyID:     key.ID.String(),
		Algorithm: string(key.Algorithm),
		WrappedMasterKey: &WrappedKey{
			MasterKeyID: key.MasterKeyID,
			Ciphertext:  key.EncryptedMasterKey,
			Nonce:       key.MasterKeyNonce,
		},
		WrappedUserKey: &WrappedKey{
			Ciphertext: key.EncryptedUserKey,
			Nonce:      key.UserKeyNonce,
		},
		BackupDate:    now,
		SchemaVersion: BackupSchemaVersion,
	}
	if key.IsProtected() {
		payload.Passphrase = &BackupPassphrase{
			Salt:       key.PassphraseSalt,
			Iterations: key.PassphraseIterations,
			Verifier:   key.PassphraseVerifier,
		}
	}
	return payload
}

// Validate checks the schema version first, then that every required field is present.
func (p *BackupPayload) Validate() error {
	if p.SchemaVersion == 0 {
		return fmt.Errorf("%w: schema_version missing", ErrInvalidBackup)
	}
	if p.SchemaVersion != BackupSchemaVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedBackupVersion, p.SchemaVersion)
	}

	var missing string
	switch {
	case p.UserID <= 0:
		missing = "user_id"
	case p.KeyID == "":
		missing = "key_id"
	case p.Algorithm == "":
		missing = "algorithm"
	case !p.WrappedMasterKey.complete():
		missing = "wrapped_master_key"
	case !p.WrappedUserKey.complete():
		missing = "wrapped_user_key"
	case p.BackupDate.IsZero():
		missing = "backup_date"
	case p.Passphrase == nil && p.WrappedMasterKey.MasterKeyID == "":
		missing = "wrapped_master_key.master_key_id"
	case p.Passphrase != nil && (len(p.Passphrase.Salt) == 0 || p.Passphrase.Iterations <= 0):
		missing = "passphrase"
	}
	if missing != "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidBackup, missing)
	}

	if _, err := uuid.Parse(p.KeyID); err != nil {
		return fmt.Errorf("%w: malformed key_id", ErrInvalidBackup)
	}
	if _, err := cryptoDomain.ParseAlgorithm(p.Algorithm); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	return nil
}

func (w *WrappedKey) complete() bool {
	return w != nil && len(w.Ciphertext) > 0 && len(w.Nonce) > 0
}

// BackupContainer is the sealed file written to backup storage. Ciphertext carries the tag.
type BackupContainer struct {
	Format     string `json:"format"`
	KDF        string `json:"kdf"`
	Salt       []byte `json:"salt"`
	Iterations int    `json:"iterations"`
	Algorithm  string `json:"algorithm"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Validate checks the container header before any decryption is attempted.
func (c *BackupContainer) Validate() error {
	if c.Format != BackupFormat || c.KDF != BackupKDF {
		return fmt.Errorf("%w: unknown format", ErrInvalidBackup)
	}
	if len(c.Salt) == 0 || c.Iterations <= 0 {
		return fmt.Errorf("%w: missing kdf parameters", ErrInvalidBackup)
	}
	if _, err := cryptoDomain.ParseAlgorithm(c.Algorithm); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if len(c.Nonce) != cryptoDomain.NonceSize || len(c.Ciphertext) < cryptoDomain.TagSize {
		return fmt.Errorf("%w: truncated ciphertext", ErrInvalidBackup)
	}
	return nil
}
