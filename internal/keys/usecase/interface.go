// Package usecase implements the per-user key lifecycle: generation, caching,
// rotation, revocation, backup and restore.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
)

// EncryptionKeyRepository persists EncryptionKey records. Keys are never deleted.
type EncryptionKeyRepository interface {
	Create(ctx context.Context, key *keysDomain.EncryptionKey) error
	Update(ctx context.Context, key *keysDomain.EncryptionKey) error
	GetActiveByUserID(ctx context.Context, userID int64) (*keysDomain.EncryptionKey, error)
	GetByID(ctx context.Context, id uuid.UUID) (*keysDomain.EncryptionKey, error)
	ListByUserID(ctx context.Context, userID int64) ([]*keysDomain.EncryptionKey, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*keysDomain.EncryptionKey, error)
}

// KeyUseCase owns the EncryptionKey lifecycle.
type KeyUseCase interface {
	// GenerateKeys creates a new active key, rotating any key that is still active.
	// With a passphrase the per-user master key is wrapped by a passphrase-derived key.
	GenerateKeys(ctx context.Context, userID int64, passphrase string) (*keysDomain.KeyBundle, error)

	// GetKeys returns the active key, from cache when possible. It never generates or rotates.
	GetKeys(ctx context.Context, userID int64, passphrase string) (*keysDomain.KeyBundle, error)

	// GetUserKey is GetKeys for the transaction path: it generates a missing key and
	// rotates an expired one.
	GetUserKey(ctx context.Context, userID int64) (*keysDomain.KeyBundle, error)

	// RotateKeys replaces the active key. The prior key is kept as rotated.
	RotateKeys(ctx context.Context, userID int64, passphrase string) (*keysDomain.KeyBundle, error)

	// ForceKeyRotation rotates outside the expiry policy and records reason on both keys.
	ForceKeyRotation(ctx context.Context, userID int64, reason string) (*keysDomain.EncryptionKey, error)

	// RevokeUserKey revokes every active, rotated and restored key of the user.
	RevokeUserKey(ctx context.Context, userID int64, reason string) (int, error)

	// BackupUserKeys writes the active key, sealed under backupPassword, to backup storage.
	BackupUserKeys(ctx context.Context, userID int64, backupPassword string) (*keysDomain.BackupHandle, error)

	// RestoreUserKeys makes the key in a backup the user's active key again.
	RestoreUserKeys(
		ctx context.Context,
		handle *keysDomain.BackupHandle,
		backupPassword string,
	) (*keysDomain.KeyBundle, error)

	// CleanupExpiredKeys marks active keys past expiry as expired and returns how many.
	CleanupExpiredKeys(ctx context.Context) (int, error)

	// ValidateUserKeys round-trips a random sample through the user key.
	ValidateUserKeys(ctx context.Context, userID int64) (bool, error)

	// ListUserKeys returns the key history of the user without key material.
	ListUserKeys(ctx context.Context, userID int64) ([]*keysDomain.EncryptionKey, error)
}
