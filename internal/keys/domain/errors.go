// Package domain defines per-user encryption keys, their lifecycle and backups.
package domain

import (
	"github.com/allisson/e2ee/internal/errors"
)

// Key lifecycle errors.
var (
	// ErrInvalidUser indicates a user id that is not positive.
	ErrInvalidUser = errors.Wrap(errors.ErrInvalidInput, "invalid user id")

	// ErrNoActiveKey indicates the user has no active key.
	ErrNoActiveKey = errors.Wrap(errors.ErrNotFound, "no active key")

	// ErrKeyNotFound indicates no key exists with the given id.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "key not found")

	// ErrKeyExpired indicates the active key is past its expiry.
	ErrKeyExpired = errors.Wrap(errors.ErrConflict, "key expired")

	// ErrInvalidStatusTransition indicates a status change the lifecycle does not allow.
	ErrInvalidStatusTransition = errors.Wrap(errors.ErrConflict, "invalid key status transition")

	// ErrPassphraseRequired indicates the key is passphrase protected and no passphrase was given.
	ErrPassphraseRequired = errors.Wrap(errors.ErrUnauthorized, "passphrase required")

	// ErrInvalidPassphrase indicates the passphrase does not match the key.
	ErrInvalidPassphrase = errors.Wrap(errors.ErrUnauthorized, "invalid passphrase")

	// ErrReasonRequired indicates a forced rotation or revocation without a reason.
	ErrReasonRequired = errors.Wrap(errors.ErrInvalidInput, "reason is required")
)

// Backup errors.
var (
	// ErrInvalidBackup indicates a backup that is missing, malformed or lacks required fields.
	ErrInvalidBackup = errors.Wrap(errors.ErrInvalidInput, "invalid backup")

	// ErrUnsupportedBackupVersion indicates a backup written with another schema version.
	ErrUnsupportedBackupVersion = errors.Wrap(errors.ErrInvalidInput, "unsupported backup version")

	// ErrBackupPasswordRequired indicates an empty backup password.
	ErrBackupPasswordRequired = errors.Wrap(errors.ErrInvalidInput, "backup password is required")

	// ErrTooManyAttempts indicates the restore attempts for a backup exceeded the rate limit.
	ErrTooManyAttempts = errors.Wrap(errors.ErrTooManyRequests, "too many restore attempts")
)
