package usecase

import (
	"context"
	"time"

	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
	"github.com/allisson/e2ee/internal/metrics"
)

// keyUseCaseWithMetrics decorates KeyUseCase with metrics instrumentation.
type keyUseCaseWithMetrics struct {
	next    KeyUseCase
	metrics metrics.BusinessMetrics
}

// NewKeyUseCaseWithMetrics wraps a KeyUseCase with metrics recording.
func NewKeyUseCaseWithMetrics(useCase KeyUseCase, m metrics.BusinessMetrics) KeyUseCase {
	return &keyUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (k *keyUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	metrics.Observe(ctx, k.metrics, ModuleName, operation, start, err)
}

func (k *keyUseCaseWithMetrics) GenerateKeys(
	ctx context.Context,
	userID int64,
	passphrase string,
) (*keysDomain.KeyBundle, error) {
	start := time.Now()
	result, err := k.next.GenerateKeys(ctx, userID, passphrase)
	k.record(ctx, "generate_keys", start, err)
	return result, err
}

func (k *keyUseCaseWithMetrics) GetKeys(
	ctx context.Context,
	userID int64,
	passphrase string,
) (*keysDomain.KeyBundle, error) {
	start := time.Now()
	result, err := k.next.GetKeys(ctx, userID, passphrase)
	k.record(ctx, "get_keys", start, err)
	return result, err
}

func (k *keyUseCaseWithMetrics) GetUserKey(ctx context.Context, userID int64) (*keysDomain.KeyBundle, error) {
	start := time.Now()
	result, err := k.next.GetUserKey(ctx, userID)
	k.record(ctx, "get_user_key", start, err)
	return result, err
}

func (k *keyUseCaseWithMetrics) RotateKeys(
	ctx context.Context,
	userID int64,
	passphrase string,
) (*keysDomain.KeyBundle, error) {
	start := time.Now()
	result, err := k.next.RotateKeys(ctx, userID, passphrase)
	k.record(ctx, "rotate_keys", start, err)
	return result, err
}

func (k *keyUseCaseWithMetrics) ForceKeyRotation(
	ctx context.Context,
	userID int64,
	reason string,
) (*keysDomain.EncryptionKey, error) {
	start := time.Now()
	result, err := k.next.ForceKeyRotation(ctx, userID, reason)
	k.record(ctx, "force_key_rotation", start, err)
	return result, err
}

func (k *keyUseCaseWithMetrics) RevokeUserKey(ctx context.Context, userID int64, reason string) (int, error) {
	start := time.Now()
	result, err := k.next.RevokeUserKey(ctx, userID, reason)
	k.record(ctx, "revoke_user_key", start, err)
	return result, err
}

func (k *keyUseCaseWithMetrics) BackupUserKeys(
	ctx context.Context,
	userID int64,
	backupPassword string,
) (*keysDomain.BackupHandle, error) {
	start := time.Now()
	result, err := k.next.BackupUserKeys(ctx, userID, backupPassword)
	k.record(ctx, "backup_user_keys", start, err)
	return result, err
}

func (k *keyUseCaseWithMetrics) RestoreUserKeys(
	ctx context.Context,
	handle *keysDomain.BackupHandle,
	backupPassword string,
) (*keysDomain.KeyBundle, error) {
	start := time.Now()
	result, err := k.next.RestoreUserKeys(ctx, handle, backupPassword)
	k.record(ctx, "restore_user_keys", start, err)
	return result, err
}

func (k *keyUseCaseWithMetrics) CleanupExpiredKeys(ctx context.Context) (int, error) {
	start := time.Now()
	result, err := k.next.CleanupExpiredKeys(ctx)
	k.record(ctx, "cleanup_expired_keys", start, err)
	return result, err
}

func (k *keyUseCaseWithMetrics) ValidateUserKeys(ctx context.Context, userID int64) (bool, error) {
	start := time.Now()
	result, err := k.next.ValidateUserKeys(ctx, userID)
	k.record(ctx, "validate_user_keys", start, err)
	return result, err
}

func (k *keyUseCaseWithMetrics) ListUserKeys(
	ctx context.Context,
	userID int64,
) ([]*keysDomain.EncryptionKey, error) {
	start := time.Now()
	result, err := k.next.ListUserKeys(ctx, userID)
	k.record(ctx, "list_user_keys", start, err)
	return result, err
}
