package usecase

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/e2ee/internal/cache"
	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	cryptoService "github.com/allisson/e2ee/internal/crypto/service"
	"github.com/allisson/e2ee/internal/database"
	"github.com/allisson/e2ee/internal/keylock"
	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
	keysService "github.com/allisson/e2ee/internal/keys/service"
	"github.com/allisson/e2ee/internal/operation"
	"github.com/allisson/e2ee/internal/storage"
	appValidation "github.com/allisson/e2ee/internal/validation"
)

const (
	// ModuleName identifies key operations in logs, audit records and metrics.
	ModuleName = "keys"

	defaultRotationInterval = 90 * 24 * time.Hour
	cleanupBatchSize        = 500
)

// ErrorRules classify key lifecycle failures. cryptoDomain.ErrDecryptionFailed wraps
// ErrInvalidInput, so it must precede the defaults.
var ErrorRules = []operation.Rule{
	{Err: keysDomain.ErrInvalidUser, Kind: operation.KindInvalidUser},
	{Err: keysDomain.ErrNoActiveKey, Kind: operation.KindNoActiveKey},
	{Err: keysDomain.ErrKeyExpired, Kind: operation.KindKeyExpired},
	{Err: keysDomain.ErrPassphraseRequired, Kind: operation.KindPassphraseRequired},
	{Err: keysDomain.ErrInvalidPassphrase, Kind: operation.KindInvalidPassphrase},
	{Err: cryptoDomain.ErrInvalidPassphrase, Kind: operation.KindInvalidPassphrase},
	{Err: keysDomain.ErrUnsupportedBackupVersion, Kind: operation.KindUnsupportedBackupVersion},
	{Err: keysDomain.ErrInvalidBackup, Kind: operation.KindInvalidBackup},
	{Err: cryptoDomain.ErrDecryptionFailed, Kind: operation.KindDecryptionFailed},
	{Err: keysDomain.ErrTooManyAttempts, Kind: operation.KindRateLimited},
}

// Options configures the key lifecycle.
type Options struct {
	Algorithm                 cryptoDomain.Algorithm
	RotationInterval          time.Duration
	CacheTTL                  time.Duration
	AutoGenerate              bool
	RestoreRateLimitPerMinute float64
	RestoreRateLimitBurst     int
}

type keyUseCase struct {
	runner         *operation.Runner
	txManager      database.TxManager
	repo           EncryptionKeyRepository
	keyManager     cryptoService.KeyManager
	cipher         cryptoService.Cipher
	deriver        cryptoService.KeyDeriver
	verifier       keysService.PassphraseVerifier
	masterKeyChain *cryptoDomain.MasterKeyChain
	cache          *bundleCache
	blobStore      storage.BlobStore
	restoreLimiter *restoreLimiter
	locks          *keylock.KeyLock
	opts           Options
	now            func() time.Time
}

// NewKeyUseCase creates the key lifecycle manager.
func NewKeyUseCase(
	txManager database.TxManager,
	repo EncryptionKeyRepository,
	keyManager cryptoService.KeyManager,
	cipher cryptoService.Cipher,
	deriver cryptoService.KeyDeriver,
	verifier keysService.PassphraseVerifier,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	keyCache cache.Cache,
	blobStore storage.BlobStore,
	auditor operation.Auditor,
	logger *slog.Logger,
	opts Options,
) KeyUseCase {
	if opts.Algorithm == "" {
		opts.Algorithm = cryptoDomain.AESGCM
	}
	if opts.RotationInterval <= 0 {
		opts.RotationInterval = defaultRotationInterval
	}

	now := func() time.Time { return time.Now().UTC() }

	k := &keyUseCase{
		runner:         operation.NewRunner(ModuleName, logger, auditor, ErrorRules...),
		txManager:      txManager,
		repo:           repo,
		keyManager:     keyManager,
		cipher:         cipher,
		deriver:        deriver,
		verifier:       verifier,
		masterKeyChain: masterKeyChain,
		blobStore:      blobStore,
		restoreLimiter: newRestoreLimiter(opts.RestoreRateLimitPerMinute, opts.RestoreRateLimitBurst),
		locks:          keylock.New(),
		opts:           opts,
		now:            now,
	}
	k.cache = &bundleCache{
		cache:          keyCache,
		cipher:         cipher,
		masterKeyChain: masterKeyChain,
		algorithm:      opts.Algorithm,
		ttl:            opts.CacheTTL,
		logger:         logger,
		now:            func() time.Time { return k.now() },
	}
	return k
}

func (k *keyUseCase) GenerateKeys(
	ctx context.Context,
	userID int64,
	passphrase string,
) (*keysDomain.KeyBundle, error) {
	fields := map[string]any{"user_id": userID, "protected": passphrase != ""}

	return operation.Do(ctx, k.runner, "generate_keys", fields,
		func(ctx context.Context) (*keysDomain.KeyBundle, error) {
			if err := validateUserID(userID); err != nil {
				return nil, err
			}

			unlock := k.lock(userID)
			defer unlock()

			next, wrap, err := k.replaceActive(ctx, userID, passphrase, false,
				func(current, _ *keysDomain.EncryptionKey) error {
					if current != nil {
						current.SetMetadata(keysDomain.MetaRotationReason, "superseded")
					}
					return nil
				})
			if err != nil {
				return nil, err
			}

			bundle := keysDomain.NewKeyBundle(next)
			bundle.Wrap = wrap
			k.cache.put(ctx, bundle)
			return bundle, nil
		})
}

func (k *keyUseCase) GetKeys(ctx context.Context, userID int64, passphrase string) (*keysDomain.KeyBundle, error) {
	fields := map[string]any{"user_id": userID, "with_passphrase": passphrase != ""}

	return operation.Do(ctx, k.runner, "get_keys", fields,
		func(ctx context.Context) (*keysDomain.KeyBundle, error) {
			if err := validateUserID(userID); err != nil {
				return nil, err
			}

			unlock := k.lock(userID)
			defer unlock()

			return k.loadKeys(ctx, userID, passphrase, false)
		})
}

func (k *keyUseCase) GetUserKey(ctx context.Context, userID int64) (*keysDomain.KeyBundle, error) {
	return operation.Do(ctx, k.runner, "get_user_key", map[string]any{"user_id": userID},
		func(ctx context.Context) (*keysDomain.KeyBundle, error) {
			if err := validateUserID(userID); err != nil {
				return nil, err
			}

			unlock := k.lock(userID)
			defer unlock()

			if bundle := k.cache.get(ctx, userID); bundle != nil {
				return bundle, nil
			}

			current, err := k.repo.GetActiveByUserID(ctx, userID)
			if errors.Is(err, keysDomain.ErrNoActiveKey) && k.opts.AutoGenerate {
				return k.replaceActiveBundle(ctx, userID, nil)
			}
			if err != nil {
				return nil, err
			}

			if current.IsProtected() {
				return nil, keysDomain.ErrPassphraseRequired
			}

			if current.IsExpired(k.now()) {
				return k.replaceActiveBundle(ctx, userID, func(current, _ *keysDomain.EncryptionKey) error {
					if current == nil {
						return nil
					}
					if current.IsProtected() {
						return keysDomain.ErrPassphraseRequired
					}
					current.SetMetadata(keysDomain.MetaRotationReason, "expired")
					return nil
				})
			}

			if err := k.unwrap(current, ""); err != nil {
				return nil, err
			}

			bundle := keysDomain.NewKeyBundle(current)
			k.cache.put(ctx, bundle)
			return bundle, nil
		})
}

func (k *keyUseCase) RotateKeys(ctx context.Context, userID int64, passphrase string) (*keysDomain.KeyBundle, error) {
	fields := map[string]any{"user_id": userID, "protected": passphrase != ""}

	return operation.Do(ctx, k.runner, "rotate_keys", fields,
		func(ctx context.Context) (*keysDomain.KeyBundle, error) {
			if err := validateUserID(userID); err != nil {
				return nil, err
			}

			unlock := k.lock(userID)
			defer unlock()

			next, wrap, err := k.replaceActive(ctx, userID, passphrase, true,
				func(current, _ *keysDomain.EncryptionKey) error {
					if current.IsProtected() && passphrase == "" {
						return keysDomain.ErrPassphraseRequired
					}
					current.SetMetadata(keysDomain.MetaRotationReason, "manual")
					return nil
				})
			if err != nil {
				return nil, err
			}

			bundle := keysDomain.NewKeyBundle(next)
			bundle.Wrap = wrap
			k.cache.put(ctx, bundle)
			return bundle, nil
		})
}

func (k *keyUseCase) ForceKeyRotation(
	ctx context.Context,
	userID int64,
	reason string,
) (*keysDomain.EncryptionKey, error) {
	fields := map[string]any{"user_id": userID, "reason": reason}

	return operation.Do(ctx, k.runner, "force_key_rotation", fields,
		func(ctx context.Context) (*keysDomain.EncryptionKey, error) {
			if err := validateUserID(userID); err != nil {
				return nil, err
			}
			if err := validateReason(reason); err != nil {
				return nil, err
			}

			unlock := k.lock(userID)
			defer unlock()

			next, _, err := k.replaceActive(ctx, userID, "", true,
				func(current, next *keysDomain.EncryptionKey) error {
					for _, key := range []*keysDomain.EncryptionKey{current, next} {
						key.SetMetadata(keysDomain.MetaRotationReason, reason)
						key.SetMetadata(keysDomain.MetaForcedRotation, true)
					}
					if current.IsProtected() {
						next.SetMetadata(keysDomain.MetaProtectionDropped, true)
					}
					return nil
				})
			if err != nil {
				return nil, err
			}

			next.Zero()
			return next, nil
		})
}

func (k *keyUseCase) RevokeUserKey(ctx context.Context, userID int64, reason string) (int, error) {
	fields := map[string]any{"user_id": userID, "reason": reason}

	return operation.Do(ctx, k.runner, "revoke_user_key", fields,
		func(ctx context.Context) (int, error) {
			if err := validateUserID(userID); err != nil {
				return 0, err
			}
			if err := validateReason(reason); err != nil {
				return 0, err
			}

			unlock := k.lock(userID)
			defer unlock()

			count := 0
			err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
				keys, err := k.repo.ListByUserID(ctx, userID)
				if err != nil {
					return err
				}

				now := k.now()
				for _, key := range keys {
					if !key.Status.Revocable() {
						continue
					}
					if err := key.Transition(keysDomain.StatusRevoked, now); err != nil {
						return err
					}
					key.SetMetadata(keysDomain.MetaRevocationReason, reason)
					if err := k.repo.Update(ctx, key); err != nil {
						return err
					}
					count++
				}
				return nil
			})
			if err != nil {
				return 0, err
			}

			k.cache.forget(ctx, userID)
			return count, nil
		})
}

func (k *keyUseCase) CleanupExpiredKeys(ctx context.Context) (int, error) {
	return operation.Do(ctx, k.runner, "cleanup_expired_keys", nil,
		func(ctx context.Context) (int, error) {
			count := 0
			for {
				keys, err := k.repo.ListExpired(ctx, k.now(), cleanupBatchSize)
				if err != nil {
					return count, err
				}

				for _, key := range keys {
					expired, err := k.expireKey(ctx, key.UserID, key.ID)
					if err != nil {
						return count, err
					}
					if expired {
						count++
					}
				}

				if len(keys) < cleanupBatchSize {
					return count, nil
				}
			}
		})
}

// expireKey re-reads the key under the user lock so a concurrent rotation wins.
func (k *keyUseCase) expireKey(ctx context.Context, userID int64, keyID uuid.UUID) (bool, error) {
	unlock := k.lock(userID)
	defer unlock()

	key, err := k.repo.GetByID(ctx, keyID)
	if err != nil {
		return false, err
	}

	now := k.now()
	if key.Status != keysDomain.StatusActive || !key.IsExpired(now) {
		return false, nil
	}

	if err := key.Transition(keysDomain.StatusExpired, now); err != nil {
		return false, err
	}
	if err := k.repo.Update(ctx, key); err != nil {
		return false, err
	}

	k.cache.forget(ctx, userID)
	return true, nil
}

func (k *keyUseCase) ValidateUserKeys(ctx context.Context, userID int64) (bool, error) {
	return operation.Do(ctx, k.runner, "validate_user_keys", map[string]any{"user_id": userID},
		func(ctx context.Context) (bool, error) {
			if err := validateUserID(userID); err != nil {
				return false, err
			}

			unlock := k.lock(userID)
			bundle, err := k.loadKeys(ctx, userID, "", true)
			unlock()
			if err != nil {
				return false, err
			}
			defer bundle.Zero()

			sample := make([]byte, cryptoDomain.KeySize)
			if _, err := rand.Read(sample); err != nil {
				return false, fmt.Errorf("failed to generate sample: %w", err)
			}

			aad := []byte(CacheKey(userID))
			envelope, err := k.cipher.Encrypt(bundle.UserKey, bundle.Algorithm, sample, aad)
			if err != nil {
				return false, err
			}

			decrypted, err := k.cipher.Decrypt(bundle.UserKey, bundle.Algorithm, envelope, aad)
			if err != nil {
				return false, nil
			}

			return bytes.Equal(sample, decrypted), nil
		})
}

func (k *keyUseCase) ListUserKeys(ctx context.Context, userID int64) ([]*keysDomain.EncryptionKey, error) {
	return operation.Do(ctx, k.runner, "list_user_keys", map[string]any{"user_id": userID},
		func(ctx context.Context) ([]*keysDomain.EncryptionKey, error) {
			if err := validateUserID(userID); err != nil {
				return nil, err
			}

			keys, err := k.repo.ListByUserID(ctx, userID)
			if err != nil {
				return nil, err
			}
			for _, key := range keys {
				key.Zero()
			}
			return keys, nil
		})
}

// loadKeys returns the cached bundle or unwraps the active key. A cached
// passphrase-protected bundle is only served when trustCache is set; otherwise the
// passphrase is checked against the stored key. Caller holds the user lock.
func (k *keyUseCase) loadKeys(
	ctx context.Context,
	userID int64,
	passphrase string,
	trustCache bool,
) (*keysDomain.KeyBundle, error) {
	if bundle := k.cache.get(ctx, userID); bundle != nil {
		if !bundle.Protected || trustCache {
			return bundle, nil
		}
		bundle.Zero()
	}

	key, err := k.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if key.IsExpired(k.now()) {
		return nil, keysDomain.ErrKeyExpired
	}

	if err := k.unwrap(key, passphrase); err != nil {
		return nil, err
	}

	bundle := keysDomain.NewKeyBundle(key)
	k.cache.put(ctx, bundle)
	return bundle, nil
}

// annotateFunc records provenance on the retiring and the new key. current is nil
// when the user had no active key.
type annotateFunc func(current, next *keysDomain.EncryptionKey) error

// replaceActive creates a new active key and retires the current one as rotated, in
// one database transaction. Caller holds the user lock.
func (k *keyUseCase) replaceActive(
	ctx context.Context,
	userID int64,
	passphrase string,
	requireCurrent bool,
	annotate annotateFunc,
) (*keysDomain.EncryptionKey, *keysDomain.PassphraseWrap, error) {
	var next *keysDomain.EncryptionKey
	var wrap *keysDomain.PassphraseWrap

	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		current, err := k.repo.GetActiveByUserID(ctx, userID)
		switch {
		case errors.Is(err, keysDomain.ErrNoActiveKey):
			if requireCurrent {
				return err
			}
			current = nil
		case err != nil:
			return err
		}

		next, wrap, err = k.newKey(userID, passphrase)
		if err != nil {
			return err
		}

		if current != nil {
			if err := current.Transition(keysDomain.StatusRotated, next.CreatedAt); err != nil {
				return err
			}
			current.SetMetadata(keysDomain.MetaRotatedToKeyID, next.ID.String())
			next.SetMetadata(keysDomain.MetaRotatedFromKeyID, current.ID.String())
		}

		if annotate != nil {
			if err := annotate(current, next); err != nil {
				return err
			}
		}

		if current != nil {
			if err := k.repo.Update(ctx, current); err != nil {
				return err
			}
		}
		return k.repo.Create(ctx, next)
	})
	if err != nil {
		if next != nil {
			next.Zero()
		}
		return nil, nil, err
	}

	k.cache.forget(ctx, userID)
	return next, wrap, nil
}

func (k *keyUseCase) replaceActiveBundle(
	ctx context.Context,
	userID int64,
	annotate annotateFunc,
) (*keysDomain.KeyBundle, error) {
	next, _, err := k.replaceActive(ctx, userID, "", false, annotate)
	if err != nil {
		return nil, err
	}
	bundle := keysDomain.NewKeyBundle(next)
	k.cache.put(ctx, bundle)
	return bundle, nil
}

// newKey generates fresh material. Without a passphrase the per-user master key is
// wrapped by the active system master key.
func (k *keyUseCase) newKey(
	userID int64,
	passphrase string,
) (*keysDomain.EncryptionKey, *keysDomain.PassphraseWrap, error) {
	now := k.now()
	alg := k.opts.Algorithm

	masterKey, err := k.keyManager.NewKey()
	if err != nil {
		return nil, nil, err
	}
	userKey, err := k.keyManager.NewKey()
	if err != nil {
		cryptoDomain.Zero(masterKey)
		return nil, nil, err
	}

	key := &keysDomain.EncryptionKey{
		ID:        uuid.Must(uuid.NewV7()),
		UserID:    userID,
		Algorithm: alg,
		KeyLength: cryptoDomain.KeySize,
		Status:    keysDomain.StatusActive,
		MasterKey: masterKey,
		UserKey:   userKey,
		Metadata:  make(map[string]any),
		CreatedAt: now,
		ExpiresAt: now.Add(k.opts.RotationInterval),
		UpdatedAt: now,
	}

	var wrap *keysDomain.PassphraseWrap
	if passphrase == "" {
		systemKey, err := k.masterKeyChain.Active()
		if err != nil {
			key.Zero()
			return nil, nil, err
		}
		key.MasterKeyID = systemKey.ID
		key.EncryptedMasterKey, key.MasterKeyNonce, err = k.keyManager.WrapKey(
			systemKey.Key, alg, masterKey, keysDomain.UserMasterKeyAAD(userID),
		)
		if err != nil {
			key.Zero()
			return nil, nil, err
		}
	} else {
		wrap, err = k.protect(key, passphrase)
		if err != nil {
			key.Zero()
			return nil, nil, err
		}
	}

	key.EncryptedUserKey, key.UserKeyNonce, err = k.keyManager.WrapKey(
		masterKey, alg, userKey, keysDomain.UserKeyAAD(userID),
	)
	if err != nil {
		key.Zero()
		return nil, nil, err
	}

	return key, wrap, nil
}

// protect wraps the per-user master key under a passphrase-derived key and returns
// the user key wrapped under the same derived key.
func (k *keyUseCase) protect(key *keysDomain.EncryptionKey, passphrase string) (*keysDomain.PassphraseWrap, error) {
	derived, err := k.deriver.DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(derived.Key)

	verifier, err := k.verifier.Hash(passphrase)
	if err != nil {
		return nil, err
	}

	key.PassphraseSalt = derived.Salt
	key.PassphraseIterations = derived.Iterations
	key.PassphraseVerifier = verifier
	key.EncryptedMasterKey, key.MasterKeyNonce, err = k.keyManager.WrapKey(
		derived.Key, key.Algorithm, key.MasterKey, keysDomain.UserMasterKeyAAD(key.UserID),
	)
	if err != nil {
		return nil, err
	}

	encryptedUserKey, nonce, err := k.keyManager.WrapKey(
		derived.Key, key.Algorithm, key.UserKey, keysDomain.UserKeyAAD(key.UserID),
	)
	if err != nil {
		return nil, err
	}

	return &keysDomain.PassphraseWrap{
		EncryptedUserKey: encryptedUserKey,
		Nonce:            nonce,
		Salt:             derived.Salt,
		Iterations:       derived.Iterations,
	}, nil
}

// unwrap populates key.MasterKey and key.UserKey.
func (k *keyUseCase) unwrap(key *keysDomain.EncryptionKey, passphrase string) error {
	var wrappingKey []byte

	if key.IsProtected() {
		if passphrase == "" {
			return keysDomain.ErrPassphraseRequired
		}
		if key.PassphraseVerifier != "" && !k.verifier.Verify(passphrase, key.PassphraseVerifier) {
			return keysDomain.ErrInvalidPassphrase
		}
		derived, err := k.deriver.DeriveKeyWithSalt(passphrase, key.PassphraseSalt, key.PassphraseIterations)
		if err != nil {
			return err
		}
		defer cryptoDomain.Zero(derived.Key)
		wrappingKey = derived.Key
	} else {
		systemKey, ok := k.masterKeyChain.Get(key.MasterKeyID)
		if !ok {
			return cryptoDomain.ErrMasterKeyNotFound
		}
		wrappingKey = systemKey.Key
	}

	masterKey, err := k.keyManager.UnwrapKey(
		wrappingKey, key.Algorithm, key.EncryptedMasterKey, key.MasterKeyNonce, keysDomain.UserMasterKeyAAD(key.UserID),
	)
	if err != nil {
		if key.IsProtected() && errors.Is(err, cryptoDomain.ErrDecryptionFailed) {
			return keysDomain.ErrInvalidPassphrase
		}
		return err
	}

	userKey, err := k.keyManager.UnwrapKey(
		masterKey, key.Algorithm, key.EncryptedUserKey, key.UserKeyNonce, keysDomain.UserKeyAAD(key.UserID),
	)
	if err != nil {
		cryptoDomain.Zero(masterKey)
		return err
	}

	key.MasterKey = masterKey
	key.UserKey = userKey
	return nil
}

func (k *keyUseCase) lock(userID int64) func() {
	return k.locks.Lock(CacheKey(userID))
}

func validateUserID(userID int64) error {
	if err := validation.Validate(userID, appValidation.UserID); err != nil {
		return keysDomain.ErrInvalidUser
	}
	return nil
}

func validateReason(reason string) error {
	if err := validation.Validate(reason, validation.Required, appValidation.NotBlank); err != nil {
		return keysDomain.ErrReasonRequired
	}
	return nil
}
