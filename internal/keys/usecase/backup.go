package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
	"github.com/allisson/e2ee/internal/operation"
	"github.com/allisson/e2ee/internal/storage"
	appValidation "github.com/allisson/e2ee/internal/validation"
)

func (k *keyUseCase) BackupUserKeys(
	ctx context.Context,
	userID int64,
	backupPassword string,
) (*keysDomain.BackupHandle, error) {
	fields := map[string]any{"user_id": userID, "backup_password": backupPassword}

	return operation.Do(ctx, k.runner, "backup_user_keys", fields,
		func(ctx context.Context) (*keysDomain.BackupHandle, error) {
			if err := validateUserID(userID); err != nil {
				return nil, err
			}
			if err := validateBackupPassword(backupPassword); err != nil {
				return nil, err
			}

			key, err := k.repo.GetActiveByUserID(ctx, userID)
			if err != nil {
				return nil, err
			}

			now := k.now()
			data, err := k.sealBackup(keysDomain.NewBackupPayload(key, now), backupPassword)
			if err != nil {
				return nil, err
			}

			path := keysDomain.BackupPath(userID, key.ID, now)
			if err := k.blobStore.Put(ctx, path, data); err != nil {
				return nil, err
			}

			return &keysDomain.BackupHandle{
				Path:          path,
				UserID:        userID,
				KeyID:         key.ID,
				SchemaVersion: keysDomain.BackupSchemaVersion,
				CreatedAt:     now,
			}, nil
		})
}

func (k *keyUseCase) RestoreUserKeys(
	ctx context.Context,
	handle *keysDomain.BackupHandle,
	backupPassword string,
) (*keysDomain.KeyBundle, error) {
	fields := map[string]any{"backup_password": backupPassword}
	if handle != nil {
		fields["user_id"] = handle.UserID
		fields["path"] = handle.Path
	}

	return operation.Do(ctx, k.runner, "restore_user_keys", fields,
		func(ctx context.Context) (*keysDomain.KeyBundle, error) {
			if handle == nil || handle.Path == "" {
				return nil, fmt.Errorf("%w: missing backup path", keysDomain.ErrInvalidBackup)
			}
			if err := validateUserID(handle.UserID); err != nil {
				return nil, err
			}
			if backupPassword == "" {
				return nil, keysDomain.ErrBackupPasswordRequired
			}
			if !k.restoreLimiter.allow(handle.Path) {
				return nil, keysDomain.ErrTooManyAttempts
			}

			payload, err := k.openBackup(ctx, handle.Path, backupPassword)
			if err != nil {
				return nil, err
			}
			if payload.UserID != handle.UserID {
				return nil, fmt.Errorf("%w: backup belongs to another user", keysDomain.ErrInvalidBackup)
			}

			next, err := k.restoredKey(payload)
			if err != nil {
				return nil, err
			}

			unlock := k.lock(handle.UserID)
			defer unlock()

			err = k.txManager.WithTx(ctx, func(ctx context.Context) error {
				current, err := k.repo.GetActiveByUserID(ctx, handle.UserID)
				switch {
				case errors.Is(err, keysDomain.ErrNoActiveKey):
				case err != nil:
					return err
				default:
					if err := current.Transition(keysDomain.StatusRestored, next.CreatedAt); err != nil {
						return err
					}
					current.SetMetadata(keysDomain.MetaSupersededByKeyID, next.ID.String())
					if err := k.repo.Update(ctx, current); err != nil {
						return err
					}
				}
				return k.repo.Create(ctx, next)
			})
			if err != nil {
				next.Zero()
				return nil, err
			}

			k.cache.forget(ctx, handle.UserID)

			bundle := keysDomain.NewKeyBundle(next)
			k.cache.put(ctx, bundle)
			return bundle, nil
		})
}

// restoredKey builds the new active record for payload. A system-wrapped master key is
// re-wrapped under the active system master key; passphrase protection is carried over
// as is and the returned key stays locked.
func (k *keyUseCase) restoredKey(payload *keysDomain.BackupPayload) (*keysDomain.EncryptionKey, error) {
	now := k.now()
	alg := cryptoDomain.Algorithm(payload.Algorithm)

	key := &keysDomain.EncryptionKey{
		ID:               uuid.Must(uuid.NewV7()),
		UserID:           payload.UserID,
		Algorithm:        alg,
		KeyLength:        cryptoDomain.KeySize,
		Status:           keysDomain.StatusActive,
		EncryptedUserKey: payload.WrappedUserKey.Ciphertext,
		UserKeyNonce:     payload.WrappedUserKey.Nonce,
		Metadata: map[string]any{
			keysDomain.MetaRestoredFromBackup: true,
			keysDomain.MetaRestoredFromKeyID:  payload.KeyID,
			keysDomain.MetaBackupDate:         payload.BackupDate.UTC().Format(time.RFC3339),
		},
		CreatedAt: now,
		ExpiresAt: now.Add(k.opts.RotationInterval),
		UpdatedAt: now,
	}

	if payload.Passphrase != nil {
		key.PassphraseSalt = payload.Passphrase.Salt
		key.PassphraseIterations = payload.Passphrase.Iterations
		key.PassphraseVerifier = payload.Passphrase.Verifier
		key.EncryptedMasterKey = payload.WrappedMasterKey.Ciphertext
		key.MasterKeyNonce = payload.WrappedMasterKey.Nonce
		return key, nil
	}

	original := &keysDomain.EncryptionKey{
		UserID:             payload.UserID,
		Algorithm:          alg,
		MasterKeyID:        payload.WrappedMasterKey.MasterKeyID,
		EncryptedMasterKey: payload.WrappedMasterKey.Ciphertext,
		MasterKeyNonce:     payload.WrappedMasterKey.Nonce,
		EncryptedUserKey:   payload.WrappedUserKey.Ciphertext,
		UserKeyNonce:       payload.WrappedUserKey.Nonce,
	}
	if err := k.unwrap(original, ""); err != nil {
		return nil, err
	}

	systemKey, err := k.masterKeyChain.Active()
	if err != nil {
		original.Zero()
		return nil, err
	}

	key.MasterKeyID = systemKey.ID
	key.EncryptedMasterKey, key.MasterKeyNonce, err = k.keyManager.WrapKey(
		systemKey.Key, alg, original.MasterKey, keysDomain.UserMasterKeyAAD(payload.UserID),
	)
	if err != nil {
		original.Zero()
		return nil, err
	}

	key.MasterKey = original.MasterKey
	key.UserKey = original.UserKey
	return key, nil
}

func (k *keyUseCase) sealBackup(payload *keysDomain.BackupPayload, backupPassword string) ([]byte, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup payload: %w", err)
	}

	derived, err := k.deriver.DeriveKey(backupPassword)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(derived.Key)

	envelope, err := k.cipher.Encrypt(derived.Key, k.opts.Algorithm, plaintext, []byte(keysDomain.BackupFormat))
	if err != nil {
		return nil, err
	}

	ciphertext := make([]byte, 0, len(envelope.Ciphertext)+len(envelope.Tag))
	ciphertext = append(ciphertext, envelope.Ciphertext...)
	ciphertext = append(ciphertext, envelope.Tag...)

	data, err := json.Marshal(keysDomain.BackupContainer{
		Format:     keysDomain.BackupFormat,
		KDF:        keysDomain.BackupKDF,
		Salt:       derived.Salt,
		Iterations: derived.Iterations,
		Algorithm:  string(k.opts.Algorithm),
		Nonce:      envelope.IV,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup container: %w", err)
	}
	return data, nil
}

// openBackup reads and decrypts the backup at path. A wrong password surfaces as
// cryptoDomain.ErrDecryptionFailed.
func (k *keyUseCase) openBackup(
	ctx context.Context,
	path, backupPassword string,
) (*keysDomain.BackupPayload, error) {
	data, err := k.blobStore.Get(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: backup not found", keysDomain.ErrInvalidBackup)
		}
		return nil, err
	}

	var container keysDomain.BackupContainer
	if err := json.Unmarshal(data, &container); err != nil {
		return nil, fmt.Errorf("%w: malformed container", keysDomain.ErrInvalidBackup)
	}
	if err := container.Validate(); err != nil {
		return nil, err
	}

	derived, err := k.deriver.DeriveKeyWithSalt(backupPassword, container.Salt, container.Iterations)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(derived.Key)

	plaintext, err := k.cipher.Decrypt(
		derived.Key,
		cryptoDomain.Algorithm(container.Algorithm),
		&cryptoDomain.Envelope{Ciphertext: container.Ciphertext, IV: container.Nonce},
		[]byte(keysDomain.BackupFormat),
	)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	defer cryptoDomain.Zero(plaintext)

	var payload keysDomain.BackupPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed payload", keysDomain.ErrInvalidBackup)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

func validateBackupPassword(password string) error {
	if password == "" {
		return keysDomain.ErrBackupPasswordRequired
	}
	if err := validation.Validate(password, appValidation.BackupPassword); err != nil {
		return appValidation.WrapValidationError(err)
	}
	return nil
}
