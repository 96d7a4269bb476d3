package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
	"github.com/allisson/e2ee/internal/operation"
)

func TestKeyUseCase_BackupRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RoundTrip", func(t *testing.T) {
		f := newKeyFixture(t)

		original, err := f.uc.GenerateKeys(ctx, 42, "")
		require.NoError(t, err)

		handle, err := f.uc.BackupUserKeys(ctx, 42, "pw-123456")
		require.NoError(t, err)
		assert.Equal(t, original.KeyID, handle.KeyID)
		assert.Equal(t, keysDomain.BackupSchemaVersion, handle.SchemaVersion)
		assert.Contains(t, handle.Path, "backups/users/42/")

		exists, err := f.store.Exists(ctx, handle.Path)
		require.NoError(t, err)
		assert.True(t, exists)

		raw, err := f.store.Get(ctx, handle.Path)
		require.NoError(t, err)
		var container keysDomain.BackupContainer
		require.NoError(t, json.Unmarshal(raw, &container))
		assert.Equal(t, keysDomain.BackupFormat, container.Format)
		assert.NotContains(t, string(raw), "wrapped_master_key")

		restored, err := f.uc.RestoreUserKeys(ctx, handle, "pw-123456")
		require.NoError(t, err)
		assert.NotEqual(t, original.KeyID, restored.KeyID)
		assert.Equal(t, original.UserKey, restored.UserKey)
		assert.Equal(t, original.MasterKey, restored.MasterKey)

		superseded := f.repo.get(original.KeyID)
		assert.Equal(t, keysDomain.StatusRestored, superseded.Status)
		assert.Equal(t, restored.KeyID.String(), superseded.Metadata[keysDomain.MetaSupersededByKeyID])

		active := f.repo.get(restored.KeyID)
		assert.Equal(t, keysDomain.StatusActive, active.Status)
		assert.Equal(t, true, active.Metadata[keysDomain.MetaRestoredFromBackup])
		assert.Equal(t, original.KeyID.String(), active.Metadata[keysDomain.MetaRestoredFromKeyID])
		assert.Equal(t, 1, f.repo.countActive(42))

		f.uc.cache.forget(ctx, 42)
		ok, err := f.uc.ValidateUserKeys(ctx, 42)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Error_WrongPassword", func(t *testing.T) {
		f := newKeyFixture(t)
		_, err := f.uc.GenerateKeys(ctx, 42, "")
		require.NoError(t, err)
		handle, err := f.uc.BackupUserKeys(ctx, 42, "pw-123456")
		require.NoError(t, err)

		_, err = f.uc.RestoreUserKeys(ctx, handle, "not-the-password")
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
		assert.Equal(t, operation.KindDecryptionFailed, operation.KindOf(err))
		assert.Equal(t, 1, f.repo.countActive(42))
	})

	t.Run("Error_RateLimited", func(t *testing.T) {
		f := newKeyFixture(t, func(o *Options) {
			o.RestoreRateLimitPerMinute = 1
			o.RestoreRateLimitBurst = 2
		})
		_, err := f.uc.GenerateKeys(ctx, 42, "")
		require.NoError(t, err)
		handle, err := f.uc.BackupUserKeys(ctx, 42, "pw-123456")
		require.NoError(t, err)

		for range 2 {
			_, err = f.uc.RestoreUserKeys(ctx, handle, "guess-guess")
			assert.Equal(t, operation.KindDecryptionFailed, operation.KindOf(err))
		}

		_, err = f.uc.RestoreUserKeys(ctx, handle, "pw-123456")
		assert.ErrorIs(t, err, keysDomain.ErrTooManyAttempts)
		assert.Equal(t, operation.KindRateLimited, operation.KindOf(err))
	})

	t.Run("Error_UnsupportedVersion", func(t *testing.T) {
		f := newKeyFixture(t)
		_, err := f.uc.GenerateKeys(ctx, 42, "")
		require.NoError(t, err)
		key := f.repo.get(mustActive(t, f, 42))

		payload := keysDomain.NewBackupPayload(key, time.Now().UTC())
		payload.SchemaVersion = 99
		handle := writeBackup(t, f, payload, "pw-123456")

		_, err = f.uc.RestoreUserKeys(ctx, handle, "pw-123456")
		assert.ErrorIs(t, err, keysDomain.ErrUnsupportedBackupVersion)
		assert.Equal(t, operation.KindUnsupportedBackupVersion, operation.KindOf(err))
	})

	t.Run("Error_MissingFields", func(t *testing.T) {
		f := newKeyFixture(t)
		_, err := f.uc.GenerateKeys(ctx, 42, "")
		require.NoError(t, err)
		key := f.repo.get(mustActive(t, f, 42))

		payload := keysDomain.NewBackupPayload(key, time.Now().UTC())
		payload.WrappedUserKey = nil
		handle := writeBackup(t, f, payload, "pw-123456")

		_, err = f.uc.RestoreUserKeys(ctx, handle, "pw-123456")
		assert.ErrorIs(t, err, keysDomain.ErrInvalidBackup)
		assert.Equal(t, operation.KindInvalidBackup, operation.KindOf(err))
	})

	t.Run("Error_MissingBackup", func(t *testing.T) {
		f := newKeyFixture(t)

		handle := &keysDomain.BackupHandle{Path: "backups/users/42/none.json", UserID: 42}
		_, err := f.uc.RestoreUserKeys(ctx, handle, "pw-123456")
		assert.Equal(t, operation.KindInvalidBackup, operation.KindOf(err))
	})

	t.Run("Error_OtherUser", func(t *testing.T) {
		f := newKeyFixture(t)
		_, err := f.uc.GenerateKeys(ctx, 42, "")
		require.NoError(t, err)
		handle, err := f.uc.BackupUserKeys(ctx, 42, "pw-123456")
		require.NoError(t, err)

		handle.UserID = 43
		_, err = f.uc.RestoreUserKeys(ctx, handle, "pw-123456")
		assert.ErrorIs(t, err, keysDomain.ErrInvalidBackup)
	})

	t.Run("Error_WeakBackupPassword", func(t *testing.T) {
		f := newKeyFixture(t)
		_, err := f.uc.GenerateKeys(ctx, 42, "")
		require.NoError(t, err)

		_, err = f.uc.BackupUserKeys(ctx, 42, "short")
		assert.Equal(t, operation.KindInvalidInput, operation.KindOf(err))

		_, err = f.uc.BackupUserKeys(ctx, 42, "")
		assert.ErrorIs(t, err, keysDomain.ErrBackupPasswordRequired)
	})

	t.Run("Success_ProtectedKeyStaysLocked", func(t *testing.T) {
		f := newKeyFixture(t)
		original, err := f.uc.GenerateKeys(ctx, 42, "open sesame")
		require.NoError(t, err)
		handle, err := f.uc.BackupUserKeys(ctx, 42, "pw-123456")
		require.NoError(t, err)

		restored, err := f.uc.RestoreUserKeys(ctx, handle, "pw-123456")
		require.NoError(t, err)
		assert.True(t, restored.Locked)
		assert.True(t, restored.Protected)
		assert.Empty(t, restored.UserKey)

		unlocked, err := f.uc.GetKeys(ctx, 42, "open sesame")
		require.NoError(t, err)
		assert.Equal(t, restored.KeyID, unlocked.KeyID)
		assert.Equal(t, original.UserKey, unlocked.UserKey)
	})
}

func mustActive(t *testing.T, f *keyFixture, userID int64) uuid.UUID {
	t.Helper()
	key, err := f.repo.GetActiveByUserID(context.Background(), userID)
	require.NoError(t, err)
	return key.ID
}

func writeBackup(
	t *testing.T,
	f *keyFixture,
	payload *keysDomain.BackupPayload,
	password string,
) *keysDomain.BackupHandle {
	t.Helper()
	data, err := f.uc.sealBackup(payload, password)
	require.NoError(t, err)

	path := "backups/users/42/crafted.json"
	require.NoError(t, f.store.Put(context.Background(), path, data))
	return &keysDomain.BackupHandle{Path: path, UserID: 42}
}
