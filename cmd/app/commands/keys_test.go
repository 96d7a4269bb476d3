package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
	keysMocks "github.com/allisson/e2ee/internal/keys/usecase/mocks"
)

func testBundle(userID int64) *keysDomain.KeyBundle {
	return &keysDomain.KeyBundle{
		KeyID:     uuid.Must(uuid.NewV7()),
		UserID:    userID,
		Algorithm: cryptoDomain.AESGCM,
		MasterKey: bytes.Repeat([]byte{1}, 32),
		UserKey:   bytes.Repeat([]byte{2}, 32),
		ExpiresAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRunGenerateKeys(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("text-output", func(t *testing.T) {
		bundle := testBundle(42)
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("GenerateKeys", ctx, int64(42), "").Return(bundle, nil)

		var out bytes.Buffer
		err := RunGenerateKeys(ctx, mockUseCase, logger, &out, 42, "", "text")
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Keys generated")
		assert.Contains(t, out.String(), bundle.KeyID.String())
		assert.Equal(t, make([]byte, 32), bundle.UserKey)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("json-output-has-no-key-material", func(t *testing.T) {
		bundle := testBundle(42)
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("GenerateKeys", ctx, int64(42), "secret").Return(bundle, nil)

		var out bytes.Buffer
		err := RunGenerateKeys(ctx, mockUseCase, logger, &out, 42, "secret", "json")
		require.NoError(t, err)

		var result map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, bundle.KeyID.String(), result["key_id"])
		assert.Equal(t, "2026-01-01T00:00:00Z", result["expires_at"])
		assert.NotContains(t, result, "user_key")
		assert.NotContains(t, result, "master_key")
	})

	t.Run("invalid-user", func(t *testing.T) {
		err := RunGenerateKeys(ctx, nil, logger, nil, 0, "", "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "user id must be a positive number")
	})

	t.Run("invalid-format", func(t *testing.T) {
		err := RunGenerateKeys(ctx, nil, logger, nil, 1, "", "yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid format")
	})

	t.Run("use-case-error", func(t *testing.T) {
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("GenerateKeys", ctx, int64(42), "").Return(nil, errors.New("boom"))

		err := RunGenerateKeys(ctx, mockUseCase, logger, &bytes.Buffer{}, 42, "", "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to generate keys")
	})
}

func TestRunRotateKeys(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("scheduled", func(t *testing.T) {
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("RotateKeys", ctx, int64(7), "").Return(testBundle(7), nil)

		var out bytes.Buffer
		require.NoError(t, RunRotateKeys(ctx, mockUseCase, logger, &out, 7, "", false, "", "text"))
		assert.Contains(t, out.String(), "Keys rotated")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("forced", func(t *testing.T) {
		key := &keysDomain.EncryptionKey{
			ID:        uuid.Must(uuid.NewV7()),
			UserID:    7,
			Algorithm: cryptoDomain.AESGCM,
			ExpiresAt: time.Now().Add(time.Hour),
		}
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("ForceKeyRotation", ctx, int64(7), "compromised").Return(key, nil)

		var out bytes.Buffer
		require.NoError(t, RunRotateKeys(ctx, mockUseCase, logger, &out, 7, "", true, "compromised", "text"))
		assert.Contains(t, out.String(), "Keys rotated (forced)")
		assert.Contains(t, out.String(), key.ID.String())
		mockUseCase.AssertExpectations(t)
	})

	t.Run("forced-without-reason", func(t *testing.T) {
		err := RunRotateKeys(ctx, nil, logger, nil, 7, "", true, "", "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--reason is required")
	})
}

func TestRunRevokeKeys(t *testing.T) {
	ctx := context.Background()
	mockUseCase := &keysMocks.MockKeyUseCase{}
	mockUseCase.On("RevokeUserKey", ctx, int64(3), "lost device").Return(2, nil)

	var out bytes.Buffer
	require.NoError(t, RunRevokeKeys(ctx, mockUseCase, discardLogger(), &out, 3, "lost device", "json"))
	assert.Contains(t, out.String(), `"revoked": 2`)
	mockUseCase.AssertExpectations(t)
}

func TestRunValidateKeys(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("valid", func(t *testing.T) {
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("ValidateUserKeys", ctx, int64(5)).Return(true, nil)

		var out bytes.Buffer
		require.NoError(t, RunValidateKeys(ctx, mockUseCase, logger, &out, 5, "text"))
		assert.Contains(t, out.String(), "are valid")
	})

	t.Run("invalid", func(t *testing.T) {
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("ValidateUserKeys", ctx, int64(5)).Return(false, nil)

		var out bytes.Buffer
		err := RunValidateKeys(ctx, mockUseCase, logger, &out, 5, "json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed validation")
		assert.Contains(t, out.String(), `"valid": false`)
	})
}

func TestRunCleanupExpiredKeys(t *testing.T) {
	ctx := context.Background()
	mockUseCase := &keysMocks.MockKeyUseCase{}
	mockUseCase.On("CleanupExpiredKeys", ctx).Return(4, nil)

	var out bytes.Buffer
	require.NoError(t, RunCleanupExpiredKeys(ctx, mockUseCase, discardLogger(), &out, "text"))
	assert.Contains(t, out.String(), "Marked 4 key(s) as expired")
	mockUseCase.AssertExpectations(t)
}

func TestRunListKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	keys := []*keysDomain.EncryptionKey{
		{ID: uuid.Must(uuid.NewV7()), UserID: 9, Status: keysDomain.StatusActive, Algorithm: cryptoDomain.AESGCM, CreatedAt: now, ExpiresAt: now.AddDate(0, 3, 0)},
		{ID: uuid.Must(uuid.NewV7()), UserID: 9, Status: keysDomain.StatusRotated, Algorithm: cryptoDomain.AESGCM, CreatedAt: now.AddDate(0, -3, 0), ExpiresAt: now},
	}

	t.Run("text", func(t *testing.T) {
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("ListUserKeys", ctx, int64(9)).Return(keys, nil)

		var out bytes.Buffer
		require.NoError(t, RunListKeys(ctx, mockUseCase, &out, 9, "text"))
		assert.Contains(t, out.String(), keys[0].ID.String())
		assert.Contains(t, out.String(), "rotated")
	})

	t.Run("json", func(t *testing.T) {
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("ListUserKeys", ctx, int64(9)).Return(keys, nil)

		var out bytes.Buffer
		require.NoError(t, RunListKeys(ctx, mockUseCase, &out, 9, "json"))

		var rows []map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
		require.Len(t, rows, 2)
		assert.Equal(t, "active", rows[0]["status"])
	})

	t.Run("empty", func(t *testing.T) {
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("ListUserKeys", ctx, int64(9)).Return([]*keysDomain.EncryptionKey{}, nil)

		var out bytes.Buffer
		require.NoError(t, RunListKeys(ctx, mockUseCase, &out, 9, "text"))
		assert.Contains(t, out.String(), "No keys found for user 9")
	})
}

func TestRunBackupAndRestoreKeys(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()
	handle := &keysDomain.BackupHandle{
		Path:          "backups/12/key.json",
		UserID:        12,
		KeyID:         uuid.Must(uuid.NewV7()),
		SchemaVersion: keysDomain.BackupSchemaVersion,
		CreatedAt:     time.Now(),
	}

	t.Run("backup-json", func(t *testing.T) {
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("BackupUserKeys", ctx, int64(12), "backup-password").Return(handle, nil)

		var out bytes.Buffer
		require.NoError(t, RunBackupKeys(ctx, mockUseCase, logger, &out, 12, "backup-password", "json"))

		var result keysDomain.BackupHandle
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, handle.Path, result.Path)
		assert.Equal(t, handle.KeyID, result.KeyID)
		assert.NotContains(t, out.String(), "backup-password")
	})

	t.Run("restore", func(t *testing.T) {
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("RestoreUserKeys", ctx, mock.MatchedBy(func(h *keysDomain.BackupHandle) bool {
			return h.Path == handle.Path && h.UserID == 12
		}), "backup-password").Return(testBundle(12), nil)

		var out bytes.Buffer
		require.NoError(t, RunRestoreKeys(ctx, mockUseCase, logger, &out, 12, handle.Path, "backup-password", "text"))
		assert.Contains(t, out.String(), "Keys restored")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("restore-locked", func(t *testing.T) {
		bundle := testBundle(12)
		bundle.Locked = true
		mockUseCase := &keysMocks.MockKeyUseCase{}
		mockUseCase.On("RestoreUserKeys", ctx, mock.Anything, "backup-password").Return(bundle, nil)

		var out bytes.Buffer
		require.NoError(t, RunRestoreKeys(ctx, mockUseCase, logger, &out, 12, handle.Path, "backup-password", "text"))
		assert.Contains(t, out.String(), "passphrase required to unlock")
	})

	t.Run("restore-missing-path", func(t *testing.T) {
		err := RunRestoreKeys(ctx, nil, logger, nil, 12, "", "backup-password", "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--path is required")
	})
}
