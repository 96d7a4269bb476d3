package validation

import (
	"testing"

	validation "github.com/jellydator/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/e2ee/internal/errors"
)

func assertValid(t *testing.T, err error, valid bool) {
	t.Helper()
	if valid {
		assert.NoError(t, err)
		return
	}
	assert.Error(t, err)
}

func TestBackupPassword(t *testing.T) {
	cases := map[string]bool{
		"correct horse": true,
		"12345678":      true,
		"short":         false,
		"":              false,
	}
	for password, valid := range cases {
		t.Run(password, func(t *testing.T) {
			assertValid(t, BackupPassword.Validate(password), valid)
		})
	}

	t.Run("non string", func(t *testing.T) {
		err := BackupPassword.Validate(12345678)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be a string")
	})
}

func TestPasswordStrength_Requirements(t *testing.T) {
	strict := PasswordStrength{
		MinLength:      10,
		RequireUpper:   true,
		RequireLower:   true,
		RequireNumber:  true,
		RequireSpecial: true,
	}

	tests := []struct {
		name     string
		password string
		errMsg   string
	}{
		{"all classes", "Backup-2026-key", ""},
		{"below min length", "Bk-26", "at least 10 characters"},
		{"no uppercase", "backup-2026-key", "uppercase"},
		{"no lowercase", "BACKUP-2026-KEY", "lowercase"},
		{"no digit", "Backup-key-rotation", "number"},
		{"no symbol", "Backup2026key", "special character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := strict.Validate(tt.password)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestUserID(t *testing.T) {
	for userID, valid := range map[int64]bool{1: true, 42: true, 0: false, -7: false} {
		assertValid(t, validation.Validate(userID, UserID), valid)
	}
}

func TestRetentionDays(t *testing.T) {
	for days, valid := range map[int]bool{0: true, 30: true, -1: false} {
		assertValid(t, validation.Validate(days, RetentionDays), valid)
	}
}

func TestTransactionID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"valid", "txn_01890a5d-ac96-774b-bcce-b302099a8057", true},
		{"missing prefix", "01890a5d-ac96-774b-bcce-b302099a8057", false},
		{"uppercase", "txn_01890A5D-AC96-774B-BCCE-B302099A8057", false},
		{"truncated", "txn_01890a5d", false},
		{"trailing data", "txn_01890a5d-ac96-774b-bcce-b302099a8057x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertValid(t, validation.Validate(tt.input, TransactionID), tt.valid)
		})
	}
}

func TestNotBlank(t *testing.T) {
	for _, input := range []string{"   ", "\t\t", "\n", " \t\n "} {
		assert.Error(t, validation.Validate(input, NotBlank), "%q", input)
	}
	assert.NoError(t, validation.Validate("key compromised", NotBlank))
}

func TestWrapValidationError(t *testing.T) {
	assert.NoError(t, WrapValidationError(nil))

	err := WrapValidationError(validation.Validate(int64(0), UserID))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "positive user id")
}
