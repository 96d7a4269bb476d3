// Package mocks provides a mock KeyUseCase for testing callers of the key lifecycle manager.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
)

// MockKeyUseCase is a mock implementation of KeyUseCase.
type MockKeyUseCase struct {
	mock.Mock
}

func (m *MockKeyUseCase) bundle(args mock.Arguments) (*keysDomain.KeyBundle, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keysDomain.KeyBundle), args.Error(1)
}

// GenerateKeys mocks the GenerateKeys method of KeyUseCase.
func (m *MockKeyUseCase) GenerateKeys(ctx context.Context, userID int64, passphrase string) (*keysDomain.KeyBundle, error) {
	return m.bundle(m.Called(ctx, userID, passphrase))
}

// GetKeys mocks the GetKeys method of KeyUseCase.
func (m *MockKeyUseCase) GetKeys(ctx context.Context, userID int64, passphrase string) (*keysDomain.KeyBundle, error) {
	return m.bundle(m.Called(ctx, userID, passphrase))
}

// GetUserKey mocks the GetUserKey method of KeyUseCase.
func (m *MockKeyUseCase) GetUserKey(ctx context.Context, userID int64) (*keysDomain.KeyBundle, error) {
	return m.bundle(m.Called(ctx, userID))
}

// RotateKeys mocks the RotateKeys method of KeyUseCase.
func (m *MockKeyUseCase) RotateKeys(ctx context.Context, userID int64, passphrase string) (*keysDomain.KeyBundle, error) {
	return m.bundle(m.Called(ctx, userID, passphrase))
}

// ForceKeyRotation mocks the ForceKeyRotation method of KeyUseCase.
func (m *MockKeyUseCase) ForceKeyRotation(
	ctx context.Context,
	userID int64,
	reason string,
) (*keysDomain.EncryptionKey, error) {
	args := m.Called(ctx, userID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keysDomain.EncryptionKey), args.Error(1)
}

// RevokeUserKey mocks the RevokeUserKey method of KeyUseCase.
func (m *MockKeyUseCase) RevokeUserKey(ctx context.Context, userID int64, reason string) (int, error) {
	args := m.Called(ctx, userID, reason)
	return args.Int(0), args.Error(1)
}

// BackupUserKeys mocks the BackupUserKeys method of KeyUseCase.
func (m *MockKeyUseCase) BackupUserKeys(
	ctx context.Context,
	userID int64,
	backupPassword string,
) (*keysDomain.BackupHandle, error) {
	args := m.Called(ctx, userID, backupPassword)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keysDomain.BackupHandle), args.Error(1)
}

// RestoreUserKeys mocks the RestoreUserKeys method of KeyUseCase.
func (m *MockKeyUseCase) RestoreUserKeys(
	ctx context.Context,
	handle *keysDomain.BackupHandle,
	backupPassword string,
) (*keysDomain.KeyBundle, error) {
	return m.bundle(m.Called(ctx, handle, backupPassword))
}

// CleanupExpiredKeys mocks the CleanupExpiredKeys method of KeyUseCase.
func (m *MockKeyUseCase) CleanupExpiredKeys(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// ValidateUserKeys mocks the ValidateUserKeys method of KeyUseCase.
func (m *MockKeyUseCase) ValidateUserKeys(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// ListUserKeys mocks the ListUserKeys method of KeyUseCase.
func (m *MockKeyUseCase) ListUserKeys(ctx context.Context, userID int64) ([]*keysDomain.EncryptionKey, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*keysDomain.EncryptionKey), args.Error(1)
}
