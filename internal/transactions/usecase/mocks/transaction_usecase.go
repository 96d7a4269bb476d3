// Package mocks provides a mock TransactionUseCase.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	transactionsDomain "github.com/allisson/e2ee/internal/transactions/domain"
)

// MockTransactionUseCase is a mock implementation of TransactionUseCase.
type MockTransactionUseCase struct {
	mock.Mock
}

// StartTransaction mocks the StartTransaction method of TransactionUseCase.
func (m *MockTransactionUseCase) StartTransaction(
	ctx context.Context,
	userID int64,
	metadata map[string]any,
) (*transactionsDomain.Transaction, error) {
	args := m.Called(ctx, userID, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transactionsDomain.Transaction), args.Error(1)
}

// EncryptInTransaction mocks the EncryptInTransaction method of TransactionUseCase.
func (m *MockTransactionUseCase) EncryptInTransaction(
	ctx context.Context,
	data []byte,
	userID int64,
	txID string,
	metadata map[string]any,
) (*transactionsDomain.EncryptedPayload, error) {
	args := m.Called(ctx, data, userID, txID, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transactionsDomain.EncryptedPayload), args.Error(1)
}

// DecryptInTransaction mocks the DecryptInTransaction method of TransactionUseCase.
func (m *MockTransactionUseCase) DecryptInTransaction(
	ctx context.Context,
	ciphertext, iv []byte,
	userID int64,
	txID string,
	tag []byte,
) ([]byte, error) {
	args := m.Called(ctx, ciphertext, iv, userID, txID, tag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// EncryptTransactionData mocks the EncryptTransactionData method of TransactionUseCase.
func (m *MockTransactionUseCase) EncryptTransactionData(
	ctx context.Context,
	data any,
	userID int64,
	txID string,
) ([]byte, error) {
	args := m.Called(ctx, data, userID, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// DecryptTransactionData mocks the DecryptTransactionData method of TransactionUseCase.
func (m *MockTransactionUseCase) DecryptTransactionData(
	ctx context.Context,
	encrypted []byte,
	userID int64,
	txID string,
	out any,
) error {
	return m.Called(ctx, encrypted, userID, txID, out).Error(0)
}

// SetTransactionE2EE mocks the SetTransactionE2EE method of TransactionUseCase.
func (m *MockTransactionUseCase) SetTransactionE2EE(ctx context.Context, txID string, enabled bool) (bool, error) {
	args := m.Called(ctx, txID, enabled)
	return args.Bool(0), args.Error(1)
}

// CompleteTransaction mocks the CompleteTransaction method of TransactionUseCase.
func (m *MockTransactionUseCase) CompleteTransaction(
	ctx context.Context,
	txID string,
	metadata map[string]any,
) (bool, error) {
	args := m.Called(ctx, txID, metadata)
	return args.Bool(0), args.Error(1)
}

// FailTransaction mocks the FailTransaction method of TransactionUseCase.
func (m *MockTransactionUseCase) FailTransaction(ctx context.Context, txID, reason string) error {
	return m.Called(ctx, txID, reason).Error(0)
}

// GetTransaction mocks the GetTransaction method of TransactionUseCase.
func (m *MockTransactionUseCase) GetTransaction(ctx context.Context, txID string) (*transactionsDomain.Transaction, error) {
	args := m.Called(ctx, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transactionsDomain.Transaction), args.Error(1)
}

// CleanupOldTransactions mocks the CleanupOldTransactions method of TransactionUseCase.
func (m *MockTransactionUseCase) CleanupOldTransactions(ctx context.Context, daysOld int) (int64, error) {
	args := m.Called(ctx, daysOld)
	return args.Get(0).(int64), args.Error(1)
}

// ValidateTransaction mocks the ValidateTransaction method of TransactionUseCase.
func (m *MockTransactionUseCase) ValidateTransaction(ctx context.Context, txID string, userID int64) bool {
	return m.Called(ctx, txID, userID).Bool(0)
}

// GetStatistics mocks the GetStatistics method of TransactionUseCase.
func (m *MockTransactionUseCase) GetStatistics(ctx context.Context) (*transactionsDomain.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transactionsDomain.Stats), args.Error(1)
}
