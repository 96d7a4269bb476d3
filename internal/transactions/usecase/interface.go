// Package usecase implements the transaction manager: encrypt and decrypt calls
// scoped to a transaction id, with state tracking and caching.
package usecase

import (
	"context"
	"time"

	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
	transactionsDomain "github.com/allisson/e2ee/internal/transactions/domain"
)

// TransactionRepository persists transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx *transactionsDomain.Transaction) error
	Update(ctx context.Context, tx *transactionsDomain.Transaction) error
	GetByID(ctx context.Context, id string) (*transactionsDomain.Transaction, error)
	DeleteCompletedOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
	Stats(ctx context.Context) (*transactionsDomain.Stats, error)
}

// KeyProvider resolves the current key of a user. The key lifecycle manager satisfies it.
type KeyProvider interface {
	GetUserKey(ctx context.Context, userID int64) (*keysDomain.KeyBundle, error)
}

// TransactionUseCase is the transaction manager.
type TransactionUseCase interface {
	// StartTransaction opens an active transaction for the user. metadata may carry
	// e2ee_enabled=false to encrypt under the server-side key.
	StartTransaction(ctx context.Context, userID int64, metadata map[string]any) (*transactionsDomain.Transaction, error)

	// EncryptInTransaction encrypts data with the key the transaction resolves to at call time.
	EncryptInTransaction(
		ctx context.Context,
		data []byte,
		userID int64,
		txID string,
		metadata map[string]any,
	) (*transactionsDomain.EncryptedPayload, error)

	// DecryptInTransaction reverses EncryptInTransaction. tag may be empty when ciphertext carries it.
	DecryptInTransaction(ctx context.Context, ciphertext, iv []byte, userID int64, txID string, tag []byte) ([]byte, error)

	// EncryptTransactionData JSON-encodes data, encrypts it and returns the JSON payload.
	EncryptTransactionData(ctx context.Context, data any, userID int64, txID string) ([]byte, error)

	// DecryptTransactionData decrypts a payload produced by EncryptTransactionData into out.
	DecryptTransactionData(ctx context.Context, encrypted []byte, userID int64, txID string, out any) error

	// SetTransactionE2EE toggles end-to-end encryption on an active transaction.
	SetTransactionE2EE(ctx context.Context, txID string, enabled bool) (bool, error)

	// CompleteTransaction closes the transaction. Completing twice is a no-op.
	CompleteTransaction(ctx context.Context, txID string, metadata map[string]any) (bool, error)

	// FailTransaction marks the transaction failed with reason.
	FailTransaction(ctx context.Context, txID, reason string) error

	GetTransaction(ctx context.Context, txID string) (*transactionsDomain.Transaction, error)

	// CleanupOldTransactions deletes completed transactions older than daysOld days.
	CleanupOldTransactions(ctx context.Context, daysOld int) (int64, error)

	// ValidateTransaction reports whether txID exists, belongs to userID and is active.
	ValidateTransaction(ctx context.Context, txID string, userID int64) bool

	GetStatistics(ctx context.Context) (*transactionsDomain.Stats, error)
}
