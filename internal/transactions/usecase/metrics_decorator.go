package usecase

import (
	"context"
	"time"

	"github.com/allisson/e2ee/internal/metrics"
	transactionsDomain "github.com/allisson/e2ee/internal/transactions/domain"
)

// transactionUseCaseWithMetrics decorates TransactionUseCase with metrics instrumentation.
type transactionUseCaseWithMetrics struct {
	next    TransactionUseCase
	metrics metrics.BusinessMetrics
}

// NewTransactionUseCaseWithMetrics wraps a TransactionUseCase with metrics recording.
func NewTransactionUseCaseWithMetrics(useCase TransactionUseCase, m metrics.BusinessMetrics) TransactionUseCase {
	return &transactionUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (t *transactionUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	metrics.Observe(ctx, t.metrics, ModuleName, operation, start, err)
}

func (t *transactionUseCaseWithMetrics) StartTransaction(
	ctx context.Context,
	userID int64,
	metadata map[string]any,
) (*transactionsDomain.Transaction, error) {
	start := time.Now()
	tx, err := t.next.StartTransaction(ctx, userID, metadata)
	t.record(ctx, "start_transaction", start, err)
	return tx, err
}

func (t *transactionUseCaseWithMetrics) EncryptInTransaction(
	ctx context.Context,
	data []byte,
	userID int64,
	txID string,
	metadata map[string]any,
) (*transactionsDomain.EncryptedPayload, error) {
	start := time.Now()
	payload, err := t.next.EncryptInTransaction(ctx, data, userID, txID, metadata)
	t.record(ctx, "encrypt_in_transaction", start, err)
	return payload, err
}

func (t *transactionUseCaseWithMetrics) DecryptInTransaction(
	ctx context.Context,
	ciphertext, iv []byte,
	userID int64,
	txID string,
	tag []byte,
) ([]byte, error) {
	start := time.Now()
	plaintext, err := t.next.DecryptInTransaction(ctx, ciphertext, iv, userID, txID, tag)
	t.record(ctx, "decrypt_in_transaction", start, err)
	return plaintext, err
}

func (t *transactionUseCaseWithMetrics) EncryptTransactionData(
	ctx context.Context,
	data any,
	userID int64,
	txID string,
) ([]byte, error) {
	start := time.Now()
	encrypted, err := t.next.EncryptTransactionData(ctx, data, userID, txID)
	t.record(ctx, "encrypt_transaction_data", start, err)
	return encrypted, err
}

func (t *transactionUseCaseWithMetrics) DecryptTransactionData(
	ctx context.Context,
	encrypted []byte,
	userID int64,
	txID string,
	out any,
) error {
	start := time.Now()
	err := t.next.DecryptTransactionData(ctx, encrypted, userID, txID, out)
	t.record(ctx, "decrypt_transaction_data", start, err)
	return err
}

func (t *transactionUseCaseWithMetrics) SetTransactionE2EE(ctx context.Context, txID string, enabled bool) (bool, error) {
	start := time.Now()
	ok, err := t.next.SetTransactionE2EE(ctx, txID, enabled)
	t.record(ctx, "set_transaction_e2ee", start, err)
	return ok, err
}

func (t *transactionUseCaseWithMetrics) CompleteTransaction(
	ctx context.Context,
	txID string,
	metadata map[string]any,
) (bool, error) {
	start := time.Now()
	ok, err := t.next.CompleteTransaction(ctx, txID, metadata)
	t.record(ctx, "complete_transaction", start, err)
	return ok, err
}

func (t *transactionUseCaseWithMetrics) FailTransaction(ctx context.Context, txID, reason string) error {
	start := time.Now()
	err := t.next.FailTransaction(ctx, txID, reason)
	t.record(ctx, "fail_transaction", start, err)
	return err
}

func (t *transactionUseCaseWithMetrics) GetTransaction(
	ctx context.Context,
	txID string,
) (*transactionsDomain.Transaction, error) {
	start := time.Now()
	tx, err := t.next.GetTransaction(ctx, txID)
	t.record(ctx, "get_transaction", start, err)
	return tx, err
}

func (t *transactionUseCaseWithMetrics) CleanupOldTransactions(ctx context.Context, daysOld int) (int64, error) {
	start := time.Now()
	count, err := t.next.CleanupOldTransactions(ctx, daysOld)
	t.record(ctx, "cleanup_old_transactions", start, err)
	return count, err
}

// ValidateTransaction is a gate, not an operation; it is not recorded.
func (t *transactionUseCaseWithMetrics) ValidateTransaction(ctx context.Context, txID string, userID int64) bool {
	return t.next.ValidateTransaction(ctx, txID, userID)
}

func (t *transactionUseCaseWithMetrics) GetStatistics(ctx context.Context) (*transactionsDomain.Stats, error) {
	start := time.Now()
	stats, err := t.next.GetStatistics(ctx)
	t.record(ctx, "get_statistics", start, err)
	return stats, err
}
