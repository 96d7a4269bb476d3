package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/allisson/e2ee/internal/database"
	apperrors "github.com/allisson/e2ee/internal/errors"
	transactionsDomain "github.com/allisson/e2ee/internal/transactions/domain"
)

// MySQLTransactionRepository implements Transaction persistence for MySQL.
type MySQLTransactionRepository struct {
	db *sql.DB
}

// NewMySQLTransactionRepository creates a new MySQL Transaction repository.
func NewMySQLTransactionRepository(db *sql.DB) *MySQLTransactionRepository {
	return &MySQLTransactionRepository{db: db}
}

// Create inserts a new transaction.
func (m *MySQLTransactionRepository) Create(ctx context.Context, tx *transactionsDomain.Transaction) error {
	querier := database.GetTx(ctx, m.db)

	metadata, err := marshalMetadata(tx.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO encryption_transactions (` + transactionColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		tx.ID,
		tx.UserID,
		string(tx.Operation),
		string(tx.Status),
		tx.E2EEEnabled,
		metadata,
		tx.IPAddress,
		tx.UserAgent,
		tx.CreatedAt,
		tx.UpdatedAt,
		tx.CompletedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create transaction")
	}
	return nil
}

// Update persists status, operation, e2ee flag, metadata and timestamps.
func (m *MySQLTransactionRepository) Update(ctx context.Context, tx *transactionsDomain.Transaction) error {
	querier := database.GetTx(ctx, m.db)

	metadata, err := marshalMetadata(tx.Metadata)
	if err != nil {
		return err
	}

	query := `UPDATE encryption_transactions
			  SET operation = ?, status = ?, e2ee_enabled = ?, metadata = ?, updated_at = ?, completed_at = ?
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(tx.Operation),
		string(tx.Status),
		tx.E2EEEnabled,
		metadata,
		tx.UpdatedAt,
		tx.CompletedAt,
		tx.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update transaction")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get affected rows count")
	}
	if rows == 0 {
		return transactionsDomain.ErrTransactionNotFound
	}
	return nil
}

// GetByID returns a transaction by id.
func (m *MySQLTransactionRepository) GetByID(ctx context.Context, id string) (*transactionsDomain.Transaction, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + transactionColumns + ` FROM encryption_transactions WHERE id = ?`

	tx, err := scanTransaction(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transactionsDomain.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get transaction")
	}
	return tx, nil
}

// DeleteCompletedOlderThan removes completed transactions finished before olderThan and
// returns the number of deleted rows.
func (m *MySQLTransactionRepository) DeleteCompletedOlderThan(
	ctx context.Context,
	olderThan time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM encryption_transactions WHERE status = ? AND completed_at < ?`

	result, err := querier.ExecContext(ctx, query, string(transactionsDomain.StatusCompleted), olderThan)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete transactions")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get affected rows count")
	}
	return count, nil
}

// Stats aggregates every transaction by status, operation and e2ee flag.
func (m *MySQLTransactionRepository) Stats(ctx context.Context) (*transactionsDomain.Stats, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT status, operation, e2ee_enabled, COUNT(*)
			  FROM encryption_transactions
			  GROUP BY status, operation, e2ee_enabled`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to query transaction stats")
	}
	defer func() {
		_ = rows.Close()
	}()

	return scanStats(rows)
}
