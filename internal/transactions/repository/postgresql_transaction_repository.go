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

const transactionColumns = `id, user_id, operation, status, e2ee_enabled, metadata, ip_address, user_agent,
			  created_at, updated_at, completed_at`

// PostgreSQLTransactionRepository implements Transaction persistence for PostgreSQL.
type PostgreSQLTransactionRepository struct {
	db *sql.DB
}

// NewPostgreSQLTransactionRepository creates a new PostgreSQL Transaction repository.
func NewPostgreSQLTransactionRepository(db *sql.DB) *PostgreSQLTransactionRepository {
	return &PostgreSQLTransactionRepository{db: db}
}

// Create inserts a new transaction.
func (p *PostgreSQLTransactionRepository) Create(ctx context.Context, tx *transactionsDomain.Transaction) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := marshalMetadata(tx.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO encryption_transactions (` + transactionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

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
func (p *PostgreSQLTransactionRepository) Update(ctx context.Context, tx *transactionsDomain.Transaction) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := marshalMetadata(tx.Metadata)
	if err != nil {
		return err
	}

	query := `UPDATE encryption_transactions
			  SET operation = $1, status = $2, e2ee_enabled = $3, metadata = $4, updated_at = $5, completed_at = $6
			  WHERE id = $7`

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
func (p *PostgreSQLTransactionRepository) GetByID(ctx context.Context, id string) (*transactionsDomain.Transaction, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + transactionColumns + ` FROM encryption_transactions WHERE id = $1`

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
func (p *PostgreSQLTransactionRepository) DeleteCompletedOlderThan(
	ctx context.Context,
	olderThan time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM encryption_transactions WHERE status = $1 AND completed_at < $2`

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
func (p *PostgreSQLTransactionRepository) Stats(ctx context.Context) (*transactionsDomain.Stats, error) {
	querier := database.GetTx(ctx, p.db)

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
