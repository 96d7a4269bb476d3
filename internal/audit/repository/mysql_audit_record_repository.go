package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	auditDomain "github.com/allisson/e2ee/internal/audit/domain"
	"github.com/allisson/e2ee/internal/database"
	apperrors "github.com/allisson/e2ee/internal/errors"
)

// MySQLAuditRecordRepository implements audit record persistence for MySQL.
// UUIDs are stored as BINARY(16).
type MySQLAuditRecordRepository struct {
	db *sql.DB
}

// NewMySQLAuditRecordRepository creates a new MySQL audit record repository.
func NewMySQLAuditRecordRepository(db *sql.DB) *MySQLAuditRecordRepository {
	return &MySQLAuditRecordRepository{db: db}
}

// Create inserts an audit record.
func (m *MySQLAuditRecordRepository) Create(ctx context.Context, record *auditDomain.AuditRecord) error {
	querier := database.GetTx(ctx, m.db)

	contextJSON, err := marshalContext(record.Context)
	if err != nil {
		return err
	}

	id, err := record.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit record id")
	}

	query := `INSERT INTO audit_records (id, module, action, context, signature, master_key_id, is_signed, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		record.Module,
		record.Action,
		contextJSON,
		record.Signature,
		record.MasterKeyID,
		record.IsSigned,
		record.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit record")
	}

	return nil
}

// List returns records ordered by creation time (newest first), optionally bounded by creation time.
func (m *MySQLAuditRecordRepository) List(
	ctx context.Context,
	offset, limit int,
	createdAtFrom, createdAtTo *time.Time,
) ([]*auditDomain.AuditRecord, error) {
	querier := database.GetTx(ctx, m.db)

	var conditions []string
	var args []any

	if createdAtFrom != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *createdAtFrom)
	}

	if createdAtTo != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *createdAtTo)
	}

	query := `SELECT id, module, action, context, signature, master_key_id, is_signed, created_at
			  FROM audit_records`

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit records")
	}
	defer func() {
		_ = rows.Close()
	}()

	records := make([]*auditDomain.AuditRecord, 0)
	for rows.Next() {
		var record auditDomain.AuditRecord
		var idBinary, contextJSON []byte

		err := rows.Scan(
			&idBinary,
			&record.Module,
			&record.Action,
			&contextJSON,
			&record.Signature,
			&record.MasterKeyID,
			&record.IsSigned,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit record")
		}

		if err := record.ID.UnmarshalBinary(idBinary); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal audit record id")
		}

		if record.Context, err = unmarshalContext(contextJSON); err != nil {
			return nil, err
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit records")
	}

	return records, nil
}

// DeleteOlderThan removes records created before olderThan. With dryRun it only counts them.
func (m *MySQLAuditRecordRepository) DeleteOlderThan(
	ctx context.Context,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	if dryRun {
		var count int64
		err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_records WHERE created_at < ?`, olderThan).
			Scan(&count)
		if err != nil {
			return 0, apperrors.Wrap(err, "failed to count audit records")
		}
		return count, nil
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM audit_records WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit records")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get affected rows count")
	}

	return count, nil
}
