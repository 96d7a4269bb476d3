// Package repository persists audit records in PostgreSQL or MySQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	auditDomain "github.com/allisson/e2ee/internal/audit/domain"
	"github.com/allisson/e2ee/internal/database"
	apperrors "github.com/allisson/e2ee/internal/errors"
)

// PostgreSQLAuditRecordRepository implements audit record persistence for PostgreSQL.
type PostgreSQLAuditRecordRepository struct {
	db *sql.DB
}

// NewPostgreSQLAuditRecordRepository creates a new PostgreSQL audit record repository.
func NewPostgreSQLAuditRecordRepository(db *sql.DB) *PostgreSQLAuditRecordRepository {
	return &PostgreSQLAuditRecordRepository{db: db}
}

// Create inserts an audit record.
func (p *PostgreSQLAuditRecordRepository) Create(ctx context.Context, record *auditDomain.AuditRecord) error {
	querier := database.GetTx(ctx, p.db)

	contextJSON, err := marshalContext(record.Context)
	if err != nil {
		return err
	}

	query := `INSERT INTO audit_records (id, module, action, context, signature, master_key_id, is_signed, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = querier.ExecContext(
		ctx,
		query,
		record.ID,
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
func (p *PostgreSQLAuditRecordRepository) List(
	ctx context.Context,
	offset, limit int,
	createdAtFrom, createdAtTo *time.Time,
) ([]*auditDomain.AuditRecord, error) {
	querier := database.GetTx(ctx, p.db)

	var conditions []string
	var args []any

	if createdAtFrom != nil {
		args = append(args, *createdAtFrom)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	if createdAtTo != nil {
		args = append(args, *createdAtTo)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := `SELECT id, module, action, context, signature, master_key_id, is_signed, created_at
			  FROM audit_records`

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
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
		var contextJSON []byte

		err := rows.Scan(
			&record.ID,
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
func (p *PostgreSQLAuditRecordRepository) DeleteOlderThan(
	ctx context.Context,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	if dryRun {
		var count int64
		err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_records WHERE created_at < $1`, olderThan).
			Scan(&count)
		if err != nil {
			return 0, apperrors.Wrap(err, "failed to count audit records")
		}
		return count, nil
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM audit_records WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit records")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get affected rows count")
	}

	return count, nil
}

func marshalContext(fields map[string]any) ([]byte, error) {
	if fields == nil {
		return nil, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal audit record context")
	}
	return data, nil
}

func unmarshalContext(data []byte) (map[string]any, error) {
	if data == nil {
		return nil, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal audit record context")
	}
	return fields, nil
}
