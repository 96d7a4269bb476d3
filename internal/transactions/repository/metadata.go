// Package repository implements Transaction persistence for PostgreSQL and MySQL.
package repository

import (
	"encoding/json"

	apperrors "github.com/allisson/e2ee/internal/errors"
	transactionsDomain "github.com/allisson/e2ee/internal/transactions/domain"
)

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal transaction metadata")
	}
	return data, nil
}

func unmarshalMetadata(data []byte) (map[string]any, error) {
	metadata := make(map[string]any)
	if len(data) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal transaction metadata")
	}
	return metadata, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*transactionsDomain.Transaction, error) {
	var tx transactionsDomain.Transaction
	var operation, status string
	var metadata []byte

	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&operation,
		&status,
		&tx.E2EEEnabled,
		&metadata,
		&tx.IPAddress,
		&tx.UserAgent,
		&tx.CreatedAt,
		&tx.UpdatedAt,
		&tx.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Operation = transactionsDomain.Operation(operation)
	tx.Status = transactionsDomain.Status(status)
	if tx.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &tx, nil
}

// scanStats folds the grouped counts query into Stats. Each row is
// (status, operation, e2ee_enabled, count).
func scanStats(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) (*transactionsDomain.Stats, error) {
	stats := &transactionsDomain.Stats{
		ByStatus:    make(map[transactionsDomain.Status]int64),
		ByOperation: make(map[transactionsDomain.Operation]int64),
	}

	for rows.Next() {
		var status, operation string
		var e2ee bool
		var count int64
		if err := rows.Scan(&status, &operation, &e2ee, &count); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan transaction stats")
		}

		stats.Total += count
		stats.ByStatus[transactionsDomain.Status(status)] += count
		if operation != "" {
			stats.ByOperation[transactionsDomain.Operation(operation)] += count
		}
		if e2ee {
			stats.E2EEEnabled += count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate transaction stats")
	}
	return stats, nil
}
