// Package repository implements EncryptionKey persistence for PostgreSQL and MySQL.
package repository

import (
	"encoding/json"

	apperrors "github.com/allisson/e2ee/internal/errors"
)

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal key metadata")
	}
	return data, nil
}

func unmarshalMetadata(data []byte) (map[string]any, error) {
	metadata := make(map[string]any)
	if len(data) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal key metadata")
	}
	return metadata, nil
}

