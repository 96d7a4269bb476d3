package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	"github.com/allisson/e2ee/internal/database"
	apperrors "github.com/allisson/e2ee/internal/errors"
	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
)

const mysqlKeyColumns = `id, user_id, algorithm, key_length, status, master_key_id, encrypted_master_key,
			  master_key_nonce, passphrase_salt, passphrase_iterations, passphrase_verifier,
			  encrypted_user_key, user_key_nonce, metadata, created_at, expires_at, rotated_at,
			  revoked_at, updated_at`

// MySQLEncryptionKeyRepository implements EncryptionKey persistence for MySQL.
// UUIDs are stored as BINARY(16).
type MySQLEncryptionKeyRepository struct {
	db *sql.DB
}

// NewMySQLEncryptionKeyRepository creates a new MySQL EncryptionKey repository.
func NewMySQLEncryptionKeyRepository(db *sql.DB) *MySQLEncryptionKeyRepository {
	return &MySQLEncryptionKeyRepository{db: db}
}

// Create inserts a new key.
func (p *MySQLEncryptionKeyRepository) Create(ctx context.Context, key *keysDomain.EncryptionKey) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := marshalMetadata(key.Metadata)
	if err != nil {
		return err
	}

	id, err := key.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal key id")
	}

	query := `INSERT INTO encryption_keys (` + mysqlKeyColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		key.UserID,
		string(key.Algorithm),
		key.KeyLength,
		string(key.Status),
		key.MasterKeyID,
		key.EncryptedMasterKey,
		key.MasterKeyNonce,
		key.PassphraseSalt,
		key.PassphraseIterations,
		key.PassphraseVerifier,
		key.EncryptedUserKey,
		key.UserKeyNonce,
		metadata,
		key.CreatedAt,
		key.ExpiresAt,
		key.RotatedAt,
		key.RevokedAt,
		key.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create encryption key")
	}
	return nil
}

// Update persists the mutable lifecycle fields: status, metadata and timestamps.
func (p *MySQLEncryptionKeyRepository) Update(ctx context.Context, key *keysDomain.EncryptionKey) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := marshalMetadata(key.Metadata)
	if err != nil {
		return err
	}

	id, err := key.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal key id")
	}

	query := `UPDATE encryption_keys
			  SET status = ?, metadata = ?, rotated_at = ?, revoked_at = ?, updated_at = ?
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(key.Status),
		metadata,
		key.RotatedAt,
		key.RevokedAt,
		key.UpdatedAt,
		id,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update encryption key")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get affected rows count")
	}
	if rows == 0 {
		return keysDomain.ErrKeyNotFound
	}
	return nil
}

// GetActiveByUserID returns the newest active key of the user. Inside WithTx
// the row stays locked until commit.
func (p *MySQLEncryptionKeyRepository) GetActiveByUserID(
	ctx context.Context,
	userID int64,
) (*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + mysqlKeyColumns + `
			  FROM encryption_keys
			  WHERE user_id = ? AND status = ?
			  ORDER BY created_at DESC
			  LIMIT 1` + database.ForUpdate(ctx)

	key, err := scanMySQLKey(querier.QueryRowContext(ctx, query, userID, string(keysDomain.StatusActive)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrNoActiveKey
		}
		return nil, apperrors.Wrap(err, "failed to get active encryption key")
	}
	return key, nil
}

// GetByID returns a key by id.
func (p *MySQLEncryptionKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	idBinary, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal key id")
	}

	query := `SELECT ` + mysqlKeyColumns + ` FROM encryption_keys WHERE id = ?`

	key, err := scanMySQLKey(querier.QueryRowContext(ctx, query, idBinary))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get encryption key")
	}
	return key, nil
}

// ListByUserID returns every key of the user, newest first.
func (p *MySQLEncryptionKeyRepository) ListByUserID(
	ctx context.Context,
	userID int64,
) ([]*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + mysqlKeyColumns + `
			  FROM encryption_keys
			  WHERE user_id = ?
			  ORDER BY created_at DESC`

	return p.list(ctx, querier, query, userID)
}

// ListExpired returns up to limit active keys whose expires_at is before now.
func (p *MySQLEncryptionKeyRepository) ListExpired(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + mysqlKeyColumns + `
			  FROM encryption_keys
			  WHERE status = ? AND expires_at < ?
			  ORDER BY expires_at ASC
			  LIMIT ?`

	return p.list(ctx, querier, query, string(keysDomain.StatusActive), now, limit)
}

func (p *MySQLEncryptionKeyRepository) list(
	ctx context.Context,
	querier database.Querier,
	query string,
	args ...any,
) ([]*keysDomain.EncryptionKey, error) {
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list encryption keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	keys := make([]*keysDomain.EncryptionKey, 0)
	for rows.Next() {
		key, err := scanMySQLKey(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan encryption key")
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate encryption keys")
	}
	return keys, nil
}

func scanMySQLKey(row rowScanner) (*keysDomain.EncryptionKey, error) {
	var key keysDomain.EncryptionKey
	var algorithm, status string
	var idBinary, metadata []byte

	err := row.Scan(
		&idBinary,
		&key.UserID,
		&algorithm,
		&key.KeyLength,
		&status,
		&key.MasterKeyID,
		&key.EncryptedMasterKey,
		&key.MasterKeyNonce,
		&key.PassphraseSalt,
		&key.PassphraseIterations,
		&key.PassphraseVerifier,
		&key.EncryptedUserKey,
		&key.UserKeyNonce,
		&metadata,
		&key.CreatedAt,
		&key.ExpiresAt,
		&key.RotatedAt,
		&key.RevokedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := key.ID.UnmarshalBinary(idBinary); err != nil {
		return nil, err
	}
	key.Algorithm = cryptoDomain.Algorithm(algorithm)
	key.Status = keysDomain.Status(status)
	if key.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &key, nil
}
