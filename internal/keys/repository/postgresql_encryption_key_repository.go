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

const pgKeyColumns = `id, user_id, algorithm, key_length, status, master_key_id, encrypted_master_key,
			  master_key_nonce, passphrase_salt, passphrase_iterations, passphrase_verifier,
			  encrypted_user_key, user_key_nonce, metadata, created_at, expires_at, rotated_at,
			  revoked_at, updated_at`

// PostgreSQLEncryptionKeyRepository implements EncryptionKey persistence for PostgreSQL.
type PostgreSQLEncryptionKeyRepository struct {
	db *sql.DB
}

// NewPostgreSQLEncryptionKeyRepository creates a new PostgreSQL EncryptionKey repository.
func NewPostgreSQLEncryptionKeyRepository(db *sql.DB) *PostgreSQLEncryptionKeyRepository {
	return &PostgreSQLEncryptionKeyRepository{db: db}
}

// Create inserts a new key.
func (p *PostgreSQLEncryptionKeyRepository) Create(ctx context.Context, key *keysDomain.EncryptionKey) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := marshalMetadata(key.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO encryption_keys (` + pgKeyColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = querier.ExecContext(
		ctx,
		query,
		key.ID,
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
func (p *PostgreSQLEncryptionKeyRepository) Update(ctx context.Context, key *keysDomain.EncryptionKey) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := marshalMetadata(key.Metadata)
	if err != nil {
		return err
	}

	query := `UPDATE encryption_keys
			  SET status = $1, metadata = $2, rotated_at = $3, revoked_at = $4, updated_at = $5
			  WHERE id = $6`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(key.Status),
		metadata,
		key.RotatedAt,
		key.RevokedAt,
		key.UpdatedAt,
		key.ID,
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
func (p *PostgreSQLEncryptionKeyRepository) GetActiveByUserID(
	ctx context.Context,
	userID int64,
) (*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + pgKeyColumns + `
			  FROM encryption_keys
			  WHERE user_id = $1 AND status = $2
			  ORDER BY created_at DESC
			  LIMIT 1` + database.ForUpdate(ctx)

	key, err := scanPostgreSQLKey(querier.QueryRowContext(ctx, query, userID, string(keysDomain.StatusActive)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrNoActiveKey
		}
		return nil, apperrors.Wrap(err, "failed to get active encryption key")
	}
	return key, nil
}

// GetByID returns a key by id.
func (p *PostgreSQLEncryptionKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + pgKeyColumns + ` FROM encryption_keys WHERE id = $1`

	key, err := scanPostgreSQLKey(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get encryption key")
	}
	return key, nil
}

// ListByUserID returns every key of the user, newest first.
func (p *PostgreSQLEncryptionKeyRepository) ListByUserID(
	ctx context.Context,
	userID int64,
) ([]*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + pgKeyColumns + `
			  FROM encryption_keys
			  WHERE user_id = $1
			  ORDER BY created_at DESC`

	return p.list(ctx, querier, query, userID)
}

// ListExpired returns up to limit active keys whose expires_at is before now.
func (p *PostgreSQLEncryptionKeyRepository) ListExpired(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + pgKeyColumns + `
			  FROM encryption_keys
			  WHERE status = $1 AND expires_at < $2
			  ORDER BY expires_at ASC
			  LIMIT $3`

	return p.list(ctx, querier, query, string(keysDomain.StatusActive), now, limit)
}

func (p *PostgreSQLEncryptionKeyRepository) list(
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
		key, err := scanPostgreSQLKey(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgreSQLKey(row rowScanner) (*keysDomain.EncryptionKey, error) {
	var key keysDomain.EncryptionKey
	var algorithm, status string
	var metadata []byte

	err := row.Scan(
		&key.ID,
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

	key.Algorithm = cryptoDomain.Algorithm(algorithm)
	key.Status = keysDomain.Status(status)
	if key.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &key, nil
}
