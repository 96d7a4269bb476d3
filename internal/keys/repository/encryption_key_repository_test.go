package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	"github.com/allisson/e2ee/internal/database"
	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var keyColumns = []string{
	"id", "user_id", "algorithm", "key_length", "status", "master_key_id", "encrypted_master_key",
	"master_key_nonce", "passphrase_salt", "passphrase_iterations", "passphrase_verifier",
	"encrypted_user_key", "user_key_nonce", "metadata", "created_at", "expires_at", "rotated_at",
	"revoked_at", "updated_at",
}

func newTestKey() *keysDomain.EncryptionKey {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &keysDomain.EncryptionKey{
		ID:                 uuid.Must(uuid.NewV7()),
		UserID:             42,
		Algorithm:          cryptoDomain.AESGCM,
		KeyLength:          cryptoDomain.KeySize,
		Status:             keysDomain.StatusActive,
		MasterKeyID:        "mk-1",
		EncryptedMasterKey: []byte("wrapped-master"),
		MasterKeyNonce:     []byte("nonce-master"),
		EncryptedUserKey:   []byte("wrapped-user"),
		UserKeyNonce:       []byte("nonce-user"),
		CreatedAt:          now,
		ExpiresAt:          now.Add(90 * 24 * time.Hour),
		UpdatedAt:          now,
	}
}

func keyRow(key *keysDomain.EncryptionKey, id any, metadata string) []driver.Value {
	return []driver.Value{
		id, key.UserID, string(key.Algorithm), key.KeyLength, string(key.Status), key.MasterKeyID,
		key.EncryptedMasterKey, key.MasterKeyNonce, nil, 0, "", key.EncryptedUserKey, key.UserKeyNonce,
		[]byte(metadata), key.CreatedAt, key.ExpiresAt, nil, nil, key.UpdatedAt,
	}
}

func TestPostgreSQLEncryptionKeyRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLEncryptionKeyRepository(db)
		key := newTestKey()
		key.SetMetadata(keysDomain.MetaRotatedFromKeyID, "k0")

		mock.ExpectExec("INSERT INTO encryption_keys").
			WithArgs(
				key.ID, int64(42), "aes-gcm", 32, "active", "mk-1",
				[]byte("wrapped-master"), []byte("nonce-master"), []byte(nil), 0, "",
				[]byte("wrapped-user"), []byte("nonce-user"), []byte(`{"rotated_from_key_id":"k0"}`),
				key.CreatedAt, key.ExpiresAt, nil, nil, key.UpdatedAt,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, key))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLEncryptionKeyRepository(db)

		mock.ExpectExec("INSERT INTO encryption_keys").WillReturnError(errors.New("boom"))

		assert.Error(t, repo.Create(ctx, newTestKey()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgreSQLEncryptionKeyRepository_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLEncryptionKeyRepository(db)
		key := newTestKey()
		require.NoError(t, key.Transition(keysDomain.StatusRotated, key.UpdatedAt))

		mock.ExpectExec("UPDATE encryption_keys").
			WithArgs("rotated", []byte("{}"), key.RotatedAt, nil, key.UpdatedAt, key.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(ctx, key))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLEncryptionKeyRepository(db)

		mock.ExpectExec("UPDATE encryption_keys").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Update(ctx, newTestKey()), keysDomain.ErrKeyNotFound)
	})
}

func TestPostgreSQLEncryptionKeyRepository_GetActiveByUserID(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLEncryptionKeyRepository(db)
		key := newTestKey()

		rows := sqlmock.NewRows(keyColumns).AddRow(keyRow(key, key.ID.String(), `{"a":"b"}`)...)
		mock.ExpectQuery("SELECT (.+) FROM encryption_keys WHERE user_id = \\$1 AND status = \\$2").
			WithArgs(int64(42), "active").
			WillReturnRows(rows)

		got, err := repo.GetActiveByUserID(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, key.ID, got.ID)
		assert.Equal(t, cryptoDomain.AESGCM, got.Algorithm)
		assert.Equal(t, keysDomain.StatusActive, got.Status)
		assert.Equal(t, "b", got.Metadata["a"])
		assert.False(t, got.IsProtected())
		assert.Nil(t, got.RotatedAt)
	})

	t.Run("Error_NoActiveKey", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLEncryptionKeyRepository(db)

		mock.ExpectQuery("SELECT (.+) FROM encryption_keys").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetActiveByUserID(ctx, 42)
		assert.ErrorIs(t, err, keysDomain.ErrNoActiveKey)
	})

	t.Run("Success_LocksRowInsideTransaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPostgreSQLEncryptionKeyRepository(db)
		key := newTestKey()

		rows := sqlmock.NewRows(keyColumns).AddRow(keyRow(key, key.ID.String(), `{}`)...)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM encryption_keys WHERE user_id = \\$1 (.+) LIMIT 1 FOR UPDATE").
			WithArgs(int64(42), "active").
			WillReturnRows(rows)
		mock.ExpectCommit()

		err := database.NewTxManager(db).WithTx(ctx, func(ctx context.Context) error {
			got, err := repo.GetActiveByUserID(ctx, 42)
			if err != nil {
				return err
			}
			assert.Equal(t, key.ID, got.ID)
			return nil
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMySQLEncryptionKeyRepository_GetActiveByUserID(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewMySQLEncryptionKeyRepository(db)
	key := newTestKey()
	id, err := key.ID.MarshalBinary()
	require.NoError(t, err)

	rows := sqlmock.NewRows(keyColumns).AddRow(keyRow(key, id, `{}`)...)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM encryption_keys WHERE user_id = \\? (.+) LIMIT 1 FOR UPDATE").
		WithArgs(int64(42), "active").
		WillReturnRows(rows)
	mock.ExpectCommit()

	err = database.NewTxManager(db).WithTx(ctx, func(ctx context.Context) error {
		got, err := repo.GetActiveByUserID(ctx, 42)
		if err != nil {
			return err
		}
		assert.Equal(t, key.ID, got.ID)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLEncryptionKeyRepository_ListExpired(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewPostgreSQLEncryptionKeyRepository(db)
	now := time.Now().UTC()
	key := newTestKey()

	rows := sqlmock.NewRows(keyColumns).AddRow(keyRow(key, key.ID.String(), `{}`)...)
	mock.ExpectQuery("SELECT (.+) FROM encryption_keys WHERE status = \\$1 AND expires_at < \\$2").
		WithArgs("active", now, 100).
		WillReturnRows(rows)

	keys, err := repo.ListExpired(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLEncryptionKeyRepository_Create(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewMySQLEncryptionKeyRepository(db)
	key := newTestKey()
	id, err := key.ID.MarshalBinary()
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO encryption_keys").
		WithArgs(
			id, int64(42), "aes-gcm", 32, "active", "mk-1",
			[]byte("wrapped-master"), []byte("nonce-master"), []byte(nil), 0, "",
			[]byte("wrapped-user"), []byte("nonce-user"), []byte("{}"),
			key.CreatedAt, key.ExpiresAt, nil, nil, key.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(ctx, key))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLEncryptionKeyRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLEncryptionKeyRepository(db)
		key := newTestKey()
		id, err := key.ID.MarshalBinary()
		require.NoError(t, err)

		rows := sqlmock.NewRows(keyColumns).AddRow(keyRow(key, id, `{}`)...)
		mock.ExpectQuery("SELECT (.+) FROM encryption_keys WHERE id = \\?").
			WithArgs(id).
			WillReturnRows(rows)

		got, err := repo.GetByID(ctx, key.ID)
		require.NoError(t, err)
		assert.Equal(t, key.ID, got.ID)
		assert.Equal(t, "mk-1", got.MasterKeyID)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMySQLEncryptionKeyRepository(db)

		mock.ExpectQuery("SELECT (.+) FROM encryption_keys").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, uuid.Must(uuid.NewV7()))
		assert.ErrorIs(t, err, keysDomain.ErrKeyNotFound)
	})
}

func TestMySQLEncryptionKeyRepository_ListByUserID(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewMySQLEncryptionKeyRepository(db)

	first, second := newTestKey(), newTestKey()
	firstID, _ := first.ID.MarshalBinary()
	secondID, _ := second.ID.MarshalBinary()

	rows := sqlmock.NewRows(keyColumns).
		AddRow(keyRow(second, secondID, `{}`)...).
		AddRow(keyRow(first, firstID, `{}`)...)
	mock.ExpectQuery("SELECT (.+) FROM encryption_keys WHERE user_id = \\?").
		WithArgs(int64(42)).
		WillReturnRows(rows)

	keys, err := repo.ListByUserID(ctx, 42)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, second.ID, keys[0].ID)
	assert.Equal(t, first.ID, keys[1].ID)
}
