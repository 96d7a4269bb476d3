package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	validation "github.com/jellydator/validation"
	"golang.org/x/sync/singleflight"

	"github.com/allisson/e2ee/internal/cache"
	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	cryptoService "github.com/allisson/e2ee/internal/crypto/service"
	apperrors "github.com/allisson/e2ee/internal/errors"
	"github.com/allisson/e2ee/internal/keylock"
	"github.com/allisson/e2ee/internal/operation"
	transactionsDomain "github.com/allisson/e2ee/internal/transactions/domain"
	appValidation "github.com/allisson/e2ee/internal/validation"
)

const (
	// ModuleName identifies transaction operations in logs, audit records and metrics.
	ModuleName = "transactions"

	// ServerSideKeyInfo is the HKDF info used to derive the key of transactions
	// running with end-to-end encryption disabled.
	ServerSideKeyInfo = "transaction-server-side-v1"
)

// ErrorRules classify transaction failures.
var ErrorRules = []operation.Rule{
	{Err: transactionsDomain.ErrInvalidUser, Kind: operation.KindInvalidUser},
	{Err: transactionsDomain.ErrInvalidOrInactiveTransaction, Kind: operation.KindInvalidOrInactiveTransaction},
	{Err: transactionsDomain.ErrInvalidEncryptedDataFormat, Kind: operation.KindInvalidEncryptedDataFormat},
	{Err: transactionsDomain.ErrTransactionNotFound, Kind: operation.KindTransactionNotFound},
	{Err: cryptoDomain.ErrDecryptionFailed, Kind: operation.KindDecryptionFailed},
}

// Options configures the transaction manager.
type Options struct {
	// Algorithm is used with the server-side key.
	Algorithm cryptoDomain.Algorithm
	// CacheTTL bounds how long a snapshot stays cached. Zero disables caching.
	CacheTTL time.Duration
}

type transactionUseCase struct {
	runner         *operation.Runner
	repo           TransactionRepository
	keys           KeyProvider
	cipher         cryptoService.Cipher
	masterKeyChain *cryptoDomain.MasterKeyChain
	cache          *snapshotCache
	group          singleflight.Group
	locks          *keylock.KeyLock
	logger         *slog.Logger
	opts           Options
	now            func() time.Time
}

// NewTransactionUseCase creates the transaction manager.
func NewTransactionUseCase(
	repo TransactionRepository,
	keys KeyProvider,
	cipher cryptoService.Cipher,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	snapshotStore cache.Cache,
	auditor operation.Auditor,
	logger *slog.Logger,
	opts Options,
) TransactionUseCase {
	if opts.Algorithm == "" {
		opts.Algorithm = cryptoDomain.AESGCM
	}

	return &transactionUseCase{
		runner:         operation.NewRunner(ModuleName, logger, auditor, ErrorRules...),
		repo:           repo,
		keys:           keys,
		cipher:         cipher,
		masterKeyChain: masterKeyChain,
		cache:          &snapshotCache{cache: snapshotStore, ttl: opts.CacheTTL, logger: logger},
		locks:          keylock.New(),
		logger:         logger,
		opts:           opts,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (t *transactionUseCase) StartTransaction(
	ctx context.Context,
	userID int64,
	metadata map[string]any,
) (*transactionsDomain.Transaction, error) {
	return operation.Do(ctx, t.runner, "start_transaction", map[string]any{"user_id": userID},
		func(ctx context.Context) (*transactionsDomain.Transaction, error) {
			if err := validation.Validate(userID, appValidation.UserID); err != nil {
				return nil, transactionsDomain.ErrInvalidUser
			}

			now := t.now()
			info := transactionsDomain.RequestInfoFromContext(ctx)
			tx := &transactionsDomain.Transaction{
				ID:          transactionsDomain.NewTransactionID(),
				UserID:      userID,
				Status:      transactionsDomain.StatusPending,
				E2EEEnabled: true,
				Metadata:    make(map[string]any, len(metadata)+2),
				IPAddress:   info.IPAddress,
				UserAgent:   info.UserAgent,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			tx.MergeMetadata(metadata)
			if enabled, ok := metadata[transactionsDomain.MetaE2EEEnabled].(bool); ok {
				tx.E2EEEnabled = enabled
			}
			tx.Metadata[transactionsDomain.MetaE2EEEnabled] = tx.E2EEEnabled
			tx.Metadata[transactionsDomain.MetaOperationCount] = int64(0)

			if err := tx.Transition(transactionsDomain.StatusActive, now); err != nil {
				return nil, err
			}
			if err := t.repo.Create(ctx, tx); err != nil {
				return nil, err
			}

			t.cache.put(ctx, tx)
			return tx.Clone(), nil
		})
}

func (t *transactionUseCase) EncryptInTransaction(
	ctx context.Context,
	data []byte,
	userID int64,
	txID string,
	metadata map[string]any,
) (*transactionsDomain.EncryptedPayload, error) {
	fields := map[string]any{"user_id": userID, "transaction_id": txID, "size": len(data)}

	return operation.Do(ctx, t.runner, "encrypt_in_transaction", fields,
		func(ctx context.Context) (*transactionsDomain.EncryptedPayload, error) {
			unlock := t.locks.Lock(txID)
			defer unlock()

			tx, err := t.begin(ctx, txID, userID, transactionsDomain.StatusEncrypting, transactionsDomain.OperationEncrypt)
			if err != nil {
				return nil, err
			}

			key, alg, release, err := t.resolveKey(ctx, tx)
			if err != nil {
				return nil, t.abort(ctx, tx, err)
			}
			defer release()

			envelope, err := t.cipher.Encrypt(key, alg, data, nil)
			if err != nil {
				return nil, t.abort(ctx, tx, err)
			}

			if err := t.finish(ctx, tx, metadata); err != nil {
				return nil, t.abort(ctx, tx, err)
			}
			return &transactionsDomain.EncryptedPayload{
				Ciphertext: envelope.Ciphertext,
				IV:         envelope.IV,
				Tag:        envelope.Tag,
			}, nil
		})
}

func (t *transactionUseCase) DecryptInTransaction(
	ctx context.Context,
	ciphertext, iv []byte,
	userID int64,
	txID string,
	tag []byte,
) ([]byte, error) {
	fields := map[string]any{"user_id": userID, "transaction_id": txID, "size": len(ciphertext)}

	return operation.Do(ctx, t.runner, "decrypt_in_transaction", fields,
		func(ctx context.Context) ([]byte, error) {
			unlock := t.locks.Lock(txID)
			defer unlock()

			tx, err := t.begin(ctx, txID, userID, transactionsDomain.StatusDecrypting, transactionsDomain.OperationDecrypt)
			if err != nil {
				return nil, err
			}

			key, alg, release, err := t.resolveKey(ctx, tx)
			if err != nil {
				return nil, t.abort(ctx, tx, err)
			}
			defer release()

			envelope := &cryptoDomain.Envelope{Ciphertext: ciphertext, IV: iv, Tag: tag}
			plaintext, err := t.cipher.Decrypt(key, alg, envelope, nil)
			if err != nil {
				return nil, t.abort(ctx, tx, err)
			}

			if err := t.finish(ctx, tx, nil); err != nil {
				cryptoDomain.Zero(plaintext)
				return nil, t.abort(ctx, tx, err)
			}
			return plaintext, nil
		})
}

func (t *transactionUseCase) EncryptTransactionData(
	ctx context.Context,
	data any,
	userID int64,
	txID string,
) ([]byte, error) {
	fields := map[string]any{"user_id": userID, "transaction_id": txID}

	return operation.Do(ctx, t.runner, "encrypt_transaction_data", fields,
		func(ctx context.Context) ([]byte, error) {
			plaintext, err := json.Marshal(data)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "data is not JSON serializable")
			}
			defer cryptoDomain.Zero(plaintext)

			payload, err := t.EncryptInTransaction(ctx, plaintext, userID, txID, nil)
			if err != nil {
				return nil, err
			}
			return json.Marshal(payload)
		})
}

func (t *transactionUseCase) DecryptTransactionData(
	ctx context.Context,
	encrypted []byte,
	userID int64,
	txID string,
	out any,
) error {
	fields := map[string]any{"user_id": userID, "transaction_id": txID}

	return t.runner.Run(ctx, "decrypt_transaction_data", fields, func(ctx context.Context) error {
		payload, err := decodePayload(encrypted)
		if err != nil {
			return err
		}

		plaintext, err := t.DecryptInTransaction(ctx, payload.Ciphertext, payload.IV, userID, txID, payload.Tag)
		if err != nil {
			return err
		}
		defer cryptoDomain.Zero(plaintext)

		if err := json.Unmarshal(plaintext, out); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalidInput, "decrypted data is not valid JSON")
		}
		return nil
	})
}

func (t *transactionUseCase) SetTransactionE2EE(ctx context.Context, txID string, enabled bool) (bool, error) {
	fields := map[string]any{"transaction_id": txID, "e2ee_enabled": enabled}

	return operation.Do(ctx, t.runner, "set_transaction_e2ee", fields,
		func(ctx context.Context) (bool, error) {
			unlock := t.locks.Lock(txID)
			defer unlock()

			tx, err := t.load(ctx, txID)
			if errors.Is(err, transactionsDomain.ErrTransactionNotFound) {
				return false, transactionsDomain.ErrInvalidOrInactiveTransaction
			}
			if err != nil {
				return false, err
			}
			if tx.Status != transactionsDomain.StatusActive {
				return false, transactionsDomain.ErrInvalidOrInactiveTransaction
			}

			tx.E2EEEnabled = enabled
			tx.Metadata[transactionsDomain.MetaE2EEEnabled] = enabled
			tx.UpdatedAt = t.now()
			if err := t.persist(ctx, tx); err != nil {
				return false, err
			}
			return true, nil
		})
}

func (t *transactionUseCase) CompleteTransaction(
	ctx context.Context,
	txID string,
	metadata map[string]any,
) (bool, error) {
	return operation.Do(ctx, t.runner, "complete_transaction", map[string]any{"transaction_id": txID},
		func(ctx context.Context) (bool, error) {
			unlock := t.locks.Lock(txID)
			defer unlock()

			tx, err := t.load(ctx, txID)
			if err != nil {
				return false, err
			}

			switch tx.Status {
			case transactionsDomain.StatusCompleted:
				t.cache.forget(ctx, txID)
				return true, nil
			case transactionsDomain.StatusActive:
			default:
				return false, transactionsDomain.ErrInvalidOrInactiveTransaction
			}

			tx.MergeMetadata(metadata)
			if err := tx.Transition(transactionsDomain.StatusCompleted, t.now()); err != nil {
				return false, err
			}
			if err := t.persist(ctx, tx); err != nil {
				return false, err
			}
			return true, nil
		})
}

func (t *transactionUseCase) FailTransaction(ctx context.Context, txID, reason string) error {
	fields := map[string]any{"transaction_id": txID, "reason": reason}

	return t.runner.Run(ctx, "fail_transaction", fields, func(ctx context.Context) error {
		if err := validation.Validate(reason, validation.Required, appValidation.NotBlank); err != nil {
			return transactionsDomain.ErrReasonRequired
		}

		unlock := t.locks.Lock(txID)
		defer unlock()

		tx, err := t.load(ctx, txID)
		if err != nil {
			return err
		}

		switch tx.Status {
		case transactionsDomain.StatusFailed:
			return nil
		case transactionsDomain.StatusCompleted:
			return transactionsDomain.ErrInvalidOrInactiveTransaction
		}
		return t.markFailed(ctx, tx, reason)
	})
}

func (t *transactionUseCase) GetTransaction(ctx context.Context, txID string) (*transactionsDomain.Transaction, error) {
	return operation.Do(ctx, t.runner, "get_transaction", map[string]any{"transaction_id": txID},
		func(ctx context.Context) (*transactionsDomain.Transaction, error) {
			if err := validation.Validate(txID, validation.Required, appValidation.TransactionID); err != nil {
				return nil, transactionsDomain.ErrTransactionNotFound
			}
			return t.load(ctx, txID)
		})
}

func (t *transactionUseCase) CleanupOldTransactions(ctx context.Context, daysOld int) (int64, error) {
	return operation.Do(ctx, t.runner, "cleanup_old_transactions", map[string]any{"days_old": daysOld},
		func(ctx context.Context) (int64, error) {
			if err := validation.Validate(daysOld, appValidation.RetentionDays); err != nil {
				return 0, transactionsDomain.ErrInvalidRetention
			}

			cutoff := t.now().AddDate(0, 0, -daysOld)
			return t.repo.DeleteCompletedOlderThan(ctx, cutoff)
		})
}

func (t *transactionUseCase) ValidateTransaction(ctx context.Context, txID string, userID int64) bool {
	tx, err := t.load(ctx, txID)
	if err != nil {
		return false
	}
	return tx.UserID == userID && tx.Status == transactionsDomain.StatusActive
}

func (t *transactionUseCase) GetStatistics(ctx context.Context) (*transactionsDomain.Stats, error) {
	return operation.Do(ctx, t.runner, "get_statistics", nil,
		func(ctx context.Context) (*transactionsDomain.Stats, error) {
			return t.repo.Stats(ctx)
		})
}

// load returns a private copy of the transaction, from the cache or the store.
func (t *transactionUseCase) load(ctx context.Context, txID string) (*transactionsDomain.Transaction, error) {
	if tx := t.cache.get(ctx, txID); tx != nil {
		return tx, nil
	}

	v, err, _ := t.group.Do(txID, func() (any, error) {
		tx, err := t.repo.GetByID(ctx, txID)
		if err != nil {
			return nil, err
		}
		if !tx.Status.IsTerminal() {
			t.cache.put(ctx, tx)
		}
		return tx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*transactionsDomain.Transaction).Clone(), nil
}

// begin checks ownership and state and moves the transaction into next.
func (t *transactionUseCase) begin(
	ctx context.Context,
	txID string,
	userID int64,
	next transactionsDomain.Status,
	op transactionsDomain.Operation,
) (*transactionsDomain.Transaction, error) {
	tx, err := t.load(ctx, txID)
	if err != nil {
		if errors.Is(err, transactionsDomain.ErrTransactionNotFound) {
			return nil, transactionsDomain.ErrInvalidOrInactiveTransaction
		}
		return nil, err
	}
	if tx.UserID != userID || tx.Status != transactionsDomain.StatusActive {
		return nil, transactionsDomain.ErrInvalidOrInactiveTransaction
	}

	tx.Operation = op
	if err := tx.Transition(next, t.now()); err != nil {
		return nil, err
	}
	if err := t.persist(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// finish returns the transaction to active after a successful cipher operation.
func (t *transactionUseCase) finish(
	ctx context.Context,
	tx *transactionsDomain.Transaction,
	metadata map[string]any,
) error {
	count := tx.OperationCount() + 1
	tx.MergeMetadata(metadata)
	tx.Metadata[transactionsDomain.MetaOperationCount] = count

	if err := tx.Transition(transactionsDomain.StatusActive, t.now()); err != nil {
		return err
	}
	return t.persist(ctx, tx)
}

// abort fails the transaction with cause and returns cause. When the failure
// cannot be stored the cached copy is dropped so the next load reads the store.
func (t *transactionUseCase) abort(ctx context.Context, tx *transactionsDomain.Transaction, cause error) error {
	if err := t.markFailed(ctx, tx, cause.Error()); err != nil {
		t.cache.forget(ctx, tx.ID)
		return errors.Join(cause, err)
	}
	return cause
}

func (t *transactionUseCase) markFailed(ctx context.Context, tx *transactionsDomain.Transaction, reason string) error {
	tx.MergeMetadata(map[string]any{transactionsDomain.MetaFailureReason: reason})
	if err := tx.Transition(transactionsDomain.StatusFailed, t.now()); err != nil {
		return err
	}
	return t.persist(ctx, tx)
}

// persist writes tx to the store and refreshes the cache. Terminal
// transactions are evicted.
func (t *transactionUseCase) persist(ctx context.Context, tx *transactionsDomain.Transaction) error {
	if err := t.repo.Update(ctx, tx); err != nil {
		return err
	}

	if tx.Status.IsTerminal() {
		t.cache.forget(ctx, tx.ID)
		return nil
	}
	t.cache.put(ctx, tx)
	return nil
}

// resolveKey returns the key for the next cipher operation and a function that
// wipes it.
func (t *transactionUseCase) resolveKey(
	ctx context.Context,
	tx *transactionsDomain.Transaction,
) ([]byte, cryptoDomain.Algorithm, func(), error) {
	if tx.E2EEEnabled {
		bundle, err := t.keys.GetUserKey(ctx, tx.UserID)
		if err != nil {
			return nil, "", nil, err
		}
		return bundle.UserKey, bundle.Algorithm, bundle.Zero, nil
	}

	key, err := t.serverSideKey(tx.UserID)
	if err != nil {
		return nil, "", nil, err
	}
	return key, t.opts.Algorithm, func() { cryptoDomain.Zero(key) }, nil
}

func (t *transactionUseCase) serverSideKey(userID int64) ([]byte, error) {
	masterKey, err := t.masterKeyChain.Active()
	if err != nil {
		return nil, err
	}
	salt := []byte(strconv.FormatInt(userID, 10))
	return cryptoService.ExpandKey(masterKey.Key, salt, []byte(ServerSideKeyInfo))
}

type encodedPayload struct {
	Ciphertext *[]byte `json:"ciphertext"`
	IV         *[]byte `json:"iv"`
	Tag        []byte  `json:"tag"`
}

func decodePayload(encrypted []byte) (*transactionsDomain.EncryptedPayload, error) {
	var raw encodedPayload
	if err := json.Unmarshal(encrypted, &raw); err != nil {
		return nil, transactionsDomain.ErrInvalidEncryptedDataFormat
	}
	if raw.Ciphertext == nil || raw.IV == nil || len(*raw.IV) == 0 {
		return nil, transactionsDomain.ErrInvalidEncryptedDataFormat
	}
	return &transactionsDomain.EncryptedPayload{
		Ciphertext: *raw.Ciphertext,
		IV:         *raw.IV,
		Tag:        raw.Tag,
	}, nil
}
