package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/allisson/e2ee/internal/cache"
	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	cryptoService "github.com/allisson/e2ee/internal/crypto/service"
	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
	transactionsDomain "github.com/allisson/e2ee/internal/transactions/domain"
)

type memoryTransactionRepository struct {
	mu       sync.Mutex
	txs      map[string]*transactionsDomain.Transaction
	getCalls atomic.Int64
}

func newMemoryTransactionRepository() *memoryTransactionRepository {
	return &memoryTransactionRepository{txs: make(map[string]*transactionsDomain.Transaction)}
}

func (m *memoryTransactionRepository) Create(_ context.Context, tx *transactionsDomain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.ID] = tx.Clone()
	return nil
}

func (m *memoryTransactionRepository) Update(_ context.Context, tx *transactionsDomain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[tx.ID]; !ok {
		return transactionsDomain.ErrTransactionNotFound
	}
	m.txs[tx.ID] = tx.Clone()
	return nil
}

func (m *memoryTransactionRepository) GetByID(_ context.Context, id string) (*transactionsDomain.Transaction, error) {
	m.getCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, transactionsDomain.ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

func (m *memoryTransactionRepository) DeleteCompletedOlderThan(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, tx := range m.txs {
		if tx.Status == transactionsDomain.StatusCompleted && tx.CompletedAt != nil && tx.CompletedAt.Before(olderThan) {
			delete(m.txs, id)
			count++
		}
	}
	return count, nil
}

func (m *memoryTransactionRepository) Stats(_ context.Context) (*transactionsDomain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &transactionsDomain.Stats{
		ByStatus:    make(map[transactionsDomain.Status]int64),
		ByOperation: make(map[transactionsDomain.Operation]int64),
	}
	for _, tx := range m.txs {
		stats.Total++
		stats.ByStatus[tx.Status]++
		if tx.Operation != "" {
			stats.ByOperation[tx.Operation]++
		}
		if tx.E2EEEnabled {
			stats.E2EEEnabled++
		}
	}
	return stats, nil
}

func (m *memoryTransactionRepository) get(id string) *transactionsDomain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil
	}
	return tx.Clone()
}

func (m *memoryTransactionRepository) mutate(id string, fn func(tx *transactionsDomain.Transaction)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.txs[id])
}

// stubKeyProvider hands out the current key of each user; rotate swaps it.
// failingUpdateRepository fails the nth Update call and delegates the rest.
type failingUpdateRepository struct {
	*memoryTransactionRepository
	failOn int64
	calls  atomic.Int64
}

func (f *failingUpdateRepository) Update(ctx context.Context, tx *transactionsDomain.Transaction) error {
	if f.calls.Add(1) == f.failOn {
		return errors.New("update failed")
	}
	return f.memoryTransactionRepository.Update(ctx, tx)
}

type stubKeyProvider struct {
	mu    sync.Mutex
	keys  map[int64][]byte
	err   error
	calls atomic.Int64
}

func newStubKeyProvider() *stubKeyProvider {
	return &stubKeyProvider{keys: make(map[int64][]byte)}
}

func (s *stubKeyProvider) GetUserKey(_ context.Context, userID int64) (*keysDomain.KeyBundle, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	key, ok := s.keys[userID]
	if !ok {
		key = bytes.Repeat([]byte{byte(userID)}, cryptoDomain.KeySize)
		s.keys[userID] = key
	}
	return &keysDomain.KeyBundle{
		KeyID:     uuid.Must(uuid.NewV7()),
		UserID:    userID,
		Algorithm: cryptoDomain.AESGCM,
		UserKey:   bytes.Clone(key),
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (s *stubKeyProvider) rotate(userID int64, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[userID] = key
}

func (s *stubKeyProvider) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type txFixture struct {
	uc     *transactionUseCase
	repo   *memoryTransactionRepository
	keys   *stubKeyProvider
	cache  *cache.MemoryCache
	chain  *cryptoDomain.MasterKeyChain
	cipher *cryptoService.EnvelopeCipher
}

func newTxFixture(t *testing.T) *txFixture {
	t.Helper()

	chain, err := cryptoDomain.NewMasterKeyChain("mk-1",
		&cryptoDomain.MasterKey{ID: "mk-1", Key: bytes.Repeat([]byte{9}, cryptoDomain.KeySize)},
	)
	require.NoError(t, err)

	memCache := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { _ = memCache.Close() })

	cipher := cryptoService.NewEnvelopeCipher(cryptoService.NewAEADManager())
	repo := newMemoryTransactionRepository()
	keys := newStubKeyProvider()

	uc := NewTransactionUseCase(
		repo,
		keys,
		cipher,
		chain,
		memCache,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		Options{Algorithm: cryptoDomain.AESGCM, CacheTTL: time.Hour},
	).(*transactionUseCase)

	return &txFixture{uc: uc, repo: repo, keys: keys, cache: memCache, chain: chain, cipher: cipher}
}

func (f *txFixture) start(t *testing.T, userID int64, metadata map[string]any) *transactionsDomain.Transaction {
	t.Helper()
	tx, err := f.uc.StartTransaction(context.Background(), userID, metadata)
	require.NoError(t, err)
	return tx
}
