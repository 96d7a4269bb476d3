package usecase

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/allisson/e2ee/internal/cache"
	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	cryptoService "github.com/allisson/e2ee/internal/crypto/service"
	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
	keysService "github.com/allisson/e2ee/internal/keys/service"
	"github.com/allisson/e2ee/internal/storage"
)

// memoryKeyRepository stores copies of keys so the use case never shares records with it.
type memoryKeyRepository struct {
	mu   sync.Mutex
	keys map[uuid.UUID]*keysDomain.EncryptionKey
}

func newMemoryKeyRepository() *memoryKeyRepository {
	return &memoryKeyRepository{keys: make(map[uuid.UUID]*keysDomain.EncryptionKey)}
}

func cloneKey(key *keysDomain.EncryptionKey) *keysDomain.EncryptionKey {
	c := *key
	c.Metadata = maps.Clone(key.Metadata)
	c.MasterKey = nil
	c.UserKey = nil
	return &c
}

func (m *memoryKeyRepository) Create(_ context.Context, key *keysDomain.EncryptionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.ID] = cloneKey(key)
	return nil
}

func (m *memoryKeyRepository) Update(_ context.Context, key *keysDomain.EncryptionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key.ID]; !ok {
		return keysDomain.ErrKeyNotFound
	}
	m.keys[key.ID] = cloneKey(key)
	return nil
}

func (m *memoryKeyRepository) GetActiveByUserID(_ context.Context, userID int64) (*keysDomain.EncryptionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *keysDomain.EncryptionKey
	for _, key := range m.keys {
		if key.UserID == userID && key.Status == keysDomain.StatusActive {
			if found == nil || key.CreatedAt.After(found.CreatedAt) {
				found = key
			}
		}
	}
	if found == nil {
		return nil, keysDomain.ErrNoActiveKey
	}
	return cloneKey(found), nil
}

func (m *memoryKeyRepository) GetByID(_ context.Context, id uuid.UUID) (*keysDomain.EncryptionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return nil, keysDomain.ErrKeyNotFound
	}
	return cloneKey(key), nil
}

func (m *memoryKeyRepository) ListByUserID(_ context.Context, userID int64) ([]*keysDomain.EncryptionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]*keysDomain.EncryptionKey, 0)
	for _, key := range m.keys {
		if key.UserID == userID {
			keys = append(keys, cloneKey(key))
		}
	}
	slices.SortFunc(keys, func(a, b *keysDomain.EncryptionKey) int {
		return bytes.Compare(b.ID[:], a.ID[:])
	})
	return keys, nil
}

func (m *memoryKeyRepository) ListExpired(_ context.Context, now time.Time, limit int) ([]*keysDomain.EncryptionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]*keysDomain.EncryptionKey, 0)
	for _, key := range m.keys {
		if key.Status == keysDomain.StatusActive && key.ExpiresAt.Before(now) && len(keys) < limit {
			keys = append(keys, cloneKey(key))
		}
	}
	return keys, nil
}

func (m *memoryKeyRepository) countActive(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, key := range m.keys {
		if key.UserID == userID && key.Status == keysDomain.StatusActive {
			n++
		}
	}
	return n
}

func (m *memoryKeyRepository) get(id uuid.UUID) *keysDomain.EncryptionKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneKey(m.keys[id])
}

type passthroughTxManager struct{}

func (passthroughTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type keyFixture struct {
	uc    *keyUseCase
	repo  *memoryKeyRepository
	cache *cache.MemoryCache
	store *storage.BucketStore
}

func newKeyFixture(t *testing.T, mutate ...func(*Options)) *keyFixture {
	t.Helper()

	chain, err := cryptoDomain.NewMasterKeyChain("mk-1",
		&cryptoDomain.MasterKey{ID: "mk-1", Key: bytes.Repeat([]byte{7}, cryptoDomain.KeySize)},
	)
	require.NoError(t, err)

	memCache := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { _ = memCache.Close() })

	store, err := storage.OpenBucketStore(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts := Options{
		Algorithm:                 cryptoDomain.AESGCM,
		RotationInterval:          90 * 24 * time.Hour,
		CacheTTL:                  time.Hour,
		AutoGenerate:              true,
		RestoreRateLimitPerMinute: 60,
		RestoreRateLimitBurst:     10,
	}
	for _, fn := range mutate {
		fn(&opts)
	}

	aeadManager := cryptoService.NewAEADManager()
	repo := newMemoryKeyRepository()
	uc := NewKeyUseCase(
		passthroughTxManager{},
		repo,
		cryptoService.NewKeyManager(aeadManager),
		cryptoService.NewEnvelopeCipher(aeadManager),
		cryptoService.NewPBKDF2Deriver(1000),
		keysService.NewPassphraseVerifier(),
		chain,
		memCache,
		store,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		opts,
	).(*keyUseCase)

	return &keyFixture{uc: uc, repo: repo, cache: memCache, store: store}
}
