package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/allisson/e2ee/internal/cache"
	transactionsDomain "github.com/allisson/e2ee/internal/transactions/domain"
)

// CacheKey returns the cache key of a transaction snapshot.
func CacheKey(txID string) string {
	return "txn:" + txID
}

type cachedTransaction struct {
	ID          string         `json:"id"`
	UserID      int64          `json:"user_id"`
	Operation   string         `json:"operation,omitempty"`
	Status      string         `json:"status"`
	E2EEEnabled bool           `json:"e2ee_enabled"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// snapshotCache holds transaction snapshots. Failures degrade to a miss and are logged at warn.
type snapshotCache struct {
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func (c *snapshotCache) get(ctx context.Context, txID string) *transactionsDomain.Transaction {
	data, ok, err := c.cache.Get(ctx, CacheKey(txID))
	if err != nil {
		c.warn("failed to read transaction cache", txID, err)
		return nil
	}
	if !ok {
		return nil
	}

	var snapshot cachedTransaction
	if err := json.Unmarshal(data, &snapshot); err != nil {
		c.warn("failed to decode cached transaction", txID, err)
		return nil
	}

	return &transactionsDomain.Transaction{
		ID:          snapshot.ID,
		UserID:      snapshot.UserID,
		Operation:   transactionsDomain.Operation(snapshot.Operation),
		Status:      transactionsDomain.Status(snapshot.Status),
		E2EEEnabled: snapshot.E2EEEnabled,
		Metadata:    snapshot.Metadata,
		IPAddress:   snapshot.IPAddress,
		UserAgent:   snapshot.UserAgent,
		CreatedAt:   snapshot.CreatedAt,
		UpdatedAt:   snapshot.UpdatedAt,
		CompletedAt: snapshot.CompletedAt,
	}
}

func (c *snapshotCache) put(ctx context.Context, tx *transactionsDomain.Transaction) {
	if c.ttl <= 0 {
		return
	}

	data, err := json.Marshal(cachedTransaction{
		ID:          tx.ID,
		UserID:      tx.UserID,
		Operation:   string(tx.Operation),
		Status:      string(tx.Status),
		E2EEEnabled: tx.E2EEEnabled,
		Metadata:    tx.Metadata,
		IPAddress:   tx.IPAddress,
		UserAgent:   tx.UserAgent,
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
		CompletedAt: tx.CompletedAt,
	})
	if err != nil {
		c.warn("failed to encode transaction snapshot", tx.ID, err)
		return
	}

	if err := c.cache.Put(ctx, CacheKey(tx.ID), data, c.ttl); err != nil {
		c.warn("failed to write transaction cache", tx.ID, err)
	}
}

func (c *snapshotCache) forget(ctx context.Context, txID string) {
	if err := c.cache.Forget(ctx, CacheKey(txID)); err != nil {
		c.warn("failed to evict transaction cache", txID, err)
	}
}

func (c *snapshotCache) warn(msg, txID string, err error) {
	c.logger.Warn(msg, slog.String("transaction_id", txID), slog.Any("error", err))
}
