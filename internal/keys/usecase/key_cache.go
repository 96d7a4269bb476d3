package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/e2ee/internal/cache"
	cryptoDomain "github.com/allisson/e2ee/internal/crypto/domain"
	cryptoService "github.com/allisson/e2ee/internal/crypto/service"
	keysDomain "github.com/allisson/e2ee/internal/keys/domain"
)

// CacheKey returns the cache key of a user's bundle.
func CacheKey(userID int64) string {
	return "keys:user:" + strconv.FormatInt(userID, 10)
}

type cachedBundle struct {
	KeyID     uuid.UUID              `json:"key_id"`
	UserID    int64                  `json:"user_id"`
	Algorithm cryptoDomain.Algorithm `json:"algorithm"`
	MasterKey []byte                 `json:"master_key"`
	UserKey   []byte                 `json:"user_key"`
	ExpiresAt time.Time              `json:"expires_at"`
	Protected bool                   `json:"protected"`
}

// sealedBundle is what reaches the cache backend: the bundle encrypted under a
// system master key with the cache key as AAD.
type sealedBundle struct {
	MasterKeyID string                 `json:"master_key_id"`
	Algorithm   cryptoDomain.Algorithm `json:"algorithm"`
	Envelope    *cryptoDomain.Envelope `json:"envelope"`
}

// bundleCache stores key bundles. Every failure degrades to a miss and is logged at warn.
type bundleCache struct {
	cache          cache.Cache
	cipher         cryptoService.Cipher
	masterKeyChain *cryptoDomain.MasterKeyChain
	algorithm      cryptoDomain.Algorithm
	ttl            time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

func (c *bundleCache) get(ctx context.Context, userID int64) *keysDomain.KeyBundle {
	key := CacheKey(userID)

	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.warn("failed to read key cache", userID, err)
		return nil
	}
	if !ok {
		return nil
	}

	var sealed sealedBundle
	if err := json.Unmarshal(data, &sealed); err != nil {
		c.warn("failed to decode cached key bundle", userID, err)
		return nil
	}

	masterKey, found := c.masterKeyChain.Get(sealed.MasterKeyID)
	if !found {
		return nil
	}

	plaintext, err := c.cipher.Decrypt(masterKey.Key, sealed.Algorithm, sealed.Envelope, []byte(key))
	if err != nil {
		c.warn("failed to open cached key bundle", userID, err)
		return nil
	}
	defer cryptoDomain.Zero(plaintext)

	var cached cachedBundle
	if err := json.Unmarshal(plaintext, &cached); err != nil {
		c.warn("failed to decode cached key bundle", userID, err)
		return nil
	}

	if cached.UserID != userID || !c.now().Before(cached.ExpiresAt) {
		return nil
	}

	return &keysDomain.KeyBundle{
		KeyID:     cached.KeyID,
		UserID:    cached.UserID,
		Algorithm: cached.Algorithm,
		MasterKey: cached.MasterKey,
		UserKey:   cached.UserKey,
		ExpiresAt: cached.ExpiresAt,
		Protected: cached.Protected,
	}
}

// put caches bundle until the configured TTL or the key expiry, whichever comes first.
func (c *bundleCache) put(ctx context.Context, bundle *keysDomain.KeyBundle) {
	if bundle.Locked {
		return
	}

	ttl := min(c.ttl, bundle.ExpiresAt.Sub(c.now()))
	if ttl <= 0 {
		return
	}

	masterKey, err := c.masterKeyChain.Active()
	if err != nil {
		c.warn("failed to seal key bundle", bundle.UserID, err)
		return
	}

	plaintext, err := json.Marshal(cachedBundle{
		KeyID:     bundle.KeyID,
		UserID:    bundle.UserID,
		Algorithm: bundle.Algorithm,
		MasterKey: bundle.MasterKey,
		UserKey:   bundle.UserKey,
		ExpiresAt: bundle.ExpiresAt,
		Protected: bundle.Protected,
	})
	if err != nil {
		c.warn("failed to encode key bundle", bundle.UserID, err)
		return
	}
	defer cryptoDomain.Zero(plaintext)

	key := CacheKey(bundle.UserID)
	envelope, err := c.cipher.Encrypt(masterKey.Key, c.algorithm, plaintext, []byte(key))
	if err != nil {
		c.warn("failed to seal key bundle", bundle.UserID, err)
		return
	}

	data, err := json.Marshal(sealedBundle{
		MasterKeyID: masterKey.ID,
		Algorithm:   c.algorithm,
		Envelope:    envelope,
	})
	if err != nil {
		c.warn("failed to encode sealed key bundle", bundle.UserID, err)
		return
	}

	if err := c.cache.Put(ctx, key, data, ttl); err != nil {
		c.warn("failed to write key cache", bundle.UserID, err)
	}
}

func (c *bundleCache) forget(ctx context.Context, userID int64) {
	if err := c.cache.Forget(ctx, CacheKey(userID)); err != nil {
		c.warn("failed to invalidate key cache", userID, err)
	}
}

func (c *bundleCache) warn(msg string, userID int64, err error) {
	c.logger.Warn(msg, slog.Int64("user_id", userID), slog.Any("error", err))
}
