// Package cache provides the short-lived key/value store used for key bundles
// and transaction snapshots.
package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	// DriverMemory selects the in-process cache.
	DriverMemory = "memory"
	// DriverRedis selects the Redis cache.
	DriverRedis = "redis"
)

// Cache stores opaque values with a TTL. A miss is reported as found=false with a nil error.
type Cache interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Forget(ctx context.Context, key string) error
	Close() error
}

// New builds the cache selected by driver.
func New(driver, redisURL string) (Cache, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryCache(time.Minute), nil
	case DriverRedis:
		return NewRedisCache(redisURL)
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", driver)
	}
}
