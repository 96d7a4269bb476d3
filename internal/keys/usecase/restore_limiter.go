package usecase

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	restoreLimiterIdle  = time.Hour
	restoreLimiterSweep = 5 * time.Minute
)

// restoreLimiter holds one token bucket per backup path.
type restoreLimiter struct {
	limiters  sync.Map // map[string]*restoreLimiterEntry
	limit     rate.Limit
	burst     int
	now       func() time.Time
	mu        sync.Mutex
	lastSweep time.Time
}

type restoreLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

// newRestoreLimiter allows perMinute attempts per backup path with the given burst.
func newRestoreLimiter(perMinute float64, burst int) *restoreLimiter {
	if perMinute <= 0 {
		perMinute = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &restoreLimiter{
		limit: rate.Limit(perMinute / 60),
		burst: burst,
		now:   time.Now,
	}
}

func (r *restoreLimiter) allow(path string) bool {
	now := r.now()
	r.sweep(now)

	val, _ := r.limiters.LoadOrStore(path, &restoreLimiterEntry{
		limiter: rate.NewLimiter(r.limit, r.burst),
	})
	entry := val.(*restoreLimiterEntry)

	entry.mu.Lock()
	entry.lastAccess = now
	entry.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// sweep drops limiters idle for an hour, at most every five minutes.
func (r *restoreLimiter) sweep(now time.Time) {
	r.mu.Lock()
	if now.Sub(r.lastSweep) < restoreLimiterSweep {
		r.mu.Unlock()
		return
	}
	r.lastSweep = now
	r.mu.Unlock()

	threshold := now.Add(-restoreLimiterIdle)
	r.limiters.Range(func(key, value any) bool {
		entry := value.(*restoreLimiterEntry)
		entry.mu.Lock()
		stale := entry.lastAccess.Before(threshold)
		entry.mu.Unlock()

		if stale {
			r.limiters.Delete(key)
		}
		return true
	})
}
