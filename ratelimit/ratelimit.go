// Package ratelimit implements the per-key auction rate limiter
// (§3.1 RateLimiterKey, §8.1 P2): request k for a given key is
// admitted only if it arrives at least requestLimit milliseconds
// after the key's last admitted attempt.
package ratelimit

import (
	"sync"
	"time"

	"github.com/meshbridge/router-node/txtypes"
)

// Limiter is a mutex-guarded read-modify-write map from
// RateLimiterKey to last-attempt timestamp, grounded on
// security/access_control.go's AccessController.rateLimiters map —
// simplified from a sliding request-count window to the spec's
// single-last-attempt admission rule (§9 open question (a): the key
// deliberately excludes amount).
type Limiter struct {
	mu          sync.Mutex
	lastAttempt map[txtypes.RateLimiterKey]time.Time
	requestLimit time.Duration
}

// New builds a Limiter admitting at most one request per key every
// requestLimit.
func New(requestLimit time.Duration) *Limiter {
	return &Limiter{
		lastAttempt:  map[txtypes.RateLimiterKey]time.Time{},
		requestLimit: requestLimit,
	}
}

// Allow reports whether a request for key is admitted at time now,
// and if so records now as the key's new last-attempt timestamp.
// Matches P2 exactly: admits iff now - lastAttempt >= requestLimit.
func (l *Limiter) Allow(key txtypes.RateLimiterKey, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.lastAttempt[key]
	if ok && now.Sub(last) < l.requestLimit {
		return false
	}
	l.lastAttempt[key] = now
	return true
}

// Peek reports the key's last recorded attempt without updating it,
// used by diagnostics/admin endpoints.
func (l *Limiter) Peek(key txtypes.RateLimiterKey) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.lastAttempt[key]
	return t, ok
}

// Check reports whether a request for key would be admitted at time
// now, without recording it. Used where the admission gate must run
// before other checks but the window should only be consumed once the
// rest of the pipeline succeeds (§4.D step 3 vs step 14).
func (l *Limiter) Check(key txtypes.RateLimiterKey, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	last, ok := l.lastAttempt[key]
	return !ok || now.Sub(last) >= l.requestLimit
}

// Record unconditionally sets key's last-attempt timestamp to now.
func (l *Limiter) Record(key txtypes.RateLimiterKey, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastAttempt[key] = now
}
