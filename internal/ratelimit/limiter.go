package ratelimit

import (
	"context"
	"time"

	"genserver/internal/infra"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// WindowStore tracks fixed-window counters per key. Incr must be atomic per
// key: two concurrent calls may never both observe the same count.
type WindowStore interface {
	// Incr increments the counter for key, starting a fresh window when none
	// is active, and returns the post-increment count and the window reset
	// time.
	Incr(ctx context.Context, key string, window time.Duration) (count int, reset time.Time, err error)
}

// Gate admits or rejects calls per caller+resource key. It never returns an
// error to callers: a failing window store fails open with a warning so a
// degraded limiter cannot take the product down with it.
type Gate struct {
	store  WindowStore
	logger infra.Logger
}

// NewGate builds a gate over the given window store.
func NewGate(store WindowStore, logger infra.Logger) *Gate {
	return &Gate{store: store, logger: logger}
}

// Admit checks the key against limit within the window. The (limit+1)-th call
// inside an active window is denied with RetryAfter set to the time remaining
// in the window.
func (g *Gate) Admit(ctx context.Context, key string, limit int, window time.Duration) Decision {
	if limit <= 0 || window <= 0 {
		return Decision{Allowed: true}
	}
	count, reset, err := g.store.Incr(ctx, key, window)
	if err != nil {
		g.logger.Warn().Err(err).Str("key", key).Msg("ratelimit: window store unavailable, failing open")
		return Decision{Allowed: true}
	}
	if count > limit {
		retry := time.Until(reset)
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}
	}
	return Decision{Allowed: true, Remaining: limit - count}
}

// Key joins a caller id (or source IP fallback) with a resource name so that
// limits apply per caller per resource.
func Key(callerID, resource string) string {
	return callerID + ":" + resource
}
