package lookup

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a token-bucket limiter shared by the lookup
// providers. A 429 from any provider halves the rate; each clean round
// recovers 20%, bounded by the configured ceiling on one side and a
// sixteenth of it on the other.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	ceiling   rate.Limit
	floor     rate.Limit
	throttled bool // a 429 occurred since the last Recover call
}

// NewAdaptiveLimiter creates a limiter allowing perSecond requests at
// full rate. Non-positive values disable limiting.
func NewAdaptiveLimiter(perSecond float64) *AdaptiveLimiter {
	lim := rate.Limit(perSecond)
	if perSecond <= 0 {
		lim = rate.Inf
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(lim, burst),
		ceiling: lim,
		floor:   lim / 16,
	}
}

// Wait blocks until a token is available or ctx expires.
func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Throttle halves the current rate in response to a 429 and marks the
// window dirty so the next Recover call is a no-op.
func (l *AdaptiveLimiter) Throttle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.throttled = true
	if l.ceiling == rate.Inf {
		return
	}
	cur := l.limiter.Limit()
	next := cur / 2
	if next < l.floor {
		next = l.floor
	}
	if next == cur {
		return
	}
	l.limiter.SetLimit(next)
	zap.L().Warn("lookup: provider rate limited, throttling",
		zap.Float64("from_per_sec", float64(cur)),
		zap.Float64("to_per_sec", float64(next)),
	)
}

// Recover raises the rate 20% up to the configured ceiling. Called once
// per round; a round containing any 429 clears the dirty mark instead of
// recovering.
func (l *AdaptiveLimiter) Recover() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.throttled {
		l.throttled = false
		return
	}
	if l.ceiling == rate.Inf {
		return
	}
	cur := l.limiter.Limit()
	if cur >= l.ceiling {
		return
	}
	next := cur * 12 / 10
	if next > l.ceiling {
		next = l.ceiling
	}
	l.limiter.SetLimit(next)
}

// Rate returns the current requests-per-second limit.
func (l *AdaptiveLimiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(l.limiter.Limit())
}
