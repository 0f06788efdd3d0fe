package provider

import (
	"context"
	"sync"
	"time"
)

// Usage is the rolling one-minute call count for one credential role. The
// soft limit is advisory bookkeeping for diagnostics and key-rotation
// decisions; it never blocks a call.
type Usage struct {
	CredentialID string
	WindowStart  time.Time
	Count        int
	SoftLimit    int
}

// Exceeded reports whether the current window has passed the soft limit.
func (u Usage) Exceeded() bool {
	return u.SoftLimit > 0 && u.Count > u.SoftLimit
}

// RateLimiter enforces a hard minimum spacing between calls for one provider
// credential role, and tracks call counts in rolling one-minute windows.
// Distinct roles within one provider (holders vs transactions vs historical)
// each get their own limiter so congestion on one does not starve another.
type RateLimiter struct {
	mu           sync.Mutex
	credentialID string
	minInterval  time.Duration
	softLimit    int
	lastCall     time.Time
	windowStart  time.Time
	count        int
	now          func() time.Time
}

// NewRateLimiter creates a limiter with the given hard inter-call spacing
// and advisory per-minute soft limit.
func NewRateLimiter(credentialID string, minInterval time.Duration, softLimit int) *RateLimiter {
	return &RateLimiter{
		credentialID: credentialID,
		minInterval:  minInterval,
		softLimit:    softLimit,
		now:          time.Now,
	}
}

// Wait blocks until the minimum spacing since the previous call has elapsed,
// then records the call in the current window. Returns early if ctx ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := r.now()
		next := r.lastCall.Add(r.minInterval)
		if !now.Before(next) {
			r.lastCall = now
			r.record(now)
			r.mu.Unlock()
			return nil
		}
		wait := next.Sub(now)
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// record must hold r.mu.
func (r *RateLimiter) record(now time.Time) {
	if now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.count = 0
	}
	r.count++
}

// Usage returns a snapshot of the current window's bookkeeping.
func (r *RateLimiter) Usage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := Usage{
		CredentialID: r.credentialID,
		WindowStart:  r.windowStart,
		Count:        r.count,
		SoftLimit:    r.softLimit,
	}
	if r.now().Sub(r.windowStart) >= time.Minute {
		u.Count = 0
		u.WindowStart = time.Time{}
	}
	return u
}
