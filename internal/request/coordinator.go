// Package request provides deduplication and retry around single units of
// provider work. Concurrent callers sharing a fingerprint observe one
// in-flight call and its settled result; transient failures retry with
// exponential backoff.
package request

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/mteoong/quickscope-sub000/internal/provider"
)

// Options bound the retry envelope around one unit of work.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultOptions matches the provider HTTP timeout budget: at most three
// attempts a few seconds apart.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Multiplier:  2.0,
	}
}

// Coordinator executes units of work keyed by fingerprint. It is safe for
// concurrent use and carries no per-fingerprint state once a call settles.
type Coordinator struct {
	group singleflight.Group
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Coordinator. Zero-valued option fields fall back to defaults.
func New(opts Options) *Coordinator {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = def.MaxDelay
	}
	if opts.Multiplier <= 1 {
		opts.Multiplier = def.Multiplier
	}
	return &Coordinator{opts: opts, sleep: sleepCtx}
}

// Do runs fn under the given fingerprint. Callers that arrive while an
// identical fingerprint is in flight receive the same settled result without
// issuing a duplicate call. Transient provider errors retry with backoff up
// to MaxAttempts; permanent errors and ErrNoData propagate immediately.
func (c *Coordinator) Do(ctx context.Context, fingerprint string, fn func(context.Context) (any, error)) (any, error) {
	v, err, shared := c.group.Do(fingerprint, func() (any, error) {
		return c.retry(ctx, fingerprint, fn)
	})
	if shared && err == nil {
		log.Printf("request: coalesced duplicate call for %s", fingerprint)
	}
	return v, err
}

func (c *Coordinator) retry(ctx context.Context, fingerprint string, fn func(context.Context) (any, error)) (any, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.BaseDelay
	bo.MaxInterval = c.opts.MaxDelay
	bo.Multiplier = c.opts.Multiplier
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 1; ; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, provider.ErrNoData) || !provider.IsTransient(err) {
			return nil, err
		}
		lastErr = err
		if attempt >= c.opts.MaxAttempts {
			return nil, lastErr
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop || delay > c.opts.MaxDelay {
			delay = c.opts.MaxDelay
		}
		if hint := provider.RetryAfterHint(err); hint > 0 {
			delay = hint
			if delay > c.opts.MaxDelay {
				delay = c.opts.MaxDelay
			}
		}
		log.Printf("request: %s attempt %d/%d failed (%v), retrying in %v",
			fingerprint, attempt, c.opts.MaxAttempts, err, delay)

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
