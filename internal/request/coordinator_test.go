package request

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mteoong/quickscope-sub000/internal/provider"
)

func noSleep(c *Coordinator) []time.Duration {
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return delays
}

func TestDoDeduplicatesConcurrentCalls(t *testing.T) {
	c := New(Options{})

	var calls int64
	release := make(chan struct{})
	fn := func(context.Context) (any, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return "result", nil
	}

	const n = 10
	results := make([]any, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Do(context.Background(), "fp|token|1h", fn)
		}(i)
	}

	// Let every goroutine reach the coordinator before settling the call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&calls), "identical fingerprints must share one call")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "result", results[i])
	}
}

func TestDoFreshStateAfterSettle(t *testing.T) {
	c := New(Options{})

	var calls int64
	fn := func(context.Context) (any, error) {
		return atomic.AddInt64(&calls, 1), nil
	}

	first, err := c.Do(context.Background(), "fp", fn)
	require.NoError(t, err)
	second, err := c.Do(context.Background(), "fp", fn)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second, "settled fingerprint must start fresh")
}

func TestDoRetriesTransientErrors(t *testing.T) {
	c := New(Options{MaxAttempts: 3})
	noSleep(c)

	calls := 0
	fn := func(context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, &provider.Error{Provider: "birdeye", Status: 503, Transient: true}
		}
		return "ok", nil
	}

	res, err := c.Do(context.Background(), "fp", fn)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	c := New(Options{MaxAttempts: 5})
	noSleep(c)

	calls := 0
	permanent := &provider.Error{Provider: "birdeye", Status: 404}
	fn := func(context.Context) (any, error) {
		calls++
		return nil, permanent
	}

	_, err := c.Do(context.Background(), "fp", fn)
	assert.ErrorIs(t, err, error(permanent))
	assert.Equal(t, 1, calls, "permanent errors must not retry")
}

func TestDoDoesNotRetryNoData(t *testing.T) {
	c := New(Options{MaxAttempts: 5})
	noSleep(c)

	calls := 0
	fn := func(context.Context) (any, error) {
		calls++
		return nil, provider.ErrNoData
	}

	_, err := c.Do(context.Background(), "fp", fn)
	assert.ErrorIs(t, err, provider.ErrNoData)
	assert.Equal(t, 1, calls)
}

func TestRetryDelaysMonotoneAndBounded(t *testing.T) {
	c := New(Options{
		MaxAttempts: 6,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Multiplier:  2.0,
	})

	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	fn := func(context.Context) (any, error) {
		return nil, &provider.Error{Provider: "gecko", Status: 429, Transient: true}
	}
	_, err := c.Do(context.Background(), "fp", fn)
	require.Error(t, err)

	require.Len(t, delays, 5)
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1], "delays must be non-decreasing")
	}
	for _, d := range delays {
		assert.LessOrEqual(t, d, 500*time.Millisecond, "delays must not exceed MaxDelay")
	}
}

func TestRetryHonorsProviderHint(t *testing.T) {
	c := New(Options{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second})

	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	hinted := &provider.Error{Provider: "birdeye", Status: 429, Transient: true, RetryAfter: 3 * time.Second}
	fn := func(context.Context) (any, error) { return nil, hinted }

	_, err := c.Do(context.Background(), "fp", fn)
	require.Error(t, err)
	require.Len(t, delays, 1)
	assert.Equal(t, 3*time.Second, delays[0], "provider retry hint overrides computed backoff")
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	c := New(Options{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	fn := func(context.Context) (any, error) {
		cancel()
		return nil, &provider.Error{Provider: "gecko", Status: 503, Transient: true}
	}

	_, err := c.Do(ctx, "fp", fn)
	assert.True(t, errors.Is(err, context.Canceled))
}
