package job

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type refreshStub struct {
	calls int64
}

func (s *refreshStub) Refresh(context.Context) error {
	atomic.AddInt64(&s.calls, 1)
	return nil
}

func TestOracleRefresherRunsImmediatelyAndOnTicks(t *testing.T) {
	stub := &refreshStub{}
	r := NewOracleRefresher(trace.NewNoopTracerProvider().Tracer("job-test"), stub, nil, 1)
	r.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	time.Sleep(70 * time.Millisecond)
	cancel()
	<-done

	calls := atomic.LoadInt64(&stub.calls)
	if calls < 2 {
		t.Fatalf("expected immediate run plus ticks, got %d calls", calls)
	}
}

func TestOracleRefresherStopsOnCancel(t *testing.T) {
	stub := &refreshStub{}
	r := NewOracleRefresher(trace.NewNoopTracerProvider().Tracer("job-test"), stub, nil, 3600)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop on context cancel")
	}
}
