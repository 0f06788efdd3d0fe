package job

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Refreshable is anything with a periodic refresh cycle.
type Refreshable interface {
	Refresh(ctx context.Context) error
}

// Sweepable removes expired entries; used for cache housekeeping.
type Sweepable interface {
	Sweep() int
}

// OracleRefresher keeps the reference-price table fresh on a fixed interval
// and periodically sweeps the expired entries out of the in-memory cache.
type OracleRefresher struct {
	tracer   trace.Tracer
	oracle   Refreshable
	sweeper  Sweepable
	interval time.Duration
}

func NewOracleRefresher(tracer trace.Tracer, oracle Refreshable, sweeper Sweepable, intervalSecs int) *OracleRefresher {
	return &OracleRefresher{
		tracer:   tracer,
		oracle:   oracle,
		sweeper:  sweeper,
		interval: time.Duration(intervalSecs) * time.Second,
	}
}

// Start launches the refresh loops. Blocks until ctx is cancelled.
func (r *OracleRefresher) Start(ctx context.Context) {
	log.Println("Oracle refresher starting...")

	go r.refreshLoop(ctx)
	if r.sweeper != nil {
		go r.sweepLoop(ctx)
	}

	<-ctx.Done()
	log.Println("Oracle refresher stopped")
}

func (r *OracleRefresher) refreshLoop(ctx context.Context) {
	// Run immediately on start so trade pricing has data before the first tick
	if err := r.refreshOnce(ctx); err != nil {
		log.Printf("oracle refresher initial run error: %v", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.refreshOnce(ctx); err != nil {
				log.Printf("oracle refresher error: %v", err)
			}
		}
	}
}

func (r *OracleRefresher) refreshOnce(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "job.oracle-refresh")
	defer span.End()
	return r.oracle.Refresh(ctx)
}

func (r *OracleRefresher) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.sweeper.Sweep(); removed > 0 {
				log.Printf("cache sweep removed %d expired entries", removed)
			}
		}
	}
}
