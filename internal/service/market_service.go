// Package service orchestrates cached, rate-limited, fallback-chained access
// to the provider adapters. Provider failures never escape this layer for
// candle requests: exhaustion yields deterministic synthetic data, flagged.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mteoong/quickscope-sub000/internal/cache"
	"github.com/mteoong/quickscope-sub000/internal/candles"
	"github.com/mteoong/quickscope-sub000/internal/domain"
)

const (
	// Both real and synthetic price data share one short TTL: long enough to
	// absorb a burst of chart requests, short enough to retry real providers
	// soon after an outage.
	defaultResultTTL = 45 * time.Second

	defaultLimit = 500
	maxLimit     = 1000

	syntheticSource = "synthetic"
)

// CandleSource is one provider in the OHLCV fallback chain.
type CandleSource interface {
	Name() string
	FetchOHLCV(ctx context.Context, address, timeframe string, before int64, limit int) ([]candles.Raw, error)
}

// TokenDataSource serves the non-candle token endpoints (Birdeye).
type TokenDataSource interface {
	FetchTrending(ctx context.Context, limit int) ([]domain.TrendingToken, error)
	FetchTokenSecurity(ctx context.Context, address string) (*domain.TokenSecurity, error)
	FetchTopHolders(ctx context.Context, address string, limit int) ([]domain.TokenHolder, error)
	FetchRecentTrades(ctx context.Context, address string, limit int) ([]domain.TradeEvent, error)
}

// Coordinator deduplicates and retries units of provider work.
type Coordinator interface {
	Do(ctx context.Context, fingerprint string, fn func(context.Context) (any, error)) (any, error)
}

// TrendingResult is the trending list plus its degradation flag.
type TrendingResult struct {
	Tokens      []domain.TrendingToken `json:"tokens"`
	IsSynthetic bool                   `json:"is_synthetic"`
	Source      string                 `json:"source"`
}

// MarketData is the fallback orchestrator.
type MarketData struct {
	tracer  trace.Tracer
	store   cache.Store
	coord   Coordinator
	sources []CandleSource
	tokens  TokenDataSource
	ttl     time.Duration
	now     func() time.Time
}

// NewMarketData wires the orchestrator. sources is the provider priority
// order for candle requests; the synthetic generator is the implicit final
// entry and is not listed.
func NewMarketData(tracer trace.Tracer, store cache.Store, coord Coordinator, sources []CandleSource, tokens TokenDataSource, resultTTL time.Duration) *MarketData {
	if resultTTL <= 0 {
		resultTTL = defaultResultTTL
	}
	return &MarketData{
		tracer:  tracer,
		store:   store,
		coord:   coord,
		sources: sources,
		tokens:  tokens,
		ttl:     resultTTL,
		now:     time.Now,
	}
}

// GetPriceData returns normalized candles for a token, trying each provider
// in priority order and synthesizing a flagged placeholder series when all
// of them are exhausted. before is a unix-second backward cursor; limit caps
// rows at the provider-side maximum.
func (s *MarketData) GetPriceData(ctx context.Context, address, chain, timeframe string, before int64, limit int) (*domain.PriceData, error) {
	ctx, span := s.tracer.Start(ctx, "market-data.get-price-data")
	defer span.End()
	span.SetAttributes(attribute.String("token", address), attribute.String("timeframe", timeframe))

	if !domain.IsSupportedTimeframe(timeframe) {
		return nil, fmt.Errorf("unsupported timeframe: %s", timeframe)
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	fp := fmt.Sprintf("pricedata|%s|%s|%s|%d|%d", chain, address, timeframe, before, limit)
	if cached, ok := s.store.Get(ctx, fp); ok {
		var pd domain.PriceData
		if err := json.Unmarshal(cached, &pd); err == nil {
			return &pd, nil
		}
		s.store.Delete(ctx, fp)
	}

	var reasons []string
	for _, src := range s.sources {
		v, err := s.coord.Do(ctx, src.Name()+"|"+fp, func(ctx context.Context) (any, error) {
			return src.FetchOHLCV(ctx, address, timeframe, before, limit)
		})
		if err != nil {
			// log-but-continue: one dead provider never fails the request
			log.Printf("market-data: %s failed for %s/%s: %v", src.Name(), address, timeframe, err)
			reasons = append(reasons, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}

		rows, ok := v.([]candles.Raw)
		if !ok || len(rows) == 0 {
			reasons = append(reasons, src.Name()+": no data")
			continue
		}

		pd := &domain.PriceData{
			Candles:    candles.Normalize(rows),
			HasOHLC:    true,
			Source:     src.Name(),
			Symbol:     address,
			LastUpdate: s.now().Unix(),
		}
		s.cacheResult(ctx, fp, pd)
		return pd, nil
	}

	// Availability over accuracy: never answer "no data" when a plausible
	// series can be generated. The flag tells consumers it is simulated.
	pd := &domain.PriceData{
		Candles:        candles.Synthesize(address, timeframe, limit, s.now()),
		HasOHLC:        false,
		IsSynthetic:    true,
		Source:         syntheticSource,
		Symbol:         address,
		FallbackReason: strings.Join(reasons, "; "),
		LastUpdate:     s.now().Unix(),
	}
	if pd.FallbackReason == "" {
		pd.FallbackReason = "no providers configured"
	}
	s.cacheResult(ctx, fp, pd)
	return pd, nil
}

// GetTrending returns the trending token list, degrading to a flagged
// placeholder list when the provider is exhausted.
func (s *MarketData) GetTrending(ctx context.Context, limit int) (*TrendingResult, error) {
	ctx, span := s.tracer.Start(ctx, "market-data.get-trending")
	defer span.End()

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	fp := fmt.Sprintf("trending|%d", limit)
	if cached, ok := s.store.Get(ctx, fp); ok {
		var tr TrendingResult
		if err := json.Unmarshal(cached, &tr); err == nil {
			return &tr, nil
		}
		s.store.Delete(ctx, fp)
	}

	v, err := s.coord.Do(ctx, fp, func(ctx context.Context) (any, error) {
		return s.tokens.FetchTrending(ctx, limit)
	})

	var tr *TrendingResult
	if err != nil {
		log.Printf("market-data: trending fetch failed: %v", err)
		tr = &TrendingResult{
			Tokens:      candles.SynthesizeTrending(limit, s.now()),
			IsSynthetic: true,
			Source:      syntheticSource,
		}
	} else {
		tokens, _ := v.([]domain.TrendingToken)
		tr = &TrendingResult{Tokens: tokens, Source: "birdeye"}
	}

	if data, err := json.Marshal(tr); err == nil {
		s.store.Set(ctx, fp, data, s.ttl)
	}
	return tr, nil
}

// GetTokenSecurity returns the security scan for a token. No synthetic
// fallback exists for security data; provider exhaustion surfaces as an
// error.
func (s *MarketData) GetTokenSecurity(ctx context.Context, address string) (*domain.TokenSecurity, error) {
	ctx, span := s.tracer.Start(ctx, "market-data.get-token-security")
	defer span.End()

	fp := "security|" + address
	if cached, ok := s.store.Get(ctx, fp); ok {
		var sec domain.TokenSecurity
		if err := json.Unmarshal(cached, &sec); err == nil {
			return &sec, nil
		}
		s.store.Delete(ctx, fp)
	}

	v, err := s.coord.Do(ctx, fp, func(ctx context.Context) (any, error) {
		return s.tokens.FetchTokenSecurity(ctx, address)
	})
	if err != nil {
		return nil, fmt.Errorf("token security for %s: %w", address, err)
	}
	sec, _ := v.(*domain.TokenSecurity)

	if data, err := json.Marshal(sec); err == nil {
		s.store.Set(ctx, fp, data, s.ttl)
	}
	return sec, nil
}

// GetTopHolders returns the token's largest accounts.
func (s *MarketData) GetTopHolders(ctx context.Context, address string, limit int) ([]domain.TokenHolder, error) {
	ctx, span := s.tracer.Start(ctx, "market-data.get-top-holders")
	defer span.End()

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	fp := fmt.Sprintf("holders|%s|%d", address, limit)
	if cached, ok := s.store.Get(ctx, fp); ok {
		var holders []domain.TokenHolder
		if err := json.Unmarshal(cached, &holders); err == nil {
			return holders, nil
		}
		s.store.Delete(ctx, fp)
	}

	v, err := s.coord.Do(ctx, fp, func(ctx context.Context) (any, error) {
		return s.tokens.FetchTopHolders(ctx, address, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("holders for %s: %w", address, err)
	}
	holders, _ := v.([]domain.TokenHolder)

	if data, err := json.Marshal(holders); err == nil {
		s.store.Set(ctx, fp, data, s.ttl)
	}
	return holders, nil
}

// GetRecentTrades returns recent swaps for a token, used to seed the trade
// feed before the stream delivers live events.
func (s *MarketData) GetRecentTrades(ctx context.Context, address string, limit int) ([]domain.TradeEvent, error) {
	ctx, span := s.tracer.Start(ctx, "market-data.get-recent-trades")
	defer span.End()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	fp := fmt.Sprintf("trades|%s|%d", address, limit)
	if cached, ok := s.store.Get(ctx, fp); ok {
		var events []domain.TradeEvent
		if err := json.Unmarshal(cached, &events); err == nil {
			return events, nil
		}
		s.store.Delete(ctx, fp)
	}

	v, err := s.coord.Do(ctx, fp, func(ctx context.Context) (any, error) {
		return s.tokens.FetchRecentTrades(ctx, address, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("recent trades for %s: %w", address, err)
	}
	events, _ := v.([]domain.TradeEvent)

	if data, err := json.Marshal(events); err == nil {
		s.store.Set(ctx, fp, data, s.ttl)
	}
	return events, nil
}

func (s *MarketData) cacheResult(ctx context.Context, fp string, pd *domain.PriceData) {
	data, err := json.Marshal(pd)
	if err != nil {
		return
	}
	s.store.Set(ctx, fp, data, s.ttl)
}
