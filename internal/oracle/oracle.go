// Package oracle maintains a background-refreshed table of USD reference
// prices for the small fixed set of quote assets trades are denominated in.
package oracle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mteoong/quickscope-sub000/internal/domain"
)

// DefaultSOLPrice is the hardcoded fallback used to value trades when no
// fresh oracle price exists for the base asset.
const DefaultSOLPrice = 150.0

// PoolPriceSource resolves a token's USD price from its highest-liquidity
// trading pair. Primary refresh path.
type PoolPriceSource interface {
	TokenPriceUSD(ctx context.Context, address string) (float64, error)
}

// BatchPriceSource fetches USD prices for a batch of provider ids in one
// call. Fallback refresh path.
type BatchPriceSource interface {
	SimplePrices(ctx context.Context, ids []string) (map[string]float64, error)
}

type refPrice struct {
	usd     float64
	updated time.Time
}

// Cache holds the reference-price table. Readers treat entries older than
// the TTL as absent.
type Cache struct {
	mu     sync.RWMutex
	prices map[string]refPrice

	tracer trace.Tracer
	pools  PoolPriceSource
	batch  BatchPriceSource
	assets []domain.ReferenceAsset
	ttl    time.Duration
	now    func() time.Time
}

// New creates an oracle cache over the fixed reference-asset set. Either
// source may be nil; Refresh uses what it has.
func New(tracer trace.Tracer, pools PoolPriceSource, batch BatchPriceSource, ttl time.Duration) *Cache {
	return &Cache{
		prices: make(map[string]refPrice),
		tracer: tracer,
		pools:  pools,
		batch:  batch,
		assets: domain.ReferenceAssets,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Refresh updates every reference asset's USD price. The pool source is
// tried per asset first (liquidity-weighted); assets it could not price are
// filled from one batch call. Partial refreshes are fine: stale entries
// simply age out.
func (c *Cache) Refresh(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "oracle.refresh")
	defer span.End()

	remaining := make([]domain.ReferenceAsset, 0, len(c.assets))
	updated := 0

	for _, asset := range c.assets {
		if c.pools == nil {
			remaining = append(remaining, asset)
			continue
		}
		price, err := c.pools.TokenPriceUSD(ctx, asset.Mint)
		if err != nil || price <= 0 {
			remaining = append(remaining, asset)
			continue
		}
		c.store(asset.Mint, price)
		updated++
	}

	if len(remaining) > 0 && c.batch != nil {
		ids := make([]string, 0, len(remaining))
		for _, a := range remaining {
			ids = append(ids, a.CoinGeckoID)
		}
		prices, err := c.batch.SimplePrices(ctx, ids)
		if err != nil {
			if updated == 0 {
				return fmt.Errorf("oracle refresh: %w", err)
			}
			log.Printf("oracle: batch fallback failed for %d assets: %v", len(remaining), err)
		}
		for _, a := range remaining {
			if usd, ok := prices[a.CoinGeckoID]; ok && usd > 0 {
				c.store(a.Mint, usd)
				updated++
			}
		}
	}

	log.Printf("oracle: refreshed %d/%d reference prices", updated, len(c.assets))
	return nil
}

func (c *Cache) store(mint string, usd float64) {
	c.mu.Lock()
	c.prices[mint] = refPrice{usd: usd, updated: c.now()}
	c.mu.Unlock()
}

// PriceOf returns the USD price for a reference asset mint. Stale entries
// (age > TTL) report absent.
func (c *Cache) PriceOf(mint string) (float64, bool) {
	c.mu.RLock()
	p, ok := c.prices[mint]
	c.mu.RUnlock()

	if !ok || c.now().Sub(p.updated) > c.ttl {
		return 0, false
	}
	return p.usd, true
}

// USDValue prices an amount of a reference asset. Stables value at par;
// the base asset falls back to DefaultSOLPrice when the oracle is stale;
// unknown assets with no fresh price value at zero.
func (c *Cache) USDValue(mint string, amount float64) float64 {
	if domain.IsStableMint(mint) {
		return amount
	}
	if usd, ok := c.PriceOf(mint); ok {
		return amount * usd
	}
	if mint == domain.BaseAssetMint {
		return amount * DefaultSOLPrice
	}
	return 0
}

// SwapPrice returns the price of one unit of fromMint denominated in toMint.
// Stable pairs use the direct ratio and the base asset pivots through its
// own USD price before falling back to pricing both sides independently.
func (c *Cache) SwapPrice(fromMint, toMint string) (float64, bool) {
	if fromMint == toMint {
		return 1, true
	}
	if domain.IsStableMint(fromMint) && domain.IsStableMint(toMint) {
		return 1, true
	}

	fromUSD, fromOK := c.sideUSD(fromMint)
	toUSD, toOK := c.sideUSD(toMint)
	if !fromOK || !toOK || toUSD == 0 {
		return 0, false
	}
	return fromUSD / toUSD, true
}

func (c *Cache) sideUSD(mint string) (float64, bool) {
	if domain.IsStableMint(mint) {
		return 1, true
	}
	if usd, ok := c.PriceOf(mint); ok {
		return usd, true
	}
	if mint == domain.BaseAssetMint {
		return DefaultSOLPrice, true
	}
	return 0, false
}
