package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mteoong/quickscope-sub000/internal/candles"
	"github.com/mteoong/quickscope-sub000/internal/domain"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGecko is the last real candle source in the fallback chain and the
// oracle's fallback price source. Market-chart responses carry raw price and
// volume point series; candles are bucketed locally.
type CoinGecko struct {
	client   *http.Client
	baseURL  string
	platform string
	tracer   trace.Tracer
	limiter  *RateLimiter
}

// NewCoinGecko creates the adapter. platform is the CoinGecko asset-platform
// id used for contract lookups (e.g. "solana"). The free tier allows ~8
// calls per minute, hence the wide spacing.
func NewCoinGecko(tracer trace.Tracer, platform string) *CoinGecko {
	return &CoinGecko{
		client:   &http.Client{Timeout: 30 * time.Second},
		baseURL:  coingeckoBaseURL,
		platform: platform,
		tracer:   tracer,
		limiter:  NewRateLimiter("coingecko", 7500*time.Millisecond, 8),
	}
}

func (p *CoinGecko) Name() string { return "coingecko" }

// FetchOHLCV fetches contract market-chart data and buckets it into candles
// of the requested timeframe. CoinGecko has no backward cursor; a non-zero
// before simply truncates the series. Day range is chosen from the
// timeframe: fine timeframes get 1 day (~5min points), coarse get 30.
func (p *CoinGecko) FetchOHLCV(ctx context.Context, address, timeframe string, before int64, limit int) ([]candles.Raw, error) {
	_, span := p.tracer.Start(ctx, "coingecko.fetch-ohlcv")
	defer span.End()

	step := domain.TimeframeDuration(timeframe)
	if step == 0 {
		return nil, fmt.Errorf("coingecko: unsupported timeframe %q", timeframe)
	}
	days := 1
	if step >= 4*time.Hour {
		days = 30
	}

	u := fmt.Sprintf("%s/coins/%s/contract/%s/market_chart?vs_currency=usd&days=%d",
		p.baseURL, p.platform, url.PathEscape(address), days)

	body, err := p.doRequest(ctx, u)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Prices       [][]float64 `json:"prices"`
		TotalVolumes [][]float64 `json:"total_volumes"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewDecodeError(p.Name(), err)
	}
	if len(raw.Prices) == 0 {
		return nil, ErrNoData
	}

	rows := bucketMarketChart(raw.Prices, raw.TotalVolumes, step)
	if len(rows) == 0 {
		return nil, NewDecodeError(p.Name(), fmt.Errorf("no usable price points"))
	}
	if before > 0 {
		cutoff := before * 1000
		for len(rows) > 0 && rows[len(rows)-1].Time >= cutoff {
			rows = rows[:len(rows)-1]
		}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	return rows, nil
}

// SimplePrices fetches USD prices for a batch of CoinGecko ids in one call.
func (p *CoinGecko) SimplePrices(ctx context.Context, ids []string) (map[string]float64, error) {
	_, span := p.tracer.Start(ctx, "coingecko.simple-prices")
	defer span.End()

	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		p.baseURL, strings.Join(ids, ","))

	body, err := p.doRequest(ctx, u)
	if err != nil {
		return nil, err
	}

	// Response shape: {"solana": {"usd": 178.42}, ...}
	var raw map[string]map[string]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewDecodeError(p.Name(), err)
	}
	if len(raw) == 0 {
		return nil, ErrNoData
	}

	out := make(map[string]float64, len(raw))
	for id, quotes := range raw {
		if usd, ok := quotes["usd"]; ok && usd > 0 {
			out[id] = usd
		}
	}
	return out, nil
}

// Usage exposes the limiter's window bookkeeping.
func (p *CoinGecko) Usage() Usage { return p.limiter.Usage() }

func (p *CoinGecko) doRequest(ctx context.Context, u string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NewTransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(p.Name(), resp, body)
	}
	return body, nil
}

type volumePoint struct {
	ts  int64
	vol float64
}

// bucketMarketChart folds raw [ts,price] points into candles of the given
// width. The point series has no native OHLC, so each bucket's bounds come
// from the points that fall inside it. Volume arrives as a separate point
// series and is joined per bucket. Points missing either coordinate are
// dropped before anything indexes into them.
func bucketMarketChart(prices, volumes [][]float64, step time.Duration) []candles.Raw {
	pts := make([][]float64, 0, len(prices))
	for _, pt := range prices {
		if len(pt) >= 2 {
			pts = append(pts, pt)
		}
	}
	if len(pts) == 0 {
		return nil
	}

	volPoints := make([]volumePoint, 0, len(volumes))
	for _, v := range volumes {
		if len(v) >= 2 {
			volPoints = append(volPoints, volumePoint{ts: int64(v[0]), vol: v[1]})
		}
	}

	// The 30-day chart delivers hourly points, so coarse timeframes bucket
	// at the hour and fold from there.
	base := step
	factor := 1
	if step >= 4*time.Hour {
		base = time.Hour
		factor = int(step / time.Hour)
	}

	sort.Slice(pts, func(i, j int) bool {
		return pts[i][0] < pts[j][0]
	})

	type bucket struct {
		open, high, low, close float64
	}
	buckets := make(map[int64]*bucket)

	for _, pt := range pts {
		price := pt[1]
		bucketTS := time.UnixMilli(int64(pt[0])).Truncate(base).UnixMilli()

		b, exists := buckets[bucketTS]
		if !exists {
			buckets[bucketTS] = &bucket{open: price, high: price, low: price, close: price}
			continue
		}
		b.high = math.Max(b.high, price)
		b.low = math.Min(b.low, price)
		b.close = price
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	rows := make([]candles.Raw, 0, len(keys))
	vols := make([]float64, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		rows = append(rows, candles.Raw{
			Time:  k,
			Open:  b.open,
			High:  b.high,
			Low:   b.low,
			Close: b.close,
		})
		vols = append(vols, closestVolume(volPoints, k+int64(base/time.Millisecond)))
	}
	rows = candles.JoinVolume(rows, vols)

	if factor > 1 {
		agg := candles.Aggregate(candles.Normalize(rows), factor)
		rows = make([]candles.Raw, 0, len(agg))
		for _, c := range agg {
			rows = append(rows, candles.Raw{
				Time:   c.Time,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			})
		}
	}
	return rows
}

func closestVolume(volumes []volumePoint, targetMs int64) float64 {
	if len(volumes) == 0 {
		return 0
	}
	closest := volumes[0]
	minDiff := int64(math.MaxInt64)
	for _, v := range volumes {
		diff := v.ts - targetMs
		if diff < 0 {
			diff = -diff
		}
		if diff < minDiff {
			minDiff = diff
			closest = v
		}
	}
	return closest.vol
}
