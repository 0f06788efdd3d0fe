package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mteoong/quickscope-sub000/internal/candles"
)

const geckoTerminalBaseURL = "https://api.geckoterminal.com/api/v2"

// GeckoTerminal fetches pool-level OHLCV and liquidity-weighted token
// prices. The API is keyless but rate limited (~30 calls/min), so the
// limiter spacing is wide.
type GeckoTerminal struct {
	client  *http.Client
	baseURL string
	network string
	tracer  trace.Tracer
	limiter *RateLimiter
}

func NewGeckoTerminal(tracer trace.Tracer, network string) *GeckoTerminal {
	return &GeckoTerminal{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: geckoTerminalBaseURL,
		network: network,
		tracer:  tracer,
		limiter: NewRateLimiter("geckoterminal", 2*time.Second, 30),
	}
}

func (p *GeckoTerminal) Name() string { return "geckoterminal" }

// FetchOHLCV resolves the token's highest-liquidity pool and returns its
// candles. before is a unix-second backward cursor (0 means now).
func (p *GeckoTerminal) FetchOHLCV(ctx context.Context, address, timeframe string, before int64, limit int) ([]candles.Raw, error) {
	ctx, span := p.tracer.Start(ctx, "geckoterminal.fetch-ohlcv")
	defer span.End()

	pool, err := p.topPool(ctx, address)
	if err != nil {
		return nil, err
	}

	tfPath, aggregate, ok := geckoTimeframe(timeframe)
	if !ok {
		return nil, fmt.Errorf("geckoterminal: unsupported timeframe %q", timeframe)
	}

	q := url.Values{}
	q.Set("aggregate", strconv.Itoa(aggregate))
	q.Set("currency", "usd")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if before > 0 {
		q.Set("before_timestamp", strconv.FormatInt(before, 10))
	}
	u := fmt.Sprintf("%s/networks/%s/pools/%s/ohlcv/%s?%s",
		p.baseURL, p.network, pool, tfPath, q.Encode())

	body, err := p.doRequest(ctx, u)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Data struct {
			Attributes struct {
				OHLCVList [][]float64 `json:"ohlcv_list"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewDecodeError(p.Name(), err)
	}
	if len(raw.Data.Attributes.OHLCVList) == 0 {
		return nil, ErrNoData
	}

	rows := make([]candles.Raw, 0, len(raw.Data.Attributes.OHLCVList))
	for _, row := range raw.Data.Attributes.OHLCVList {
		if len(row) < 6 {
			continue
		}
		rows = append(rows, candles.Raw{
			Time:   int64(row[0]) * 1000,
			Open:   row[1],
			High:   row[2],
			Low:    row[3],
			Close:  row[4],
			Volume: row[5],
		})
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	return rows, nil
}

// TokenPriceUSD returns the token's USD price from its highest-liquidity
// pool. Used by the price oracle for reference assets.
func (p *GeckoTerminal) TokenPriceUSD(ctx context.Context, address string) (float64, error) {
	ctx, span := p.tracer.Start(ctx, "geckoterminal.token-price")
	defer span.End()

	pools, err := p.tokenPools(ctx, address)
	if err != nil {
		return 0, err
	}

	best := pools[0]
	for _, pl := range pools[1:] {
		if pl.reserveUSD > best.reserveUSD {
			best = pl
		}
	}
	if best.basePriceUSD <= 0 {
		return 0, ErrNoData
	}
	return best.basePriceUSD, nil
}

type poolInfo struct {
	address      string
	reserveUSD   float64
	basePriceUSD float64
}

func (p *GeckoTerminal) topPool(ctx context.Context, address string) (string, error) {
	pools, err := p.tokenPools(ctx, address)
	if err != nil {
		return "", err
	}
	best := pools[0]
	for _, pl := range pools[1:] {
		if pl.reserveUSD > best.reserveUSD {
			best = pl
		}
	}
	return best.address, nil
}

func (p *GeckoTerminal) tokenPools(ctx context.Context, address string) ([]poolInfo, error) {
	u := fmt.Sprintf("%s/networks/%s/tokens/%s/pools?page=1",
		p.baseURL, p.network, url.PathEscape(address))

	body, err := p.doRequest(ctx, u)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Data []struct {
			Attributes struct {
				Address           string `json:"address"`
				ReserveInUSD      string `json:"reserve_in_usd"`
				BaseTokenPriceUSD string `json:"base_token_price_usd"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewDecodeError(p.Name(), err)
	}
	if len(raw.Data) == 0 {
		return nil, ErrNoData
	}

	pools := make([]poolInfo, 0, len(raw.Data))
	for _, d := range raw.Data {
		reserve, _ := strconv.ParseFloat(d.Attributes.ReserveInUSD, 64)
		price, _ := strconv.ParseFloat(d.Attributes.BaseTokenPriceUSD, 64)
		pools = append(pools, poolInfo{
			address:      d.Attributes.Address,
			reserveUSD:   reserve,
			basePriceUSD: price,
		})
	}
	return pools, nil
}

// Usage exposes the limiter's window bookkeeping.
func (p *GeckoTerminal) Usage() Usage { return p.limiter.Usage() }

func (p *GeckoTerminal) doRequest(ctx context.Context, u string) ([]byte, error) {
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

func geckoTimeframe(tf string) (path string, aggregate int, ok bool) {
	switch tf {
	case "1m":
		return "minute", 1, true
	case "5m":
		return "minute", 5, true
	case "15m":
		return "minute", 15, true
	case "1h":
		return "hour", 1, true
	case "4h":
		return "hour", 4, true
	case "1d":
		return "day", 1, true
	default:
		return "", 0, false
	}
}
