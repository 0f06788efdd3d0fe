package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mteoong/quickscope-sub000/internal/candles"
	"github.com/mteoong/quickscope-sub000/internal/domain"
)

const birdeyeBaseURL = "https://public-api.birdeye.so"

// Birdeye fetches OHLCV history, token security, holder lists, recent trades
// and the trending list. Each endpoint family runs under its own credential
// role limiter so congestion on one does not starve the others.
type Birdeye struct {
	client  *http.Client
	baseURL string
	apiKey  string
	chain   string
	tracer  trace.Tracer

	limHistory  *RateLimiter
	limSecurity *RateLimiter
	limHolders  *RateLimiter
	limTrades   *RateLimiter
	limTrending *RateLimiter
}

// NewBirdeye creates the adapter with per-role rate limiting. Spacing is a
// few hundred milliseconds per role; the per-minute soft limits are advisory.
func NewBirdeye(tracer trace.Tracer, apiKey, chain string) *Birdeye {
	return &Birdeye{
		client:      &http.Client{Timeout: 15 * time.Second},
		baseURL:     birdeyeBaseURL,
		apiKey:      apiKey,
		chain:       chain,
		tracer:      tracer,
		limHistory:  NewRateLimiter("birdeye:historical", 300*time.Millisecond, 100),
		limSecurity: NewRateLimiter("birdeye:security", 500*time.Millisecond, 60),
		limHolders:  NewRateLimiter("birdeye:holders", 500*time.Millisecond, 60),
		limTrades:   NewRateLimiter("birdeye:transactions", 300*time.Millisecond, 100),
		limTrending: NewRateLimiter("birdeye:trending", 1000*time.Millisecond, 30),
	}
}

// Name identifies the adapter in fallback logs and fingerprints.
func (p *Birdeye) Name() string { return "birdeye" }

// FetchOHLCV returns raw candles for a token address. before is a
// unix-second backward-pagination cursor (0 means now); limit caps rows.
func (p *Birdeye) FetchOHLCV(ctx context.Context, address, timeframe string, before int64, limit int) ([]candles.Raw, error) {
	_, span := p.tracer.Start(ctx, "birdeye.fetch-ohlcv")
	defer span.End()

	tfType, ok := birdeyeTimeframe(timeframe)
	if !ok {
		return nil, fmt.Errorf("birdeye: unsupported timeframe %q", timeframe)
	}

	end := before
	if end <= 0 {
		end = time.Now().Unix()
	}
	step := int64(domain.TimeframeDuration(timeframe) / time.Second)
	start := end - step*int64(limit)

	u := fmt.Sprintf("%s/defi/ohlcv?address=%s&type=%s&time_from=%d&time_to=%d",
		p.baseURL, url.QueryEscape(address), tfType, start, end)

	body, err := p.doRequest(ctx, p.limHistory, u)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Success bool `json:"success"`
		Data    struct {
			Items []struct {
				UnixTime int64   `json:"unixTime"`
				O        float64 `json:"o"`
				H        float64 `json:"h"`
				L        float64 `json:"l"`
				C        float64 `json:"c"`
				V        float64 `json:"v"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewDecodeError(p.Name(), err)
	}
	if !raw.Success {
		return nil, &Error{Provider: p.Name(), Msg: "response flagged unsuccessful"}
	}
	if len(raw.Data.Items) == 0 {
		return nil, ErrNoData
	}

	rows := make([]candles.Raw, 0, len(raw.Data.Items))
	for _, it := range raw.Data.Items {
		rows = append(rows, candles.Raw{
			Time:   it.UnixTime * 1000,
			Open:   it.O,
			High:   it.H,
			Low:    it.L,
			Close:  it.C,
			Volume: it.V,
		})
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

// FetchTokenSecurity returns the security-scan summary for a token.
func (p *Birdeye) FetchTokenSecurity(ctx context.Context, address string) (*domain.TokenSecurity, error) {
	_, span := p.tracer.Start(ctx, "birdeye.fetch-token-security")
	defer span.End()

	u := fmt.Sprintf("%s/defi/token_security?address=%s", p.baseURL, url.QueryEscape(address))
	body, err := p.doRequest(ctx, p.limSecurity, u)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Success bool `json:"success"`
		Data    *struct {
			CreatorAddress     string  `json:"creatorAddress"`
			Top10HolderPercent float64 `json:"top10HolderPercent"`
			MintAuthority      *string `json:"mintAuthority"`
			FreezeAuthority    *string `json:"freezeAuthority"`
			MutableMetadata    bool    `json:"mutableMetadata"`
			NonTransferable    *bool   `json:"nonTransferable"`
			TotalSupply        float64 `json:"totalSupply"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewDecodeError(p.Name(), err)
	}
	if !raw.Success || raw.Data == nil {
		return nil, ErrNoData
	}

	d := raw.Data
	sec := &domain.TokenSecurity{
		Address:         address,
		CreatorAddress:  d.CreatorAddress,
		Top10HolderPct:  d.Top10HolderPercent,
		MintAuthority:   d.MintAuthority != nil && *d.MintAuthority != "",
		FreezeAuthority: d.FreezeAuthority != nil && *d.FreezeAuthority != "",
		MutableMetadata: d.MutableMetadata,
		TotalSupply:     d.TotalSupply,
		CheckedAtUnix:   time.Now().Unix(),
	}
	if d.NonTransferable != nil {
		sec.NonTransferable = *d.NonTransferable
	}
	return sec, nil
}

// FetchTopHolders returns the token's largest accounts, rank-ordered.
func (p *Birdeye) FetchTopHolders(ctx context.Context, address string, limit int) ([]domain.TokenHolder, error) {
	_, span := p.tracer.Start(ctx, "birdeye.fetch-top-holders")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	u := fmt.Sprintf("%s/defi/v3/token/holder?address=%s&offset=0&limit=%d",
		p.baseURL, url.QueryEscape(address), limit)

	body, err := p.doRequest(ctx, p.limHolders, u)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Success bool `json:"success"`
		Data    struct {
			Items []struct {
				Owner    string  `json:"owner"`
				UIAmount float64 `json:"ui_amount"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewDecodeError(p.Name(), err)
	}
	if !raw.Success || len(raw.Data.Items) == 0 {
		return nil, ErrNoData
	}

	total := 0.0
	for _, it := range raw.Data.Items {
		total += it.UIAmount
	}
	holders := make([]domain.TokenHolder, 0, len(raw.Data.Items))
	for i, it := range raw.Data.Items {
		h := domain.TokenHolder{
			Address: it.Owner,
			Amount:  it.UIAmount,
			Rank:    i + 1,
		}
		if total > 0 {
			h.Pct = it.UIAmount / total * 100
		}
		holders = append(holders, h)
	}
	return holders, nil
}

// FetchRecentTrades returns recent swap transactions for a token, mapped to
// trade events. Used to seed the trade feed before the stream connects.
func (p *Birdeye) FetchRecentTrades(ctx context.Context, address string, limit int) ([]domain.TradeEvent, error) {
	_, span := p.tracer.Start(ctx, "birdeye.fetch-recent-trades")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	u := fmt.Sprintf("%s/defi/txs/token?address=%s&tx_type=swap&offset=0&limit=%d",
		p.baseURL, url.QueryEscape(address), limit)

	body, err := p.doRequest(ctx, p.limTrades, u)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Success bool `json:"success"`
		Data    struct {
			Items []struct {
				TxHash    string  `json:"txHash"`
				BlockTime int64   `json:"blockUnixTime"`
				Side      string  `json:"side"`
				Owner     string  `json:"owner"`
				Source    string  `json:"source"`
				From      amounts `json:"from"`
				To        amounts `json:"to"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewDecodeError(p.Name(), err)
	}
	if !raw.Success || len(raw.Data.Items) == 0 {
		return nil, ErrNoData
	}

	events := make([]domain.TradeEvent, 0, len(raw.Data.Items))
	for _, it := range raw.Data.Items {
		side := domain.SideSell
		tracked, counter := it.From, it.To
		if it.To.Address == address {
			side = domain.SideBuy
			tracked, counter = it.To, it.From
		}
		if tracked.UIAmount == 0 {
			continue
		}
		events = append(events, domain.TradeEvent{
			Time:         it.BlockTime,
			Side:         side,
			Amount:       tracked.UIAmount,
			PricePerUnit: counter.UIAmount / tracked.UIAmount,
			USDValue:     tracked.UIAmount * tracked.PriceUSD,
			Trader:       it.Owner,
			TxID:         it.TxHash,
			Source:       it.Source,
		})
	}
	if len(events) == 0 {
		return nil, ErrNoData
	}
	return events, nil
}

type amounts struct {
	Address  string  `json:"address"`
	UIAmount float64 `json:"uiAmount"`
	PriceUSD float64 `json:"price"`
}

// FetchTrending returns the provider's trending token list.
func (p *Birdeye) FetchTrending(ctx context.Context, limit int) ([]domain.TrendingToken, error) {
	_, span := p.tracer.Start(ctx, "birdeye.fetch-trending")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	u := fmt.Sprintf("%s/defi/token_trending?sort_by=rank&sort_type=asc&offset=0&limit=%d", p.baseURL, limit)

	body, err := p.doRequest(ctx, p.limTrending, u)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Success bool `json:"success"`
		Data    struct {
			Tokens []struct {
				Address   string  `json:"address"`
				Name      string  `json:"name"`
				Symbol    string  `json:"symbol"`
				Price     float64 `json:"price"`
				Change24h float64 `json:"price24hChangePercent"`
				Volume24h float64 `json:"volume24hUSD"`
				MarketCap float64 `json:"marketcap"`
				Rank      int     `json:"rank"`
			} `json:"tokens"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewDecodeError(p.Name(), err)
	}
	if !raw.Success || len(raw.Data.Tokens) == 0 {
		return nil, ErrNoData
	}

	out := make([]domain.TrendingToken, 0, len(raw.Data.Tokens))
	for i, tok := range raw.Data.Tokens {
		rank := tok.Rank
		if rank == 0 {
			rank = i + 1
		}
		out = append(out, domain.TrendingToken{
			Address:      tok.Address,
			Name:         tok.Name,
			Symbol:       tok.Symbol,
			PriceUSD:     tok.Price,
			Change24hPct: tok.Change24h,
			Volume24h:    tok.Volume24h,
			MarketCap:    tok.MarketCap,
			Rank:         rank,
		})
	}
	return out, nil
}

// UsageReport snapshots every role's window bookkeeping for diagnostics.
func (p *Birdeye) UsageReport() []Usage {
	return []Usage{
		p.limHistory.Usage(),
		p.limSecurity.Usage(),
		p.limHolders.Usage(),
		p.limTrades.Usage(),
		p.limTrending.Usage(),
	}
}

func (p *Birdeye) doRequest(ctx context.Context, limiter *RateLimiter, u string) ([]byte, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", p.apiKey)
	req.Header.Set("x-chain", p.chain)

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

func birdeyeTimeframe(tf string) (string, bool) {
	switch tf {
	case "1m":
		return "1m", true
	case "5m":
		return "5m", true
	case "15m":
		return "15m", true
	case "1h":
		return "1H", true
	case "4h":
		return "4H", true
	case "1d":
		return "1D", true
	default:
		return "", false
	}
}
