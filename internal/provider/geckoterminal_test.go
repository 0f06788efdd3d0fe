package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func testGeckoTerminal(rt roundTripFunc) *GeckoTerminal {
	p := NewGeckoTerminal(trace.NewNoopTracerProvider().Tracer("test"), "solana")
	p.baseURL = "https://example.com"
	p.limiter = NewRateLimiter("geckoterminal", 0, 30)
	p.client = &http.Client{Transport: rt}
	return p
}

const poolsBody = `{"data":[
	{"attributes":{"address":"pool-small","reserve_in_usd":"10000","base_token_price_usd":"0.9"}},
	{"attributes":{"address":"pool-big","reserve_in_usd":"500000","base_token_price_usd":"1.02"}}
]}`

func TestGeckoTerminalFetchOHLCVUsesTopPool(t *testing.T) {
	p := testGeckoTerminal(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/networks/solana/tokens/TokenMint/pools":
			return jsonResponse(http.StatusOK, poolsBody), nil
		case "/networks/solana/pools/pool-big/ohlcv/hour":
			if agg := req.URL.Query().Get("aggregate"); agg != "4" {
				t.Fatalf("expected aggregate=4 for 4h, got %q", agg)
			}
			body := `{"data":{"attributes":{"ohlcv_list":[
				[1700000000, 1.0, 1.2, 0.9, 1.1, 5000],
				[1700014400, 1.1, 1.3, 1.0, 1.2, 6000]
			]}}}`
			return jsonResponse(http.StatusOK, body), nil
		default:
			t.Fatalf("unexpected path: %s", req.URL.Path)
			return nil, nil
		}
	})

	rows, err := p.FetchOHLCV(context.Background(), "TokenMint", "4h", 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Time != 1700000000000 || rows[0].Volume != 5000 {
		t.Fatalf("bad mapping: %+v", rows[0])
	}
}

func TestGeckoTerminalNoPoolsIsNoData(t *testing.T) {
	p := testGeckoTerminal(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"data":[]}`), nil
	})

	_, err := p.FetchOHLCV(context.Background(), "TokenMint", "1h", 0, 100)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestGeckoTerminalEmptyOHLCVIsNoData(t *testing.T) {
	p := testGeckoTerminal(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/networks/solana/tokens/TokenMint/pools" {
			return jsonResponse(http.StatusOK, poolsBody), nil
		}
		return jsonResponse(http.StatusOK, `{"data":{"attributes":{"ohlcv_list":[]}}}`), nil
	})

	_, err := p.FetchOHLCV(context.Background(), "TokenMint", "1h", 0, 100)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestGeckoTerminalTokenPricePicksHighestLiquidity(t *testing.T) {
	p := testGeckoTerminal(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, poolsBody), nil
	})

	price, err := p.TokenPriceUSD(context.Background(), "TokenMint")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 1.02 {
		t.Fatalf("expected price from highest-liquidity pool (1.02), got %v", price)
	}
}

func TestGeckoTerminalServerErrorIsTransient(t *testing.T) {
	p := testGeckoTerminal(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusServiceUnavailable, `{}`), nil
	})

	_, err := p.TokenPriceUSD(context.Background(), "TokenMint")
	if err == nil || !IsTransient(err) {
		t.Fatalf("503 must classify transient: %v", err)
	}
}
