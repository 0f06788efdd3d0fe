package domain

import "time"

// Candle is a single OHLCV bucket. Time is unix milliseconds; within one
// series timestamps are strictly increasing with no duplicates.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// PriceData is the normalized result of a market-data request. When every
// real provider is exhausted the candles are deterministically synthesized
// and IsSynthetic is set so consumers can flag the series as simulated.
type PriceData struct {
	Candles        []Candle `json:"candles"`
	HasOHLC        bool     `json:"has_ohlc"`
	IsSynthetic    bool     `json:"is_synthetic"`
	Source         string   `json:"source"`
	FallbackReason string   `json:"fallback_reason,omitempty"`
	Symbol         string   `json:"symbol"`
	LastUpdate     int64    `json:"last_update"`
}

// SupportedTimeframes lists the candle timeframes the engine serves.
var SupportedTimeframes = []string{"1m", "5m", "15m", "1h", "4h", "1d"}

// TimeframeDuration maps a timeframe label to its bucket width.
// Returns 0 for unknown labels.
func TimeframeDuration(tf string) time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 0
	}
}

// IsSupportedTimeframe reports whether tf is one of SupportedTimeframes.
func IsSupportedTimeframe(tf string) bool {
	return TimeframeDuration(tf) != 0
}
