// Package candles normalizes raw provider OHLCV rows into the canonical
// candle series and synthesizes deterministic placeholder series when every
// real provider is exhausted.
package candles

import (
	"sort"

	"github.com/mteoong/quickscope-sub000/internal/domain"
)

// Raw is a provider-neutral OHLCV row as emitted by an adapter. Time is unix
// milliseconds. Rows may arrive unordered and with duplicate bucket
// timestamps at page boundaries.
type Raw struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Normalize sorts rows ascending by timestamp and drops rows that duplicate
// an earlier timestamp, keeping the first occurrence. Output timestamps are
// strictly increasing.
func Normalize(rows []Raw) []domain.Candle {
	if len(rows) == 0 {
		return nil
	}

	sorted := make([]Raw, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	out := make([]domain.Candle, 0, len(sorted))
	var lastTS int64 = -1
	for _, r := range sorted {
		if r.Time == lastTS {
			continue
		}
		lastTS = r.Time
		out = append(out, domain.Candle{
			Time:   r.Time,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return out
}

// JoinVolume attaches a separately delivered volume series to OHLC rows by
// index position; both series share generation order. Rows past the end of
// the volume series keep zero volume.
func JoinVolume(rows []Raw, volumes []float64) []Raw {
	out := make([]Raw, len(rows))
	copy(out, rows)
	for i := range out {
		if i < len(volumes) {
			out[i].Volume = volumes[i]
		} else {
			out[i].Volume = 0
		}
	}
	return out
}

// Aggregate folds every m consecutive candles into one: first open, last
// close, max high, min low, summed volume. Used to synthesize coarser
// timeframes when a provider lacks a native one. m <= 1 returns the input.
func Aggregate(cs []domain.Candle, m int) []domain.Candle {
	if m <= 1 || len(cs) == 0 {
		return cs
	}

	out := make([]domain.Candle, 0, (len(cs)+m-1)/m)
	for i := 0; i < len(cs); i += m {
		end := i + m
		if end > len(cs) {
			end = len(cs)
		}
		group := cs[i:end]

		agg := domain.Candle{
			Time:  group[0].Time,
			Open:  group[0].Open,
			High:  group[0].High,
			Low:   group[0].Low,
			Close: group[len(group)-1].Close,
		}
		for _, c := range group {
			if c.High > agg.High {
				agg.High = c.High
			}
			if c.Low < agg.Low {
				agg.Low = c.Low
			}
			agg.Volume += c.Volume
		}
		out = append(out, agg)
	}
	return out
}
