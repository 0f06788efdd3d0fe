package candles

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/mteoong/quickscope-sub000/internal/domain"
)

// profile shapes a synthetic series for one token. All fields derive from
// the token address hash so repeated generations are reproducible.
type profile struct {
	basePrice  float64
	volatility float64
	trend      float64
	baseVolume float64
}

func profileFor(seedKey string) (profile, int64) {
	h := fnv.New64a()
	h.Write([]byte(seedKey))
	seed := int64(h.Sum64())

	r := rand.New(rand.NewSource(seed))
	return profile{
		// Log-uniform base price between ~1e-6 and ~10 USD.
		basePrice:  math.Pow(10, -6+7*r.Float64()),
		volatility: 0.005 + 0.03*r.Float64(),
		trend:      -0.0008 + 0.0016*r.Float64(),
		baseVolume: 500 + 20000*r.Float64(),
	}, seed
}

// Synthesize generates a deterministic pseudo-market candle series for a
// token and timeframe, ending at now. The same seedKey, timeframe, count and
// bucket-aligned now produce an identical series. Timestamps are strictly
// increasing and spaced by the timeframe duration.
func Synthesize(seedKey, timeframe string, count int, now time.Time) []domain.Candle {
	step := domain.TimeframeDuration(timeframe)
	if step == 0 || count <= 0 {
		return nil
	}

	prof, seed := profileFor(seedKey)
	r := rand.New(rand.NewSource(seed ^ int64(step)))

	end := now.Truncate(step)
	start := end.Add(-time.Duration(count-1) * step)

	out := make([]domain.Candle, 0, count)
	price := prof.basePrice
	for i := 0; i < count; i++ {
		drift := price * prof.trend
		shock := price * prof.volatility * (2*r.Float64() - 1)

		open := price
		close := price + drift + shock
		if close <= 0 {
			close = open * 0.5
		}
		spread := math.Abs(shock) + price*prof.volatility*0.5
		high := math.Max(open, close) + spread*r.Float64()
		low := math.Min(open, close) - spread*r.Float64()
		if low <= 0 {
			low = math.Min(open, close) * 0.9
		}

		out = append(out, domain.Candle{
			Time:   start.Add(time.Duration(i) * step).UnixMilli(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: prof.baseVolume * (0.3 + 1.4*r.Float64()),
		})
		price = close
	}
	return out
}

// SynthesizeTrending generates a deterministic placeholder trending list so
// the display layer always has rows to show. Entries are visibly generic.
func SynthesizeTrending(n int, now time.Time) []domain.TrendingToken {
	if n <= 0 {
		return nil
	}
	r := rand.New(rand.NewSource(now.Truncate(time.Minute).Unix()))

	out := make([]domain.TrendingToken, 0, n)
	for i := 0; i < n; i++ {
		prof, _ := profileFor("trending-" + string(rune('A'+i)))
		out = append(out, domain.TrendingToken{
			Address:      "",
			Name:         "Unavailable",
			Symbol:       "N/A",
			PriceUSD:     prof.basePrice,
			Change24hPct: -20 + 40*r.Float64(),
			Volume24h:    prof.baseVolume * 1000,
			MarketCap:    prof.basePrice * 1e9,
			Rank:         i + 1,
		})
	}
	return out
}
