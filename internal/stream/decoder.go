// Package stream maintains the persistent ledger-transaction subscription
// and reconstructs semantic trade events from raw balance deltas.
package stream

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"

	"github.com/mteoong/quickscope-sub000/internal/domain"
)

// DefaultDustThreshold ignores tracked-asset deltas below this magnitude,
// in token units. Rounding noise on pool accounts produces tiny spurious
// deltas on almost every transaction.
const DefaultDustThreshold = 1e-6

const lamportsPerSOL = 1e9

// TokenBalance is one token-account balance snapshot inside a transaction's
// metadata. Amount is the raw integer amount as a string.
type TokenBalance struct {
	AccountIndex int    `json:"accountIndex"`
	Mint         string `json:"mint"`
	Owner        string `json:"owner"`
	UITokenAmount struct {
		Amount   string `json:"amount"`
		Decimals int32  `json:"decimals"`
	} `json:"uiTokenAmount"`
}

// TxRecord is one raw streamed ledger transaction, already lifted out of its
// JSON-RPC envelope.
type TxRecord struct {
	Signature string `json:"signature"`
	Slot      int64  `json:"slot"`
	BlockTime int64  `json:"blockTime"`
	Meta      struct {
		Err               json.RawMessage `json:"err"`
		Fee               int64           `json:"fee"`
		PreBalances       []int64         `json:"preBalances"`
		PostBalances      []int64         `json:"postBalances"`
		PreTokenBalances  []TokenBalance  `json:"preTokenBalances"`
		PostTokenBalances []TokenBalance  `json:"postTokenBalances"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
		Signatures []string `json:"signatures"`
	} `json:"transaction"`
}

// Failed reports whether the underlying transaction errored on chain.
func (r *TxRecord) Failed() bool {
	return len(r.Meta.Err) > 0 && string(r.Meta.Err) != "null"
}

// firstSigner is the transaction's originating account.
func (r *TxRecord) firstSigner() string {
	if len(r.Transaction.Message.AccountKeys) > 0 {
		return r.Transaction.Message.AccountKeys[0]
	}
	return ""
}

// Valuer prices counter-asset amounts in USD and quotes cross rates between
// reference assets. Satisfied by oracle.Cache.
type Valuer interface {
	USDValue(mint string, amount float64) float64
	SwapPrice(fromMint, toMint string) (float64, bool)
}

// Decoder reconstructs trade events for one tracked mint. State-free per
// record: every call is a pure function of the record plus oracle lookups.
type Decoder struct {
	mint   string
	dust   float64
	valuer Valuer
}

// NewDecoder creates a decoder for the tracked mint. dust <= 0 uses the
// default threshold.
func NewDecoder(mint string, dust float64, valuer Valuer) *Decoder {
	if dust <= 0 {
		dust = DefaultDustThreshold
	}
	return &Decoder{mint: mint, dust: dust, valuer: valuer}
}

// Decode reconstructs the trade represented by one transaction record.
// Returns false for records that are failed, unrelated to the tracked mint,
// or below the dust threshold.
func (d *Decoder) Decode(rec *TxRecord) (*domain.TradeEvent, bool) {
	if rec.Failed() {
		return nil, false
	}

	deltas := tokenDeltas(rec)

	tracked, ok := deltas[d.mint]
	if !ok {
		return nil, false
	}
	trackedAmt := math.Abs(tracked)
	if trackedAmt < d.dust {
		return nil, false
	}

	side := domain.SideSell
	if tracked > 0 {
		side = domain.SideBuy
	}

	counterMint, counterDelta := largestCounterDelta(deltas, d.mint)
	if counterMint == "" {
		// No counter token moved; fall back to native balance deltas.
		counterMint = domain.BaseAssetMint
		counterDelta = nativeDelta(rec)
	}
	counterAmt := math.Abs(counterDelta)

	ev := &domain.TradeEvent{
		Time:   rec.BlockTime,
		Side:   side,
		Amount: trackedAmt,
		TxID:   rec.Signature,
		Trader: rec.firstSigner(),
		Source: venueOf(rec),
	}
	if trackedAmt > 0 {
		ev.PricePerUnit = counterAmt / trackedAmt
		if rate, ok := d.valuer.SwapPrice(counterMint, domain.MintUSDC); ok {
			ev.PriceUSD = ev.PricePerUnit * rate
		}
	}
	ev.USDValue = d.valuer.USDValue(counterMint, counterAmt)
	return ev, true
}

// tokenDeltas nets post-pre balances per mint for the accounts owned by the
// transaction's first signer, falling back to the largest per-mint account
// delta when the signer holds no account for a mint. Raw integer amounts go
// through decimal so large supplies do not lose precision before the final
// unit conversion.
func tokenDeltas(rec *TxRecord) map[string]float64 {
	signer := rec.firstSigner()

	type key struct {
		mint  string
		owner string
	}
	pre := make(map[key]decimal.Decimal)
	scale := make(map[string]int32)

	for _, b := range rec.Meta.PreTokenBalances {
		amt, err := decimal.NewFromString(b.UITokenAmount.Amount)
		if err != nil {
			continue
		}
		pre[key{b.Mint, b.Owner}] = pre[key{b.Mint, b.Owner}].Add(amt)
		scale[b.Mint] = b.UITokenAmount.Decimals
	}

	byOwner := make(map[key]decimal.Decimal)
	for _, b := range rec.Meta.PostTokenBalances {
		amt, err := decimal.NewFromString(b.UITokenAmount.Amount)
		if err != nil {
			continue
		}
		k := key{b.Mint, b.Owner}
		byOwner[k] = byOwner[k].Add(amt)
		scale[b.Mint] = b.UITokenAmount.Decimals
	}
	for k, amt := range pre {
		byOwner[k] = byOwner[k].Sub(amt)
	}

	out := make(map[string]float64)
	fromSigner := make(map[string]bool)
	for k, delta := range byOwner {
		if delta.IsZero() {
			continue
		}
		units := delta.Shift(-scale[k.mint]).InexactFloat64()
		if k.owner == signer && signer != "" {
			out[k.mint] = units
			fromSigner[k.mint] = true
			continue
		}
		if !fromSigner[k.mint] && math.Abs(units) > math.Abs(out[k.mint]) {
			// Pool-side accounts move opposite to the trader, so the
			// sign flips when no signer account is visible.
			out[k.mint] = -units
		}
	}
	return out
}

// largestCounterDelta picks the non-tracked mint with the largest-magnitude
// delta.
func largestCounterDelta(deltas map[string]float64, tracked string) (string, float64) {
	var bestMint string
	var bestDelta float64
	for mint, delta := range deltas {
		if mint == tracked {
			continue
		}
		if math.Abs(delta) > math.Abs(bestDelta) {
			bestMint = mint
			bestDelta = delta
		}
	}
	return bestMint, bestDelta
}

// nativeDelta returns the largest-magnitude lamport delta across accounts,
// in SOL. The fee is excluded from the fee payer's delta so a bare transfer
// does not read as a trade against its own fee.
func nativeDelta(rec *TxRecord) float64 {
	n := len(rec.Meta.PostBalances)
	if len(rec.Meta.PreBalances) < n {
		n = len(rec.Meta.PreBalances)
	}

	var best int64
	for i := 0; i < n; i++ {
		delta := rec.Meta.PostBalances[i] - rec.Meta.PreBalances[i]
		if i == 0 {
			delta += rec.Meta.Fee
		}
		if abs64(delta) > abs64(best) {
			best = delta
		}
	}
	return float64(best) / lamportsPerSOL
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// venueOf matches the record's referenced accounts against known swap-venue
// program ids. Best effort: unmatched records get an empty label.
func venueOf(rec *TxRecord) string {
	for _, k := range rec.Transaction.Message.AccountKeys {
		if name, ok := domain.VenuePrograms[k]; ok {
			return name
		}
	}
	return ""
}
