package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mteoong/quickscope-sub000/internal/domain"
)

const (
	testMint    = "TrackedMint1111111111111111111111111111111"
	counterMint = domain.MintUSDC
	traderAddr  = "Trader111111111111111111111111111111111111"
	poolAddr    = "Pool1111111111111111111111111111111111111"
)

type fixedValuer struct {
	prices map[string]float64
}

func (v fixedValuer) USDValue(mint string, amount float64) float64 {
	return v.prices[mint] * amount
}

func (v fixedValuer) SwapPrice(from, to string) (float64, bool) {
	pf, ok := v.prices[from]
	if !ok {
		if from != domain.MintUSDC {
			return 0, false
		}
		pf = 1
	}
	pt := 1.0
	if to != domain.MintUSDC {
		var okt bool
		pt, okt = v.prices[to]
		if !okt {
			return 0, false
		}
	}
	return pf / pt, true
}

func balance(idx int, mint, owner, amount string, decimals int32) TokenBalance {
	b := TokenBalance{AccountIndex: idx, Mint: mint, Owner: owner}
	b.UITokenAmount.Amount = amount
	b.UITokenAmount.Decimals = decimals
	return b
}

// swapRecord builds a transaction where the trader's tracked balance moves
// from preTracked to postTracked and the counter balance moves from
// preCounter to postCounter, all as raw integer strings.
func swapRecord(preTracked, postTracked, preCounter, postCounter string) *TxRecord {
	rec := &TxRecord{Signature: "sig1", Slot: 100, BlockTime: 1700000000}
	rec.Transaction.Message.AccountKeys = []string{traderAddr, poolAddr}
	rec.Transaction.Signatures = []string{"sig1"}
	rec.Meta.PreTokenBalances = []TokenBalance{
		balance(1, testMint, traderAddr, preTracked, 6),
		balance(2, counterMint, traderAddr, preCounter, 6),
	}
	rec.Meta.PostTokenBalances = []TokenBalance{
		balance(1, testMint, traderAddr, postTracked, 6),
		balance(2, counterMint, traderAddr, postCounter, 6),
	}
	return rec
}

func TestDecodeBuy(t *testing.T) {
	// Trader gains 1000 tracked units and pays 5 counter units priced at
	// 200 USD each.
	d := NewDecoder(testMint, 0, fixedValuer{prices: map[string]float64{counterMint: 200}})
	rec := swapRecord("0", "1000000000", "5000000", "0")

	ev, ok := d.Decode(rec)
	require.True(t, ok)
	assert.Equal(t, domain.SideBuy, ev.Side)
	assert.InDelta(t, 1000.0, ev.Amount, 1e-9)
	assert.InDelta(t, 0.005, ev.PricePerUnit, 1e-12)
	assert.InDelta(t, 1.0, ev.PriceUSD, 1e-12)
	assert.InDelta(t, 1000.0, ev.USDValue, 1e-9)
	assert.Equal(t, traderAddr, ev.Trader)
	assert.Equal(t, "sig1", ev.TxID)
	assert.Equal(t, int64(1700000000), ev.Time)
}

func TestDecodeSell(t *testing.T) {
	d := NewDecoder(testMint, 0, fixedValuer{prices: map[string]float64{counterMint: 1}})
	rec := swapRecord("1000000000", "0", "0", "5000000")

	ev, ok := d.Decode(rec)
	require.True(t, ok)
	assert.Equal(t, domain.SideSell, ev.Side)
	assert.InDelta(t, 1000.0, ev.Amount, 1e-9)
	assert.InDelta(t, 0.005, ev.PricePerUnit, 1e-12)
	assert.InDelta(t, 0.005, ev.PriceUSD, 1e-12)
	assert.InDelta(t, 5.0, ev.USDValue, 1e-9)
}

func TestDecodeSkipsFailedTransaction(t *testing.T) {
	d := NewDecoder(testMint, 0, fixedValuer{})
	rec := swapRecord("0", "1000000000", "5000000", "0")
	rec.Meta.Err = json.RawMessage(`{"InstructionError":[0,"Custom"]}`)

	_, ok := d.Decode(rec)
	assert.False(t, ok)
}

func TestDecodeSkipsDust(t *testing.T) {
	d := NewDecoder(testMint, 0.5, fixedValuer{})
	rec := swapRecord("0", "100000", "1000", "0") // 0.1 tracked units

	_, ok := d.Decode(rec)
	assert.False(t, ok)
}

func TestDecodeSkipsUnrelated(t *testing.T) {
	d := NewDecoder(testMint, 0, fixedValuer{})
	rec := &TxRecord{Signature: "sig2", BlockTime: 1700000000}
	rec.Transaction.Message.AccountKeys = []string{traderAddr}
	rec.Meta.PreTokenBalances = []TokenBalance{balance(1, counterMint, traderAddr, "100", 6)}
	rec.Meta.PostTokenBalances = []TokenBalance{balance(1, counterMint, traderAddr, "50", 6)}

	_, ok := d.Decode(rec)
	assert.False(t, ok)
}

func TestDecodeNativeCounterFallback(t *testing.T) {
	// No counter token balance changes, so the price comes from lamport
	// deltas. The trader spends 2 SOL (plus the fee, which is excluded).
	d := NewDecoder(testMint, 0, fixedValuer{prices: map[string]float64{domain.BaseAssetMint: 150}})
	rec := &TxRecord{Signature: "sig3", BlockTime: 1700000000}
	rec.Transaction.Message.AccountKeys = []string{traderAddr, poolAddr}
	rec.Meta.Fee = 5000
	rec.Meta.PreBalances = []int64{3_000_000_000, 1_000_000_000}
	rec.Meta.PostBalances = []int64{1_000_000_000 - 5000, 3_000_000_000}
	rec.Meta.PreTokenBalances = []TokenBalance{balance(2, testMint, traderAddr, "0", 6)}
	rec.Meta.PostTokenBalances = []TokenBalance{balance(2, testMint, traderAddr, "4000000", 6)}

	ev, ok := d.Decode(rec)
	require.True(t, ok)
	assert.Equal(t, domain.SideBuy, ev.Side)
	assert.InDelta(t, 4.0, ev.Amount, 1e-9)
	assert.InDelta(t, 0.5, ev.PricePerUnit, 1e-9)
	assert.InDelta(t, 75.0, ev.PriceUSD, 1e-6)
	assert.InDelta(t, 300.0, ev.USDValue, 1e-6)
}

func TestDecodePoolDeltaWhenSignerHoldsNoAccount(t *testing.T) {
	// The signer's token accounts never appear in the balance lists, so
	// the decoder reads the pool side. Pool tracked balance drops by 50,
	// meaning the aggressor bought.
	d := NewDecoder(testMint, 0, fixedValuer{prices: map[string]float64{counterMint: 1}})
	rec := &TxRecord{Signature: "sig4", BlockTime: 1700000000}
	rec.Transaction.Message.AccountKeys = []string{traderAddr, poolAddr}
	rec.Meta.PreTokenBalances = []TokenBalance{
		balance(1, testMint, poolAddr, "100000000", 6),
		balance(2, counterMint, poolAddr, "10000000", 6),
	}
	rec.Meta.PostTokenBalances = []TokenBalance{
		balance(1, testMint, poolAddr, "50000000", 6),
		balance(2, counterMint, poolAddr, "12000000", 6),
	}

	ev, ok := d.Decode(rec)
	require.True(t, ok)
	assert.Equal(t, domain.SideBuy, ev.Side)
	assert.InDelta(t, 50.0, ev.Amount, 1e-9)
	assert.InDelta(t, 2.0/50.0, ev.PricePerUnit, 1e-12)
}

func TestDecodeVenueAttribution(t *testing.T) {
	raydium := ""
	for program, name := range domain.VenuePrograms {
		if name == "Raydium" {
			raydium = program
		}
	}
	require.NotEmpty(t, raydium)

	d := NewDecoder(testMint, 0, fixedValuer{prices: map[string]float64{counterMint: 1}})
	rec := swapRecord("0", "1000000000", "5000000", "0")
	rec.Transaction.Message.AccountKeys = append(rec.Transaction.Message.AccountKeys, raydium)

	ev, ok := d.Decode(rec)
	require.True(t, ok)
	assert.Equal(t, "Raydium", ev.Source)
}
