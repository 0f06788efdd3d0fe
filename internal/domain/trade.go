package domain

// TradeSide is the direction of a reconstructed swap relative to the
// tracked asset.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// TradeEvent is one semantic trade reconstructed from a ledger transaction's
// balance deltas. Time is unix seconds. Events are immutable and ephemeral:
// pushed to the subscriber, never retained by the engine.
type TradeEvent struct {
	Time         int64     `json:"time"`
	Side         TradeSide `json:"side"`
	Amount       float64   `json:"amount"`
	PricePerUnit float64   `json:"price_per_unit"`
	PriceUSD     float64   `json:"price_usd"`
	USDValue     float64   `json:"usd_value"`
	Trader       string    `json:"trader,omitempty"`
	TxID         string    `json:"tx_id"`
	Source       string    `json:"source,omitempty"`
}

// StreamStatus describes the state of the streaming transport, reported to
// the registered status callback.
type StreamStatus string

const (
	StreamConnected    StreamStatus = "connected"
	StreamDisconnected StreamStatus = "disconnected"
	StreamReconnecting StreamStatus = "reconnecting"
)
