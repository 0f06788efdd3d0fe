package domain

// TrendingToken is one row of the trending-token list.
type TrendingToken struct {
	Address      string  `json:"address"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	PriceUSD     float64 `json:"price_usd"`
	Change24hPct float64 `json:"change_24h_pct"`
	Volume24h    float64 `json:"volume_24h"`
	MarketCap    float64 `json:"market_cap"`
	Rank         int     `json:"rank"`
}

// TokenSecurity summarizes a token's security-scan result.
type TokenSecurity struct {
	Address          string  `json:"address"`
	CreatorAddress   string  `json:"creator_address,omitempty"`
	Top10HolderPct   float64 `json:"top10_holder_pct"`
	MintAuthority    bool    `json:"mint_authority"`
	FreezeAuthority  bool    `json:"freeze_authority"`
	MutableMetadata  bool    `json:"mutable_metadata"`
	NonTransferable  bool    `json:"non_transferable"`
	TotalSupply      float64 `json:"total_supply"`
	CheckedAtUnix    int64   `json:"checked_at_unix"`
}

// TokenHolder is one entry of a token's largest-accounts list.
type TokenHolder struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
	Pct     float64 `json:"pct"`
	Rank    int     `json:"rank"`
}

// ReferenceAsset is one of the small fixed set of assets the price oracle
// keeps USD prices for. These are the quote assets trades are commonly
// denominated in.
type ReferenceAsset struct {
	Mint        string
	Symbol      string
	CoinGeckoID string
	Stable      bool
}

// Well-known Solana mints.
const (
	MintWSOL    = "So11111111111111111111111111111111111111112"
	MintUSDC    = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	MintUSDT    = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	MintMSOL    = "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"
	MintJitoSOL = "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn"
)

// ReferenceAssets is the fixed set refreshed by the price oracle. WSOL is the
// chain-native base asset; swap pricing special-cases it and the stables.
var ReferenceAssets = []ReferenceAsset{
	{Mint: MintWSOL, Symbol: "SOL", CoinGeckoID: "solana"},
	{Mint: MintUSDC, Symbol: "USDC", CoinGeckoID: "usd-coin", Stable: true},
	{Mint: MintUSDT, Symbol: "USDT", CoinGeckoID: "tether", Stable: true},
	{Mint: MintMSOL, Symbol: "mSOL", CoinGeckoID: "msol"},
	{Mint: MintJitoSOL, Symbol: "JitoSOL", CoinGeckoID: "jito-staked-sol"},
}

// BaseAssetMint is the chain-native asset used as the pricing pivot.
const BaseAssetMint = MintWSOL

// IsStableMint reports whether the mint is a tracked USD stablecoin.
func IsStableMint(mint string) bool {
	for _, a := range ReferenceAssets {
		if a.Mint == mint {
			return a.Stable
		}
	}
	return false
}

// VenuePrograms maps known swap-venue program ids to display labels. Venue
// attribution on trade events is best effort.
var VenuePrograms = map[string]string{
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": "Raydium",
	"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK": "Raydium CLMM",
	"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc":  "Orca",
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4":  "Jupiter",
	"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P":  "Pump.fun",
}
