package domain

// DEX identifies a decentralized exchange family.
type DEX string

// Supported DEX families
const (
	DEXUniswapV3 DEX = "uniswap_v3"
	DEXAerodrome DEX = "aerodrome"
)

// PairedAsset names the canonical asset a token is paired against.
type PairedAsset string

// Canonical paired assets
const (
	PairedWETH PairedAsset = "WETH"
	PairedUSDC PairedAsset = "USDC"
)

// LiquidityPool is a discovered pool for a token.
// Corresponds to liquidity_pools table in PostgreSQL. Identity is (Chain, PoolAddress).
type LiquidityPool struct {
	Chain        string
	PoolAddress  string
	TokenAddress string // FK to tokens
	DEX          DEX
	Paired       PairedAsset
	PairedToken  string // address of the paired asset
	Variant      string // fee tier ("3000") or "stable"/"volatile"

	InitialLiquidityUSD float64 // set once on first non-zero observation
	CurrentLiquidityUSD float64
	PeakLiquidityUSD    float64 // monotonic
	FirstLiquidityAt    *int64  // ms, nullable

	Locked       bool
	LPHolder     *string // nullable
	RemovedEarly bool    // sticky
	RemovalPct   float64
	CreatedAt    int64 // ms
	UpdatedAt    int64 // ms
}

// Clone returns a deep copy of p.
func (p *LiquidityPool) Clone() *LiquidityPool {
	if p == nil {
		return nil
	}
	c := *p
	c.FirstLiquidityAt = clonePtr(p.FirstLiquidityAt)
	c.LPHolder = clonePtr(p.LPHolder)
	return &c
}

// PoolObservation is one point of a pool's liquidity history.
// Corresponds to pool_liquidity_observations table in ClickHouse.
type PoolObservation struct {
	Chain         string
	PoolAddress   string
	TokenAddress  string
	ObservedAt    int64   // ms
	LiquidityUSD  float64
	ReserveToken  float64 // token-side reserve, decimals applied when known
	ReservePaired float64 // paired-asset reserve, decimals applied
}
