package liquidity

import (
	"math/big"

	"github.com/shopspring/decimal"

	"sentinel-ledger/internal/domain"
)

// defaultTokenDecimals is assumed for token-side reserves when decimals()
// was unreadable.
const defaultTokenDecimals = 18

type assetPrice struct {
	decimals int32
	usd      decimal.Decimal
}

// Valuer converts paired-asset reserves into an approximate USD pool value.
type Valuer struct {
	prices map[domain.PairedAsset]assetPrice
}

// NewValuer creates a Valuer with WETH at wethUSD and USDC at par.
func NewValuer(wethUSD float64) Valuer {
	return Valuer{prices: map[domain.PairedAsset]assetPrice{
		domain.PairedWETH: {decimals: 18, usd: decimal.NewFromFloat(wethUSD)},
		domain.PairedUSDC: {decimals: 6, usd: decimal.NewFromInt(1)},
	}}
}

// PoolUSD values the paired side of a pool and doubles it to approximate
// total pool value. Unknown assets and nil reserves value at zero.
func (v Valuer) PoolUSD(asset domain.PairedAsset, reservePaired *big.Int) float64 {
	p, ok := v.prices[asset]
	if !ok || reservePaired == nil || reservePaired.Sign() <= 0 {
		return 0
	}
	usd := decimal.NewFromBigInt(reservePaired, -p.decimals).
		Mul(p.usd).
		Mul(decimal.NewFromInt(2)).
		Round(2)
	return usd.InexactFloat64()
}

// Units scales a raw reserve by decimals.
func (v Valuer) Units(asset domain.PairedAsset, raw *big.Int) float64 {
	if raw == nil {
		return 0
	}
	p, ok := v.prices[asset]
	if !ok {
		return 0
	}
	return decimal.NewFromBigInt(raw, -p.decimals).InexactFloat64()
}

// TokenUnits scales a token-side reserve by the token's decimals.
func TokenUnits(raw *big.Int, decimals *uint8) float64 {
	if raw == nil {
		return 0
	}
	exp := int32(defaultTokenDecimals)
	if decimals != nil {
		exp = int32(*decimals)
	}
	return decimal.NewFromBigInt(raw, -exp).InexactFloat64()
}
