package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"sentinel-ledger/internal/chain"
	"sentinel-ledger/internal/domain"
)

// Aerodrome probes a solidly-style factory with stable and volatile pools.
// LP positions are ERC-20 balances on the pool contract.
type Aerodrome struct {
	caller  chain.Caller
	factory *chain.Contract
}

var (
	_ PoolProber       = (*Aerodrome)(nil)
	_ LPHolderResolver = (*Aerodrome)(nil)
)

// NewAerodrome creates a prober for the factory at address.
func NewAerodrome(caller chain.Caller, factory common.Address) *Aerodrome {
	return &Aerodrome{
		caller:  caller,
		factory: chain.NewContract(caller, factory, aerodromeFactoryABI),
	}
}

// DEX implements PoolProber.
func (a *Aerodrome) DEX() domain.DEX {
	return domain.DEXAerodrome
}

// Variants implements PoolProber.
func (a *Aerodrome) Variants() []Variant {
	return []Variant{
		{Name: "volatile", Stable: false},
		{Name: "stable", Stable: true},
	}
}

// Probe implements PoolProber.
func (a *Aerodrome) Probe(ctx context.Context, token common.Address, paired PairedToken, v Variant) (*Pool, error) {
	addr, err := a.factory.CallAddress(ctx, "getPool", token, paired.Address, v.Stable)
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, nil
	}

	pc := chain.NewContract(a.caller, addr, aerodromePoolABI)
	token0, err := pc.CallAddress(ctx, "token0")
	if err != nil {
		return nil, err
	}
	token1, err := pc.CallAddress(ctx, "token1")
	if err != nil {
		return nil, err
	}

	reserves, err := pc.Call(ctx, "getReserves")
	if err != nil {
		return nil, err
	}
	if len(reserves) < 2 {
		return nil, fmt.Errorf("getReserves: %d outputs", len(reserves))
	}
	r0, ok0 := reserves[0].(*big.Int)
	r1, ok1 := reserves[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, fmt.Errorf("getReserves: unexpected types %T, %T", reserves[0], reserves[1])
	}

	stableVals, err := pc.Call(ctx, "stable")
	if err != nil {
		return nil, err
	}
	if stable, ok := stableVals[0].(bool); ok {
		v.Stable = stable
	}

	reserveToken, reservePaired := splitReserves(token, token0, r0, r1)
	return &Pool{
		DEX:           domain.DEXAerodrome,
		Address:       addr,
		Token:         token,
		Paired:        paired,
		Variant:       v,
		Token0:        token0,
		Token1:        token1,
		ReserveToken:  reserveToken,
		ReservePaired: reservePaired,
	}, nil
}

// LPHolder implements LPHolderResolver.
func (a *Aerodrome) LPHolder(ctx context.Context, pool common.Address, candidates []common.Address) (common.Address, bool, error) {
	var (
		best    common.Address
		bestBal *big.Int
	)
	for _, c := range candidates {
		bal, err := balanceOf(ctx, a.caller, pool, c)
		if err != nil {
			return common.Address{}, false, err
		}
		if bal.Sign() > 0 && (bestBal == nil || bal.Cmp(bestBal) > 0) {
			best, bestBal = c, bal
		}
	}
	return best, bestBal != nil, nil
}
