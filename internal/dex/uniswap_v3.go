package dex

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"sentinel-ledger/internal/chain"
	"sentinel-ledger/internal/domain"
)

// UniswapV3FeeTiers are the standard fee tiers in hundredths of a bip.
var UniswapV3FeeTiers = []uint32{100, 500, 3000, 10000}

// UniswapV3 probes a Uniswap V3 style factory.
type UniswapV3 struct {
	caller  chain.Caller
	factory *chain.Contract
}

var _ PoolProber = (*UniswapV3)(nil)

// NewUniswapV3 creates a prober for the factory at address.
func NewUniswapV3(caller chain.Caller, factory common.Address) *UniswapV3 {
	return &UniswapV3{
		caller:  caller,
		factory: chain.NewContract(caller, factory, uniswapV3FactoryABI),
	}
}

// DEX implements PoolProber.
func (u *UniswapV3) DEX() domain.DEX {
	return domain.DEXUniswapV3
}

// Variants implements PoolProber.
func (u *UniswapV3) Variants() []Variant {
	out := make([]Variant, 0, len(UniswapV3FeeTiers))
	for _, fee := range UniswapV3FeeTiers {
		out = append(out, Variant{Name: strconv.FormatUint(uint64(fee), 10), FeeTier: fee})
	}
	return out
}

// Probe implements PoolProber. Reserves are the ERC-20 balances held by the
// pool, which for concentrated liquidity includes out-of-range positions.
func (u *UniswapV3) Probe(ctx context.Context, token common.Address, paired PairedToken, v Variant) (*Pool, error) {
	fee := new(big.Int).SetUint64(uint64(v.FeeTier))
	addr, err := u.factory.CallAddress(ctx, "getPool", token, paired.Address, fee)
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, nil
	}

	pc := chain.NewContract(u.caller, addr, uniswapV3PoolABI)
	token0, err := pc.CallAddress(ctx, "token0")
	if err != nil {
		return nil, err
	}
	token1, err := pc.CallAddress(ctx, "token1")
	if err != nil {
		return nil, err
	}
	liquidity, err := callBig(ctx, pc, "liquidity")
	if err != nil {
		return nil, err
	}

	reserveToken, err := balanceOf(ctx, u.caller, token, addr)
	if err != nil {
		return nil, err
	}
	reservePaired, err := balanceOf(ctx, u.caller, paired.Address, addr)
	if err != nil {
		return nil, err
	}

	return &Pool{
		DEX:           domain.DEXUniswapV3,
		Address:       addr,
		Token:         token,
		Paired:        paired,
		Variant:       v,
		Token0:        token0,
		Token1:        token1,
		ReserveToken:  reserveToken,
		ReservePaired: reservePaired,
		RawLiquidity:  liquidity,
	}, nil
}

func callBig(ctx context.Context, c *chain.Contract, method string, args ...any) (*big.Int, error) {
	values, err := c.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected return type %T", method, values[0])
	}
	return v, nil
}

func balanceOf(ctx context.Context, caller chain.Caller, token, holder common.Address) (*big.Int, error) {
	return callBig(ctx, chain.NewContract(caller, token, erc20BalanceABI), "balanceOf", holder)
}
