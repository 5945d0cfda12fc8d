// Package dex finds a token's liquidity pools by probing DEX factories over
// a small fixed set of (paired asset, pool variant) combinations.
package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/observability"
)

// PairedToken is a canonical asset pools are searched against.
type PairedToken struct {
	Asset   domain.PairedAsset
	Address common.Address
}

// Variant is one pool flavor of a DEX family: a fee tier for
// concentrated-liquidity pools, or the stable flag for solidly-style pools.
type Variant struct {
	Name    string
	FeeTier uint32
	Stable  bool
}

// Pool is a discovered pool with its state at probe time.
type Pool struct {
	DEX     domain.DEX
	Address common.Address
	Token   common.Address
	Paired  PairedToken
	Variant Variant

	Token0 common.Address
	Token1 common.Address

	// Raw reserves in token units. Nil when unreadable.
	ReserveToken  *big.Int
	ReservePaired *big.Int

	// RawLiquidity is the in-range liquidity of concentrated pools.
	RawLiquidity *big.Int
}

// PoolProber is one DEX family's factory lookup.
type PoolProber interface {
	// DEX returns the family identifier stored on pool rows.
	DEX() domain.DEX
	// Variants lists the pool flavors to probe, in probe order.
	Variants() []Variant
	// Probe returns the pool for (token, paired, variant), or nil when the
	// factory returns the zero address.
	Probe(ctx context.Context, token common.Address, paired PairedToken, v Variant) (*Pool, error)
}

// LPHolderResolver is implemented by families whose LP positions are
// fungible tokens held at the pool address.
type LPHolderResolver interface {
	// LPHolder returns the candidate holding the most LP tokens of pool, or
	// false if none holds any.
	LPHolder(ctx context.Context, pool common.Address, candidates []common.Address) (common.Address, bool, error)
}

// Discovery runs every prober across the paired-asset list.
type Discovery struct {
	probers []PoolProber
	paired  []PairedToken
	logger  zerolog.Logger
}

// DiscoveryOptions contains configuration for creating a Discovery.
type DiscoveryOptions struct {
	Probers []PoolProber
	Paired  []PairedToken
	Logger  zerolog.Logger
}

// NewDiscovery creates a new pool discovery.
func NewDiscovery(opts DiscoveryOptions) *Discovery {
	return &Discovery{
		probers: opts.Probers,
		paired:  opts.Paired,
		logger:  opts.Logger,
	}
}

// Prober returns the prober for a DEX identifier.
func (d *Discovery) Prober(dexID domain.DEX) (PoolProber, bool) {
	for _, p := range d.probers {
		if p.DEX() == dexID {
			return p, true
		}
	}
	return nil, false
}

// Discover returns at most one pool per DEX family: the first combination,
// in paired-asset then variant order, that has a pool. Probe errors are
// logged at debug level and treated as "no pool here".
func (d *Discovery) Discover(ctx context.Context, token common.Address) []*Pool {
	var pools []*Pool
	for _, prober := range d.probers {
		if p := d.discoverFamily(ctx, prober, token); p != nil {
			pools = append(pools, p)
		}
	}
	return pools
}

func (d *Discovery) discoverFamily(ctx context.Context, prober PoolProber, token common.Address) *Pool {
	for _, paired := range d.paired {
		if paired.Address == token {
			continue
		}
		for _, v := range prober.Variants() {
			if ctx.Err() != nil {
				return nil
			}
			pool, err := prober.Probe(ctx, token, paired, v)
			if err != nil {
				observability.RecordPoolProbe(string(prober.DEX()), "error")
				d.logger.Debug().Err(err).
					Str("dex", string(prober.DEX())).
					Str("token", token.Hex()).
					Str("paired", string(paired.Asset)).
					Str("variant", v.Name).
					Msg("pool probe failed")
				continue
			}
			if pool == nil {
				observability.RecordPoolProbe(string(prober.DEX()), "none")
				continue
			}
			observability.RecordPoolProbe(string(prober.DEX()), "found")
			d.logger.Info().
				Str("dex", string(prober.DEX())).
				Str("token", token.Hex()).
				Str("pool", pool.Address.Hex()).
				Str("variant", v.Name).
				Msg("pool found")
			return pool
		}
	}
	return nil
}

// splitReserves maps (reserve0, reserve1) onto the token and paired sides.
func splitReserves(token, token0 common.Address, r0, r1 *big.Int) (reserveToken, reservePaired *big.Int) {
	if token == token0 {
		return r0, r1
	}
	return r1, r0
}
