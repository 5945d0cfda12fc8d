package liquidity

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel-ledger/internal/dex"
	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage/memory"
)

var (
	tokenAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	deployer   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	locker     = common.HexToAddress("0x00000000000000000000000000000000000010c4")
	v3PoolAddr = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	aeroPool   = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	wethToken  = dex.PairedToken{Asset: domain.PairedWETH, Address: common.HexToAddress("0x4200000000000000000000000000000000000006")}
	usdcToken  = dex.PairedToken{Asset: domain.PairedUSDC, Address: common.HexToAddress("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")}
)

// ether returns n * 10^18 as a raw reserve.
func ether(n float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(n), big.NewFloat(1e18))
	out, _ := f.Int(nil)
	return out
}

func usdcUnits(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

type fakeProber struct {
	id     domain.DEX
	holder common.Address
	found  bool
}

func (p *fakeProber) DEX() domain.DEX        { return p.id }
func (p *fakeProber) Variants() []dex.Variant { return nil }
func (p *fakeProber) Probe(context.Context, common.Address, dex.PairedToken, dex.Variant) (*dex.Pool, error) {
	return nil, nil
}

type resolvingProber struct {
	fakeProber
}

func (p *resolvingProber) LPHolder(_ context.Context, _ common.Address, candidates []common.Address) (common.Address, bool, error) {
	if !p.found {
		return common.Address{}, false, nil
	}
	for _, c := range candidates {
		if c == p.holder {
			return c, true, nil
		}
	}
	return common.Address{}, false, nil
}

type fakeFinder struct {
	pools   []*dex.Pool
	probers map[domain.DEX]dex.PoolProber
}

func (f *fakeFinder) Discover(context.Context, common.Address) []*dex.Pool { return f.pools }

func (f *fakeFinder) Prober(id domain.DEX) (dex.PoolProber, bool) {
	p, ok := f.probers[id]
	return p, ok
}

func testToken() *domain.Token {
	return &domain.Token{
		Address:  domain.NormalizeAddress(tokenAddr.Hex()),
		Chain:    "base",
		Deployer: domain.NormalizeAddress(deployer.Hex()),
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newAggregator(finder *fakeFinder, pools *memory.PoolStore, obs *memory.ObservationStore, c *clock) *Aggregator {
	return NewAggregator(Options{
		Finder:       finder,
		Pools:        pools,
		Observations: obs,
		WETHPriceUSD: 2500,
		Lockers:      []string{locker.Hex()},
		Now:          c.now,
	})
}

func TestScore_NoPools(t *testing.T) {
	score, flags := Score(Inputs{}, 5000)
	assert.Equal(t, 20.0, score)
	assert.Equal(t, []string{FlagNoLiquidity}, flags)
}

func TestScore_LowAndUnlocked(t *testing.T) {
	score, flags := Score(Inputs{PoolCount: 1, TotalUSD: 3000}, 5000)
	assert.Equal(t, 45.0, score)
	assert.Equal(t, []string{"Low initial liquidity (<$5k): ~$3000", FlagNotLocked}, flags)
}

func TestScore_Capped(t *testing.T) {
	score, flags := Score(Inputs{PoolCount: 1, TotalUSD: 100, DeployerOwnsLP: true, RemovedEarly: true}, 5000)
	assert.Equal(t, 100.0, score)
	assert.Len(t, flags, 4)
}

func TestScore_ZeroValuePoolsStillFlagged(t *testing.T) {
	score, flags := Score(Inputs{PoolCount: 2, TotalUSD: 0, Locked: true}, 5000)
	assert.Equal(t, 20.0, score)
	assert.Equal(t, []string{FlagNoLiquidity}, flags)
}

func TestScore_HealthyLockedPool(t *testing.T) {
	score, flags := Score(Inputs{PoolCount: 1, TotalUSD: 50000, Locked: true}, 5000)
	assert.Zero(t, score)
	assert.Empty(t, flags)
}

func TestValuer_PoolUSD(t *testing.T) {
	v := NewValuer(2500)
	assert.InDelta(t, 5000.0, v.PoolUSD(domain.PairedWETH, ether(1)), 1e-6)
	assert.InDelta(t, 2000.0, v.PoolUSD(domain.PairedUSDC, usdcUnits(1000)), 1e-6)
	assert.Zero(t, v.PoolUSD(domain.PairedWETH, nil))
	assert.Zero(t, v.PoolUSD("DAI", big.NewInt(1)))
}

func TestAggregator_NoPools(t *testing.T) {
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	agg := newAggregator(&fakeFinder{}, memory.NewPoolStore(), nil, c)

	sig, err := agg.Assess(context.Background(), testToken())
	require.NoError(t, err)
	assert.Zero(t, sig.PoolCount)
	assert.False(t, sig.HasLiquidity())
	assert.Equal(t, 20.0, sig.Score)
	assert.Equal(t, []string{FlagNoLiquidity}, sig.Flags)
	assert.Empty(t, sig.Pools)
}

func TestAggregator_LockedPool(t *testing.T) {
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	finder := &fakeFinder{
		pools: []*dex.Pool{{
			DEX: domain.DEXAerodrome, Address: aeroPool, Token: tokenAddr, Paired: wethToken,
			Variant: dex.Variant{Name: "volatile"}, ReserveToken: ether(1000), ReservePaired: ether(10),
		}},
		probers: map[domain.DEX]dex.PoolProber{
			domain.DEXAerodrome: &resolvingProber{fakeProber{id: domain.DEXAerodrome, holder: locker, found: true}},
		},
	}
	obs := memory.NewObservationStore()
	agg := newAggregator(finder, memory.NewPoolStore(), obs, c)

	sig, err := agg.Assess(context.Background(), testToken())
	require.NoError(t, err)
	assert.InDelta(t, 50000.0, sig.TotalUSD, 1e-6)
	assert.True(t, sig.Locked)
	assert.False(t, sig.DeployerOwnsLP)
	assert.Zero(t, sig.Score)
	require.Len(t, sig.Pools, 1)

	row := sig.Pools[0]
	assert.Equal(t, domain.NormalizeAddress(aeroPool.Hex()), row.PoolAddress)
	assert.Equal(t, "volatile", row.Variant)
	assert.InDelta(t, 50000.0, row.InitialLiquidityUSD, 1e-6)
	require.NotNil(t, row.FirstLiquidityAt)
	assert.Equal(t, int64(1_700_000_000_000), *row.FirstLiquidityAt)
	require.NotNil(t, row.LPHolder)
	assert.Equal(t, domain.NormalizeAddress(locker.Hex()), *row.LPHolder)

	history, err := obs.ListByPool(context.Background(), "base", row.PoolAddress)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.InDelta(t, 10.0, history[0].ReservePaired, 1e-9)
	assert.InDelta(t, 1000.0, history[0].ReserveToken, 1e-9)
}

func TestAggregator_AnyLockedPoolLocksToken(t *testing.T) {
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	finder := &fakeFinder{
		pools: []*dex.Pool{
			{
				DEX: domain.DEXUniswapV3, Address: v3PoolAddr, Token: tokenAddr, Paired: wethToken,
				Variant: dex.Variant{Name: "3000", FeeTier: 3000}, ReservePaired: ether(4),
			},
			{
				DEX: domain.DEXAerodrome, Address: aeroPool, Token: tokenAddr, Paired: wethToken,
				Variant: dex.Variant{Name: "volatile"}, ReservePaired: ether(10),
			},
		},
		probers: map[domain.DEX]dex.PoolProber{
			domain.DEXUniswapV3: &fakeProber{id: domain.DEXUniswapV3},
			domain.DEXAerodrome: &resolvingProber{fakeProber{id: domain.DEXAerodrome, holder: locker, found: true}},
		},
	}
	agg := newAggregator(finder, memory.NewPoolStore(), nil, c)

	sig, err := agg.Assess(context.Background(), testToken())
	require.NoError(t, err)
	require.Len(t, sig.Pools, 2)
	assert.False(t, sig.Pools[0].Locked, "concentrated pool holder is unknown")
	assert.True(t, sig.Pools[1].Locked)
	assert.True(t, sig.Locked)
	assert.NotContains(t, sig.Flags, FlagNotLocked)
}

func TestAggregator_DeployerHoldsLP(t *testing.T) {
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	finder := &fakeFinder{
		pools: []*dex.Pool{{
			DEX: domain.DEXAerodrome, Address: aeroPool, Token: tokenAddr, Paired: usdcToken,
			Variant: dex.Variant{Name: "volatile"}, ReservePaired: usdcUnits(1000),
		}},
		probers: map[domain.DEX]dex.PoolProber{
			domain.DEXAerodrome: &resolvingProber{fakeProber{id: domain.DEXAerodrome, holder: deployer, found: true}},
		},
	}
	agg := newAggregator(finder, memory.NewPoolStore(), nil, c)

	sig, err := agg.Assess(context.Background(), testToken())
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, sig.TotalUSD, 1e-6)
	assert.False(t, sig.Locked)
	assert.True(t, sig.DeployerOwnsLP)
	// low (15) + not locked (30) + deployer LP (25)
	assert.Equal(t, 70.0, sig.Score)
	assert.Equal(t, []string{"Low initial liquidity (<$5k): ~$2000", FlagNotLocked, FlagDeployerLP}, sig.Flags)
}

func TestAggregator_ConcentratedPoolHolderUnknown(t *testing.T) {
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	finder := &fakeFinder{
		pools: []*dex.Pool{{
			DEX: domain.DEXUniswapV3, Address: v3PoolAddr, Token: tokenAddr, Paired: wethToken,
			Variant: dex.Variant{Name: "3000", FeeTier: 3000}, ReservePaired: ether(4),
		}},
		probers: map[domain.DEX]dex.PoolProber{
			domain.DEXUniswapV3: &fakeProber{id: domain.DEXUniswapV3},
		},
	}
	agg := newAggregator(finder, memory.NewPoolStore(), nil, c)

	sig, err := agg.Assess(context.Background(), testToken())
	require.NoError(t, err)
	require.Len(t, sig.Pools, 1)
	assert.Nil(t, sig.Pools[0].LPHolder)
	assert.False(t, sig.Locked)
	assert.Equal(t, 30.0, sig.Score)
}

func TestAggregator_EarlyRemoval(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	pool := &dex.Pool{
		DEX: domain.DEXAerodrome, Address: aeroPool, Token: tokenAddr, Paired: wethToken,
		Variant: dex.Variant{Name: "volatile"}, ReservePaired: ether(10),
	}
	finder := &fakeFinder{
		pools: []*dex.Pool{pool},
		probers: map[domain.DEX]dex.PoolProber{
			domain.DEXAerodrome: &resolvingProber{fakeProber{id: domain.DEXAerodrome, holder: locker, found: true}},
		},
	}
	pools := memory.NewPoolStore()
	agg := newAggregator(finder, pools, memory.NewObservationStore(), c)

	first, err := agg.Assess(ctx, testToken())
	require.NoError(t, err)
	require.NoError(t, pools.Upsert(ctx, first.Pools[0]))
	assert.False(t, first.RemovedEarly)

	// 24h later, 80% of the paired reserve is gone.
	c.t = c.t.Add(24 * time.Hour)
	pool.ReservePaired = ether(2)
	second, err := agg.Assess(ctx, testToken())
	require.NoError(t, err)
	require.NoError(t, pools.Upsert(ctx, second.Pools[0]))

	row := second.Pools[0]
	assert.True(t, second.RemovedEarly)
	assert.InDelta(t, 80.0, row.RemovalPct, 1e-6)
	assert.InDelta(t, 50000.0, row.PeakLiquidityUSD, 1e-6)
	assert.InDelta(t, 50000.0, row.InitialLiquidityUSD, 1e-6)
	assert.Contains(t, second.Flags, FlagRemovedEarly)

	// Liquidity coming back does not clear the flag.
	c.t = c.t.Add(time.Hour)
	pool.ReservePaired = ether(10)
	third, err := agg.Assess(ctx, testToken())
	require.NoError(t, err)
	assert.True(t, third.RemovedEarly)
	assert.InDelta(t, 80.0, third.Pools[0].RemovalPct, 1e-6)
}

func TestAggregator_DropAfterWindowIsNotEarly(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	pool := &dex.Pool{
		DEX: domain.DEXAerodrome, Address: aeroPool, Token: tokenAddr, Paired: wethToken,
		Variant: dex.Variant{Name: "volatile"}, ReservePaired: ether(10),
	}
	finder := &fakeFinder{pools: []*dex.Pool{pool}}
	pools := memory.NewPoolStore()
	agg := newAggregator(finder, pools, nil, c)

	first, err := agg.Assess(ctx, testToken())
	require.NoError(t, err)
	require.NoError(t, pools.Upsert(ctx, first.Pools[0]))

	c.t = c.t.Add(73 * time.Hour)
	pool.ReservePaired = ether(1)
	second, err := agg.Assess(ctx, testToken())
	require.NoError(t, err)
	assert.False(t, second.RemovedEarly)
	assert.NotContains(t, second.Flags, FlagRemovedEarly)
}

func TestAggregator_PeakFromObservations(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	obs := memory.NewObservationStore()
	poolKey := domain.NormalizeAddress(aeroPool.Hex())
	require.NoError(t, obs.Insert(ctx, &domain.PoolObservation{
		Chain: "base", PoolAddress: poolKey, ObservedAt: 1_699_999_000_000, LiquidityUSD: 40000,
	}))

	pools := memory.NewPoolStore()
	first := int64(1_699_990_000_000)
	require.NoError(t, pools.Upsert(ctx, &domain.LiquidityPool{
		Chain: "base", PoolAddress: poolKey, TokenAddress: testToken().Address,
		InitialLiquidityUSD: 10000, PeakLiquidityUSD: 10000, FirstLiquidityAt: &first,
	}))

	finder := &fakeFinder{pools: []*dex.Pool{{
		DEX: domain.DEXAerodrome, Address: aeroPool, Token: tokenAddr, Paired: wethToken,
		Variant: dex.Variant{Name: "volatile"}, ReservePaired: ether(2),
	}}}
	agg := newAggregator(finder, pools, obs, c)

	sig, err := agg.Assess(ctx, testToken())
	require.NoError(t, err)
	row := sig.Pools[0]
	assert.InDelta(t, 40000.0, row.PeakLiquidityUSD, 1e-6)
	assert.InDelta(t, 10000.0, row.InitialLiquidityUSD, 1e-6)
	assert.Equal(t, first, *row.FirstLiquidityAt)
	assert.True(t, row.RemovedEarly)
	assert.InDelta(t, 75.0, row.RemovalPct, 1e-6)
}
