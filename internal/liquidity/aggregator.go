// Package liquidity values a token's pools, tracks their history and
// produces the liquidity risk sub-score.
package liquidity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"sentinel-ledger/internal/dex"
	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// PoolFinder discovers pools and exposes the per-family probers.
// Implemented by *dex.Discovery.
type PoolFinder interface {
	Discover(ctx context.Context, token common.Address) []*dex.Pool
	Prober(dexID domain.DEX) (dex.PoolProber, bool)
}

// Signal is the liquidity assessment of one token.
type Signal struct {
	PoolCount      int
	TotalUSD       float64
	Locked         bool
	DeployerOwnsLP bool
	RemovedEarly   bool
	Score          float64
	Flags          []string

	// Pools are the merged rows to persist with the analysis.
	Pools []*domain.LiquidityPool
}

// HasLiquidity reports whether any pool holds value.
func (s *Signal) HasLiquidity() bool {
	return s.TotalUSD > 0
}

// Aggregator assesses token liquidity.
type Aggregator struct {
	finder       PoolFinder
	pools        storage.PoolStore
	observations storage.ObservationStore
	valuer       Valuer
	minUSD       float64
	lockers      map[common.Address]struct{}
	window       time.Duration
	removalPct   float64
	now          func() time.Time
	logger       zerolog.Logger
}

// Options contains configuration for creating an Aggregator.
type Options struct {
	Finder       PoolFinder
	Pools        storage.PoolStore
	Observations storage.ObservationStore // optional

	WETHPriceUSD        float64
	MinLiquidityUSD     float64
	Lockers             []string
	EarlyRemovalWindow  time.Duration
	EarlyRemovalPercent float64

	Now    func() time.Time
	Logger zerolog.Logger
}

// NewAggregator creates a new liquidity aggregator.
func NewAggregator(opts Options) *Aggregator {
	if opts.WETHPriceUSD <= 0 {
		opts.WETHPriceUSD = 2500
	}
	if opts.MinLiquidityUSD <= 0 {
		opts.MinLiquidityUSD = 5000
	}
	if opts.EarlyRemovalWindow <= 0 {
		opts.EarlyRemovalWindow = 72 * time.Hour
	}
	if opts.EarlyRemovalPercent <= 0 {
		opts.EarlyRemovalPercent = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	lockers := make(map[common.Address]struct{}, len(opts.Lockers))
	for _, l := range opts.Lockers {
		if common.IsHexAddress(l) {
			lockers[common.HexToAddress(l)] = struct{}{}
		}
	}

	return &Aggregator{
		finder:       opts.Finder,
		pools:        opts.Pools,
		observations: opts.Observations,
		valuer:       NewValuer(opts.WETHPriceUSD),
		minUSD:       opts.MinLiquidityUSD,
		lockers:      lockers,
		window:       opts.EarlyRemovalWindow,
		removalPct:   opts.EarlyRemovalPercent,
		now:          opts.Now,
		logger:       opts.Logger,
	}
}

// Assess discovers the token's pools, values them, merges them with their
// stored history and scores the result. Pool rows are returned, not saved.
func (a *Aggregator) Assess(ctx context.Context, token *domain.Token) (*Signal, error) {
	if token == nil {
		return nil, storage.ErrInvalidInput
	}
	found := a.finder.Discover(ctx, common.HexToAddress(token.Address))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// One pool whose LP sits with a known locker marks the token as locked.
	sig := &Signal{PoolCount: len(found)}

	now := a.now()
	for _, p := range found {
		row, err := a.track(ctx, token, p, now)
		if err != nil {
			return nil, err
		}
		sig.Pools = append(sig.Pools, row)
		sig.TotalUSD += row.CurrentLiquidityUSD
		if row.Locked {
			sig.Locked = true
		}
		if row.LPHolder != nil && *row.LPHolder == token.Deployer {
			sig.DeployerOwnsLP = true
		}
		if row.RemovedEarly {
			sig.RemovedEarly = true
		}
	}

	sig.Score, sig.Flags = Score(Inputs{
		PoolCount:      sig.PoolCount,
		TotalUSD:       sig.TotalUSD,
		Locked:         sig.Locked,
		DeployerOwnsLP: sig.DeployerOwnsLP,
		RemovedEarly:   sig.RemovedEarly,
	}, a.minUSD)

	a.logger.Debug().
		Str("token", token.Address).
		Str("chain", token.Chain).
		Int("pools", sig.PoolCount).
		Float64("total_usd", sig.TotalUSD).
		Float64("score", sig.Score).
		Msg("liquidity assessed")

	return sig, nil
}

// track turns one probe result into the pool row to persist.
func (a *Aggregator) track(ctx context.Context, token *domain.Token, p *dex.Pool, now time.Time) (*domain.LiquidityPool, error) {
	poolAddr := domain.NormalizeAddress(p.Address.Hex())
	nowMs := now.UnixMilli()

	prior, err := a.pools.Get(ctx, token.Chain, poolAddr)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load pool %s: %w", poolAddr, err)
	}

	var row *domain.LiquidityPool
	if prior != nil {
		row = prior.Clone()
	} else {
		row = &domain.LiquidityPool{
			Chain:        token.Chain,
			PoolAddress:  poolAddr,
			TokenAddress: token.Address,
			CreatedAt:    nowMs,
		}
	}
	row.DEX = p.DEX
	row.Paired = p.Paired.Asset
	row.PairedToken = domain.NormalizeAddress(p.Paired.Address.Hex())
	row.Variant = p.Variant.Name
	row.UpdatedAt = nowMs

	usd := a.valuer.PoolUSD(p.Paired.Asset, p.ReservePaired)
	row.CurrentLiquidityUSD = usd
	if row.InitialLiquidityUSD == 0 && usd > 0 {
		row.InitialLiquidityUSD = usd
	}
	if row.FirstLiquidityAt == nil && usd > 0 {
		first := nowMs
		row.FirstLiquidityAt = &first
	}
	if usd > row.PeakLiquidityUSD {
		row.PeakLiquidityUSD = usd
	}
	if peak := a.observedPeak(ctx, row); peak > row.PeakLiquidityUSD {
		row.PeakLiquidityUSD = peak
	}

	a.checkEarlyRemoval(row, nowMs)
	a.resolveHolder(ctx, token, p, row)
	a.observe(ctx, token, p, row, nowMs)

	return row, nil
}

// checkEarlyRemoval flags a pool whose value fell far below its peak
// within the early window after liquidity first appeared. The flag sticks.
func (a *Aggregator) checkEarlyRemoval(row *domain.LiquidityPool, nowMs int64) {
	if row.FirstLiquidityAt == nil || row.PeakLiquidityUSD <= 0 {
		return
	}
	if nowMs-*row.FirstLiquidityAt > a.window.Milliseconds() {
		return
	}
	threshold := row.PeakLiquidityUSD * (1 - a.removalPct/100)
	if row.CurrentLiquidityUSD >= threshold {
		return
	}
	pct := (row.PeakLiquidityUSD - row.CurrentLiquidityUSD) / row.PeakLiquidityUSD * 100
	row.RemovedEarly = true
	if pct > row.RemovalPct {
		row.RemovalPct = pct
	}
}

// resolveHolder sets the LP holder and lock status. Families without
// fungible LP tokens leave the holder unknown, which counts as unlocked.
func (a *Aggregator) resolveHolder(ctx context.Context, token *domain.Token, p *dex.Pool, row *domain.LiquidityPool) {
	row.Locked = false
	row.LPHolder = nil

	prober, ok := a.finder.Prober(p.DEX)
	if !ok {
		return
	}
	resolver, ok := prober.(dex.LPHolderResolver)
	if !ok {
		return
	}

	candidates := make([]common.Address, 0, len(a.lockers)+1)
	if common.IsHexAddress(token.Deployer) {
		candidates = append(candidates, common.HexToAddress(token.Deployer))
	}
	for l := range a.lockers {
		candidates = append(candidates, l)
	}

	holder, found, err := resolver.LPHolder(ctx, p.Address, candidates)
	if err != nil {
		a.logger.Debug().Err(err).Str("pool", row.PoolAddress).Msg("lp holder lookup failed")
		return
	}
	if !found {
		return
	}
	h := domain.NormalizeAddress(holder.Hex())
	row.LPHolder = &h
	_, row.Locked = a.lockers[holder]
}

// observedPeak returns the highest recorded observation of a pool.
func (a *Aggregator) observedPeak(ctx context.Context, row *domain.LiquidityPool) float64 {
	if a.observations == nil {
		return 0
	}
	obs, err := a.observations.ListByPool(ctx, row.Chain, row.PoolAddress)
	if err != nil {
		a.logger.Warn().Err(err).Str("pool", row.PoolAddress).Msg("load observations failed")
		return 0
	}
	var peak float64
	for _, o := range obs {
		if o.LiquidityUSD > peak {
			peak = o.LiquidityUSD
		}
	}
	return peak
}

func (a *Aggregator) observe(ctx context.Context, token *domain.Token, p *dex.Pool, row *domain.LiquidityPool, nowMs int64) {
	if a.observations == nil {
		return
	}
	o := &domain.PoolObservation{
		Chain:         row.Chain,
		PoolAddress:   row.PoolAddress,
		TokenAddress:  row.TokenAddress,
		ObservedAt:    nowMs,
		LiquidityUSD:  row.CurrentLiquidityUSD,
		ReserveToken:  TokenUnits(p.ReserveToken, token.Decimals),
		ReservePaired: a.valuer.Units(p.Paired.Asset, p.ReservePaired),
	}
	if err := a.observations.Insert(ctx, o); err != nil {
		a.logger.Warn().Err(err).Str("pool", row.PoolAddress).Msg("record observation failed")
	}
}
