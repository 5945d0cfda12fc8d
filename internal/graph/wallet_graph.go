package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/observability"
	"sentinel-ledger/internal/storage"
)

// WalletGraph is the pipeline's view of the graph. Every write and query
// is bounded by a timeout and degrades to a logged no-op on failure.
// A nil Store makes every call a no-op.
type WalletGraph struct {
	store   Store
	depth   int
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// WalletGraphOptions contains configuration for creating a WalletGraph.
type WalletGraphOptions struct {
	Store   Store
	Depth   int           // cluster traversal depth, clamped to [1, 3]
	Timeout time.Duration // per call, default 5s
	Now     func() time.Time
	Logger  zerolog.Logger
}

// NewWalletGraph creates a new best-effort graph wrapper.
func NewWalletGraph(opts WalletGraphOptions) *WalletGraph {
	if opts.Depth == 0 {
		opts.Depth = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &WalletGraph{
		store:   opts.Store,
		depth:   ClampDepth(opts.Depth),
		timeout: opts.Timeout,
		now:     opts.Now,
		logger:  opts.Logger,
	}
}

// Enabled reports whether a backend is configured.
func (g *WalletGraph) Enabled() bool {
	return g != nil && g.store != nil
}

// RecordEdge merges one edge.
func (g *WalletGraph) RecordEdge(ctx context.Context, e domain.Edge) {
	if !g.Enabled() {
		return
	}
	if e.ObservedAt == 0 {
		e.ObservedAt = g.now().UnixMilli()
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.store.MergeEdge(ctx, e); err != nil {
		g.fail("merge_edge", err, e.From.Address)
	}
}

// RecordDeployment links a token to its deployer.
func (g *WalletGraph) RecordDeployment(ctx context.Context, t *domain.Token) {
	g.RecordEdge(ctx, domain.Edge{
		From:       WalletRef(t.Deployer, t.Chain),
		To:         TokenRef(t.Address, t.Chain),
		Kind:       domain.EdgeDeployed,
		TxHash:     t.DeployTx,
		ObservedAt: t.DeployedAt,
	})
}

// RecordFunding links a funder to the funded wallet.
func (g *WalletGraph) RecordFunding(ctx context.Context, from, to, chain, txHash, valueWei string) {
	g.RecordEdge(ctx, domain.Edge{
		From:     WalletRef(from, chain),
		To:       WalletRef(to, chain),
		Kind:     domain.EdgeFunded,
		TxHash:   txHash,
		ValueWei: valueWei,
	})
}

// RecordPools links a token to its pools, adding a removal edge for pools
// flagged with early liquidity removal.
func (g *WalletGraph) RecordPools(ctx context.Context, t *domain.Token, pools []*domain.LiquidityPool) {
	for _, p := range pools {
		for _, e := range poolEdges(t.Chain, p) {
			g.RecordEdge(ctx, e)
		}
	}
}

func poolEdges(chain string, p *domain.LiquidityPool) []domain.Edge {
	token := TokenRef(p.TokenAddress, chain)
	pool := PoolRef(p.PoolAddress, chain)
	var observed int64
	if p.FirstLiquidityAt != nil {
		observed = *p.FirstLiquidityAt
	}
	edges := []domain.Edge{{From: token, To: pool, Kind: domain.EdgeAddedLiquidity, ObservedAt: observed}}
	if p.RemovedEarly {
		edges = append(edges, domain.Edge{From: pool, To: token, Kind: domain.EdgeRemovedLiquidity, ObservedAt: p.UpdatedAt})
	}
	return edges
}

// ClusterRisk scores the wallet's neighborhood. Failures yield an empty result.
func (g *WalletGraph) ClusterRisk(ctx context.Context, wallet, chain string) domain.ClusterRisk {
	if !g.Enabled() {
		return domain.ClusterRisk{}
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	nodes, err := g.store.Neighborhood(ctx, WalletRef(wallet, chain), g.depth)
	if err != nil {
		g.fail("cluster", err, wallet)
		return domain.ClusterRisk{}
	}
	score, flags := ClusterScore(len(nodes))
	return domain.ClusterRisk{ClusterSize: len(nodes), Score: score, Flags: flags}
}

// Funders returns the direct funders of a wallet.
func (g *WalletGraph) Funders(ctx context.Context, address, chain string) ([]string, error) {
	if !g.Enabled() {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	funders, err := g.store.Funders(ctx, WalletRef(address, chain))
	if err != nil {
		observability.RecordGraphFailure("funders")
		return nil, fmt.Errorf("funders of %s: %w", address, err)
	}
	return funders, nil
}

func (g *WalletGraph) fail(op string, err error, address string) {
	observability.RecordGraphFailure(op)
	g.logger.Warn().Err(err).Str("op", op).Str("address", address).Msg("graph call failed")
}

// SyncStats summarizes a rebuild.
type SyncStats struct {
	Wallets int
	Tokens  int
	Pools   int
}

// SyncFromStore rebuilds nodes and edges from the relational store. Unlike
// the pipeline calls it reports failures, since it is run by an operator.
func (g *WalletGraph) SyncFromStore(ctx context.Context, tokens storage.TokenStore, pools storage.PoolStore, wallets storage.WalletStore) (SyncStats, error) {
	var stats SyncStats
	if !g.Enabled() {
		return stats, fmt.Errorf("graph store not configured")
	}

	ws, err := wallets.ListAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("list wallets: %w", err)
	}
	for _, w := range ws {
		if err := g.store.MergeNode(ctx, WalletRef(w.Address, w.Chain)); err != nil {
			return stats, fmt.Errorf("merge wallet %s: %w", w.Address, err)
		}
		stats.Wallets++
	}

	ts, err := tokens.ListAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("list tokens: %w", err)
	}
	for _, t := range ts {
		e := domain.Edge{
			From:       WalletRef(t.Deployer, t.Chain),
			To:         TokenRef(t.Address, t.Chain),
			Kind:       domain.EdgeDeployed,
			TxHash:     t.DeployTx,
			ObservedAt: t.DeployedAt,
		}
		if err := g.store.MergeEdge(ctx, e); err != nil {
			return stats, fmt.Errorf("merge deployment %s: %w", t.Address, err)
		}
		stats.Tokens++
	}

	ps, err := pools.ListAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("list pools: %w", err)
	}
	for _, p := range ps {
		for _, e := range poolEdges(p.Chain, p) {
			if err := g.store.MergeEdge(ctx, e); err != nil {
				return stats, fmt.Errorf("merge pool %s: %w", p.PoolAddress, err)
			}
		}
		stats.Pools++
	}

	g.logger.Info().
		Int("wallets", stats.Wallets).
		Int("tokens", stats.Tokens).
		Int("pools", stats.Pools).
		Msg("graph synced from store")
	return stats, nil
}
