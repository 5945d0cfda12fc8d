// Package orchestrator runs one full risk analysis of a token and the
// sweep that finds tokens still waiting for one.
//
// Flow: ownership → contract risk → liquidity → deployer → scoring →
// graph → persist
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/graph"
	"sentinel-ledger/internal/liquidity"
	"sentinel-ledger/internal/observability"
	"sentinel-ledger/internal/ownership"
	"sentinel-ledger/internal/scoring"
	"sentinel-ledger/internal/storage"
	"sentinel-ledger/internal/tasks"
)

// OwnershipAnalyzer is implemented by *ownership.Analyzer.
type OwnershipAnalyzer interface {
	Analyze(ctx context.Context, token *domain.Token) (*ownership.Result, error)
}

// LiquidityAssessor is implemented by *liquidity.Aggregator.
type LiquidityAssessor interface {
	Assess(ctx context.Context, token *domain.Token) (*liquidity.Signal, error)
}

// DeployerProfiler is implemented by *deployer.Profiler.
type DeployerProfiler interface {
	Profile(ctx context.Context, deployer, chain, token string) (*domain.Wallet, error)
}

// Enqueuer schedules an analysis task.
type Enqueuer interface {
	Enqueue(ctx context.Context, address, chain string) error
}

// Orchestrator sequences the analyzers for one token and persists the
// outcome in a single write.
type Orchestrator struct {
	tokens    storage.TokenStore
	writer    storage.AnalysisWriter
	ownership OwnershipAnalyzer
	liquidity LiquidityAssessor
	deployer  DeployerProfiler
	scorer    *scoring.Engine
	graph     *graph.WalletGraph
	explainer Explainer
	explainTO time.Duration
	enqueuer  Enqueuer
	now       func() time.Time
	logger    zerolog.Logger
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Tokens    storage.TokenStore
	Writer    storage.AnalysisWriter
	Ownership OwnershipAnalyzer
	Liquidity LiquidityAssessor
	Deployer  DeployerProfiler
	Scorer    *scoring.Engine

	// Optional
	Graph          *graph.WalletGraph
	Explainer      Explainer
	ExplainTimeout time.Duration // default 10s
	Enqueuer       Enqueuer      // nil makes the sweep analyze inline

	Now    func() time.Time
	Logger zerolog.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ExplainTimeout <= 0 {
		opts.ExplainTimeout = 10 * time.Second
	}
	return &Orchestrator{
		tokens:    opts.Tokens,
		writer:    opts.Writer,
		ownership: opts.Ownership,
		liquidity: opts.Liquidity,
		deployer:  opts.Deployer,
		scorer:    opts.Scorer,
		graph:     opts.Graph,
		explainer: opts.Explainer,
		explainTO: opts.ExplainTimeout,
		enqueuer:  opts.Enqueuer,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

// Outcome is the persisted result of one analysis pass.
type Outcome struct {
	Token     *domain.Token
	Breakdown scoring.Result
	Cluster   domain.ClusterRisk
}

// AnalyzeToken runs the pipeline once for (address, chain). Nothing is
// written unless every stage completed; the caller's task layer retries.
// A missing token row yields an error matching storage.ErrNotFound.
func (o *Orchestrator) AnalyzeToken(ctx context.Context, address, chain string) (*Outcome, error) {
	address = domain.NormalizeAddress(address)

	token, err := o.tokens.Get(ctx, address, chain)
	if err != nil {
		return nil, fmt.Errorf("load token %s on %s: %w", address, chain, err)
	}
	log := o.logger.With().Str("token", address).Str("chain", chain).Logger()

	// Stage 1: ownership and the contract risk derived from it
	var (
		ownershipScore, contractScore float64
		ownershipFlags, contractFlags []string
		analysis                      *domain.ContractAnalysis
	)
	own, err := o.ownership.Analyze(ctx, token)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		log.Warn().Err(err).Msg("ownership analysis failed, using defaults")
		ownershipScore, contractScore = ownership.DefaultScore, ownership.DefaultScore
		ownershipFlags = []string{ownership.FlagAnalysisFailed}
	default:
		ownershipScore, ownershipFlags = own.Score, own.Flags
		contractScore, contractFlags = ownership.ContractRisk(own.Capabilities)
		analysis = own.Analysis
	}

	// Stage 2: liquidity
	var (
		liquidityScore float64
		liquidityFlags []string
		pools          []*domain.LiquidityPool
	)
	sig, err := o.liquidity.Assess(ctx, token)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		log.Warn().Err(err).Msg("liquidity analysis failed, using defaults")
		liquidityScore = liquidity.UnknownScore
		liquidityFlags = []string{liquidity.FlagAnalysisFailed}
	default:
		liquidityScore, liquidityFlags, pools = sig.Score, sig.Flags, sig.Pools
	}

	// Stage 3: deployer
	wallet, err := o.deployer.Profile(ctx, token.Deployer, chain, token.Address)
	if err != nil {
		return nil, fmt.Errorf("profile deployer %s: %w", token.Deployer, err)
	}

	// Stage 4: scoring
	breakdown := o.scorer.Score(scoring.Inputs{
		Contract:  contractScore,
		Liquidity: liquidityScore,
		Ownership: ownershipScore,
		Deployer:  wallet.DeployerScore,
	})

	// Stage 5: graph. Edges go in first so the cluster includes this token.
	o.graph.RecordDeployment(ctx, token)
	o.graph.RecordPools(ctx, token, pools)
	cluster := o.graph.ClusterRisk(ctx, token.Deployer, chain)

	flags := MergeFlags(ownershipFlags, contractFlags, liquidityFlags, wallet.Flags, cluster.Flags)

	// Stage 6: persist
	now := o.now().UnixMilli()
	updated := token.Clone()
	updated.ContractScore = &breakdown.Contract
	updated.LiquidityScore = &breakdown.Liquidity
	updated.OwnershipScore = &breakdown.Ownership
	updated.DeployerScore = &breakdown.Deployer
	updated.FinalScore = &breakdown.Final
	updated.RiskLevel = breakdown.Level
	updated.Flags = flags
	updated.AnalyzedAt = &now
	if text, ok := o.explain(ctx, updated, log); ok {
		updated.Explanation = &text
	}

	rec := &storage.AnalysisRecord{
		Token:    updated,
		Contract: analysis,
		Pools:    pools,
		Wallet:   wallet,
		History: &domain.RiskHistory{
			TokenAddress:   address,
			Chain:          chain,
			ContractScore:  breakdown.Contract,
			LiquidityScore: breakdown.Liquidity,
			OwnershipScore: breakdown.Ownership,
			DeployerScore:  breakdown.Deployer,
			FinalScore:     breakdown.Final,
			RiskLevel:      breakdown.Level,
			Flags:          append([]string(nil), flags...),
			RecordedAt:     now,
		},
	}
	if err := o.writer.SaveAnalysis(ctx, rec); err != nil {
		return nil, fmt.Errorf("save analysis of %s: %w", address, err)
	}

	observability.RecordRiskLevel(string(breakdown.Level))
	observability.MarkAnalysisSuccess(now / 1000)
	log.Info().
		Float64("final", breakdown.Final).
		Str("level", string(breakdown.Level)).
		Int("flags", len(flags)).
		Int("cluster", cluster.ClusterSize).
		Msg("token analyzed")

	return &Outcome{Token: updated, Breakdown: breakdown, Cluster: cluster}, nil
}

// Handle implements tasks.Handler. A missing token is permanent; every
// other failure is retried.
func (o *Orchestrator) Handle(ctx context.Context, t tasks.Task) tasks.Result {
	_, err := o.AnalyzeToken(ctx, t.Address, t.Chain)
	switch {
	case err == nil:
		return tasks.Success()
	case errors.Is(err, storage.ErrNotFound):
		return tasks.Permanent(err)
	default:
		return tasks.Retryable(err)
	}
}

// RunPendingAnalyses schedules up to limit never-analyzed tokens and
// returns how many were scheduled. Without an Enqueuer each token is
// analyzed inline instead.
func (o *Orchestrator) RunPendingAnalyses(ctx context.Context, limit int) (int, error) {
	pending, err := o.tokens.ListPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending tokens: %w", err)
	}

	var (
		scheduled int
		errs      []error
	)
	for _, t := range pending {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if o.enqueuer != nil {
			err = o.enqueuer.Enqueue(ctx, t.Address, t.Chain)
		} else {
			_, err = o.AnalyzeToken(ctx, t.Address, t.Chain)
		}
		if err != nil {
			o.logger.Warn().Err(err).Str("token", t.Address).Str("chain", t.Chain).Msg("pending analysis not scheduled")
			errs = append(errs, err)
			continue
		}
		scheduled++
	}
	return scheduled, errors.Join(errs...)
}

// MergeFlags concatenates flag lists in order, dropping repeats.
func MergeFlags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, l := range lists {
		for _, f := range l {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
