package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/liquidity"
	"sentinel-ledger/internal/ownership"
)

// ErrUnknownChain is returned when no analyzer is configured for a chain.
var ErrUnknownChain = errors.New("chain not configured")

// ChainOwnership routes ownership analysis by token chain.
type ChainOwnership map[string]OwnershipAnalyzer

// Analyze implements OwnershipAnalyzer.
func (m ChainOwnership) Analyze(ctx context.Context, token *domain.Token) (*ownership.Result, error) {
	a, ok := m[token.Chain]
	if !ok {
		return nil, fmt.Errorf("ownership on %s: %w", token.Chain, ErrUnknownChain)
	}
	return a.Analyze(ctx, token)
}

// ChainLiquidity routes liquidity assessment by token chain.
type ChainLiquidity map[string]LiquidityAssessor

// Assess implements LiquidityAssessor.
func (m ChainLiquidity) Assess(ctx context.Context, token *domain.Token) (*liquidity.Signal, error) {
	a, ok := m[token.Chain]
	if !ok {
		return nil, fmt.Errorf("liquidity on %s: %w", token.Chain, ErrUnknownChain)
	}
	return a.Assess(ctx, token)
}

// ChainProfilers routes deployer profiling by chain.
type ChainProfilers map[string]DeployerProfiler

// Profile implements DeployerProfiler.
func (m ChainProfilers) Profile(ctx context.Context, deployer, chain, token string) (*domain.Wallet, error) {
	p, ok := m[chain]
	if !ok {
		return nil, fmt.Errorf("deployer on %s: %w", chain, ErrUnknownChain)
	}
	return p.Profile(ctx, deployer, chain, token)
}
