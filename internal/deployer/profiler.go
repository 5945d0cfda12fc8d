// Package deployer profiles the wallets that deploy tokens.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// DefaultRugThreshold is the liquidity score above which a token counts
// as a suspected rug.
const DefaultRugThreshold = 70

// FunderLookup returns the direct funders of a wallet.
type FunderLookup interface {
	Funders(ctx context.Context, address, chain string) ([]string, error)
}

// Correlator inspects the same address on another chain.
type Correlator interface {
	Chain() string
	Correlate(ctx context.Context, address string) (*domain.CrossChainSummary, error)
}

// Profiler recomputes a deployer's wallet profile from stored tokens.
type Profiler struct {
	tokens       storage.TokenStore
	wallets      storage.WalletStore
	crossChain   Correlator
	funders      FunderLookup
	rugThreshold float64
	now          func() time.Time
	logger       zerolog.Logger
}

// Options contains configuration for creating a Profiler.
type Options struct {
	Tokens     storage.TokenStore
	Wallets    storage.WalletStore
	CrossChain Correlator   // optional
	Funders    FunderLookup // optional

	RugThreshold float64

	Now    func() time.Time
	Logger zerolog.Logger
}

// NewProfiler creates a new deployer profiler.
func NewProfiler(opts Options) *Profiler {
	if opts.RugThreshold <= 0 {
		opts.RugThreshold = DefaultRugThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Profiler{
		tokens:       opts.Tokens,
		wallets:      opts.Wallets,
		crossChain:   opts.CrossChain,
		funders:      opts.Funders,
		rugThreshold: opts.RugThreshold,
		now:          opts.Now,
		logger:       opts.Logger,
	}
}

// Profile returns the freshly computed wallet row for deployer on chain.
// The result is not persisted; every field is recomputed on each call.
// token is the address under analysis: it counts toward TotalDeployed but
// never toward SuspectedRugs, since its own stored liquidity score would
// otherwise feed back into its next analysis. Pass "" to count every token.
func (p *Profiler) Profile(ctx context.Context, deployer, chain, token string) (*domain.Wallet, error) {
	deployer = domain.NormalizeAddress(deployer)
	token = domain.NormalizeAddress(token)
	now := p.now()

	prior, err := p.wallets.Get(ctx, deployer, chain)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load wallet %s: %w", deployer, err)
	}

	deployed, err := p.tokens.ListByDeployer(ctx, deployer, chain)
	if err != nil {
		return nil, fmt.Errorf("list tokens of %s: %w", deployer, err)
	}

	w := &domain.Wallet{
		Address:        deployer,
		Chain:          chain,
		FirstSeen:      now.UnixMilli(),
		TotalDeployed:  len(deployed),
		SuspectedRugs:  CountSuspectedRugs(priorTokens(deployed, token), p.rugThreshold),
		LastProfiledAt: now.UnixMilli(),
	}
	if prior != nil && prior.FirstSeen > 0 && prior.FirstSeen < w.FirstSeen {
		w.FirstSeen = prior.FirstSeen
	}
	for _, t := range deployed {
		if t.DeployedAt > 0 && t.DeployedAt < w.FirstSeen {
			w.FirstSeen = t.DeployedAt
		}
	}
	w.WalletAgeDays = int(now.Sub(time.UnixMilli(w.FirstSeen)).Hours() / 24)

	in := Inputs{
		TotalTokens:   w.TotalDeployed,
		SuspectedRugs: w.SuspectedRugs,
		WalletAgeDays: w.WalletAgeDays,
	}

	if p.crossChain != nil && p.crossChain.Chain() != chain {
		summary, err := p.crossChain.Correlate(ctx, deployer)
		if err != nil {
			p.logger.Warn().Err(err).Str("wallet", deployer).Msg("cross-chain correlation failed")
		} else if summary != nil {
			w.CrossChain = summary
			if summary.Suspicious {
				in.CrossChain = summary.Chain
			}
		}
	}

	in.FundedByFlagged = p.fundedByFlagged(ctx, deployer, chain)

	w.DeployerScore, w.Flags = Score(in)
	return w, nil
}

// fundedByFlagged reports whether any direct funder is a profiled wallet
// with a deployer score above the rug threshold. Lookup failures count as no.
func (p *Profiler) fundedByFlagged(ctx context.Context, deployer, chain string) bool {
	if p.funders == nil {
		return false
	}
	funders, err := p.funders.Funders(ctx, deployer, chain)
	if err != nil {
		p.logger.Warn().Err(err).Str("wallet", deployer).Msg("funder lookup failed")
		return false
	}
	for _, f := range funders {
		w, err := p.wallets.Get(ctx, domain.NormalizeAddress(f), chain)
		if err != nil {
			continue
		}
		if w.DeployerScore > p.rugThreshold {
			return true
		}
	}
	return false
}

// priorTokens returns deployed without the token at address exclude.
func priorTokens(deployed []*domain.Token, exclude string) []*domain.Token {
	if exclude == "" {
		return deployed
	}
	out := make([]*domain.Token, 0, len(deployed))
	for _, t := range deployed {
		if t.Address != exclude {
			out = append(out, t)
		}
	}
	return out
}

// CountSuspectedRugs counts tokens whose liquidity score exceeds threshold.
func CountSuspectedRugs(tokens []*domain.Token, threshold float64) int {
	n := 0
	for _, t := range tokens {
		if t.LiquidityScore != nil && *t.LiquidityScore > threshold {
			n++
		}
	}
	return n
}
