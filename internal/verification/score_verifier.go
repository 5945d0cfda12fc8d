package verification

import (
	"context"
	"errors"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/scoring"
	"sentinel-ledger/internal/storage"
)

var (
	// ErrTokenNotFound is returned when the token row doesn't exist.
	ErrTokenNotFound = errors.New("token not found")

	// ErrNotAnalyzed is returned when the token was never scored.
	ErrNotAnalyzed = errors.New("token not analyzed")
)

// ScoreVerifier re-scores stored tokens with the configured engine.
type ScoreVerifier struct {
	tokenStore   storage.TokenStore
	historyStore storage.RiskHistoryStore
	engine       *scoring.Engine
}

// ScoreVerifierOptions contains configuration for creating a ScoreVerifier.
type ScoreVerifierOptions struct {
	TokenStore   storage.TokenStore
	HistoryStore storage.RiskHistoryStore
	Engine       *scoring.Engine
}

// NewScoreVerifier creates a new ScoreVerifier.
func NewScoreVerifier(opts ScoreVerifierOptions) *ScoreVerifier {
	return &ScoreVerifier{
		tokenStore:   opts.TokenStore,
		historyStore: opts.HistoryStore,
		engine:       opts.Engine,
	}
}

// VerifyToken verifies a single analyzed token.
func (v *ScoreVerifier) VerifyToken(ctx context.Context, address, chain string) (*VerificationResult, error) {
	t, err := v.tokenStore.Get(ctx, address, chain)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if t.AnalyzedAt == nil {
		return nil, ErrNotAnalyzed
	}
	return v.verify(ctx, t)
}

// VerifyAll verifies every analyzed token. Pending tokens are counted as skipped.
func (v *ScoreVerifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	tokens, err := v.tokenStore.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{}
	for _, t := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t.AnalyzedAt == nil {
			report.SkippedTokens++
			continue
		}

		result, err := v.verify(ctx, t)
		if err != nil {
			return nil, err
		}

		report.TotalTokens++
		if result.Match {
			report.MatchedTokens++
		} else {
			report.DivergentTokens++
			report.Results = append(report.Results, *result)
		}
	}

	return report, nil
}

func (v *ScoreVerifier) verify(ctx context.Context, t *domain.Token) (*VerificationResult, error) {
	rescored := v.engine.Score(scoring.Inputs{
		Contract:  valueOr(t.ContractScore),
		Liquidity: valueOr(t.LiquidityScore),
		Ownership: valueOr(t.OwnershipScore),
		Deployer:  valueOr(t.DeployerScore),
	})

	history, err := v.historyStore.ListByToken(ctx, t.Address, t.Chain)
	if err != nil {
		return nil, err
	}
	var latest *domain.RiskHistory
	if len(history) > 0 {
		latest = history[len(history)-1]
	}

	divergences := CompareScores(t, rescored)
	divergences = append(divergences, CompareSnapshot(t, latest)...)

	return &VerificationResult{
		Chain:           t.Chain,
		Address:         t.Address,
		Match:           len(divergences) == 0,
		Divergences:     divergences,
		StoredFinal:     valueOr(t.FinalScore),
		RecomputedFinal: rescored.Final,
	}, nil
}

func valueOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
