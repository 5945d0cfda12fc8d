package orchestrator

import (
	"context"

	"github.com/rs/zerolog"

	"sentinel-ledger/internal/domain"
)

// Summary is the fixed-shape record handed to an Explainer.
type Summary struct {
	Address        string           `json:"address"`
	Chain          string           `json:"chain"`
	Name           string           `json:"name,omitempty"`
	Symbol         string           `json:"symbol,omitempty"`
	ContractScore  float64          `json:"contract_score"`
	LiquidityScore float64          `json:"liquidity_score"`
	OwnershipScore float64          `json:"ownership_score"`
	DeployerScore  float64          `json:"deployer_score"`
	FinalScore     float64          `json:"final_score"`
	RiskLevel      domain.RiskLevel `json:"risk_level"`
	Flags          []string         `json:"flags"`
}

// Explainer turns a summary into a short human-readable explanation.
// ok is false when it has nothing to say.
type Explainer interface {
	Explain(ctx context.Context, s Summary) (text string, ok bool, err error)
}

// SummaryOf builds the explainer input from a scored token.
func SummaryOf(t *domain.Token) Summary {
	s := Summary{
		Address:   t.Address,
		Chain:     t.Chain,
		RiskLevel: t.RiskLevel,
		Flags:     append([]string(nil), t.Flags...),
	}
	if t.Name != nil {
		s.Name = *t.Name
	}
	if t.Symbol != nil {
		s.Symbol = *t.Symbol
	}
	s.ContractScore = deref(t.ContractScore)
	s.LiquidityScore = deref(t.LiquidityScore)
	s.OwnershipScore = deref(t.OwnershipScore)
	s.DeployerScore = deref(t.DeployerScore)
	s.FinalScore = deref(t.FinalScore)
	return s
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// explain never fails the analysis; errors and timeouts are logged.
func (o *Orchestrator) explain(ctx context.Context, t *domain.Token, log zerolog.Logger) (string, bool) {
	if o.explainer == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, o.explainTO)
	defer cancel()

	text, ok, err := o.explainer.Explain(ctx, SummaryOf(t))
	if err != nil {
		log.Warn().Err(err).Msg("explanation failed")
		return "", false
	}
	if !ok || text == "" {
		return "", false
	}
	return text, true
}
