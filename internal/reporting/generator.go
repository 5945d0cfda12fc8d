package reporting

import (
	"context"
	"sort"
	"time"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// levelOrder fixes the row order of the distribution table.
var levelOrder = []domain.RiskLevel{
	domain.RiskCritical,
	domain.RiskHigh,
	domain.RiskModerate,
	domain.RiskLow,
}

// Generator produces reports from stored data.
type Generator struct {
	tokenStore  storage.TokenStore
	walletStore storage.WalletStore
	topN        int
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator listing topN rows per table.
func NewGenerator(tokenStore storage.TokenStore, walletStore storage.WalletStore, topN int) *Generator {
	if topN <= 0 {
		topN = 25
	}
	return &Generator{
		tokenStore:  tokenStore,
		walletStore: walletStore,
		topN:        topN,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete risk report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	tokens, err := g.tokenStore.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	wallets, err := g.walletStore.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt: g.now(),
		TopN:        g.topN,
		Summary:     summarize(tokens, wallets),
		LevelCounts: levelCounts(tokens),
		Tokens:      g.riskiestTokens(tokens),
		Deployers:   g.riskiestDeployers(wallets),
	}, nil
}

func summarize(tokens []*domain.Token, wallets []*domain.Wallet) Summary {
	s := Summary{TotalTokens: len(tokens), Wallets: len(wallets)}
	chains := make(map[string]struct{})
	for i, t := range tokens {
		chains[t.Chain] = struct{}{}
		if t.AnalyzedAt != nil {
			s.AnalyzedTokens++
		} else {
			s.PendingTokens++
		}
		if i == 0 || t.DeployedAt < s.DateRangeStart {
			s.DateRangeStart = t.DeployedAt
		}
		if t.DeployedAt > s.DateRangeEnd {
			s.DateRangeEnd = t.DeployedAt
		}
	}
	s.Chains = len(chains)
	return s
}

// levelCounts counts analyzed tokens per (chain, level). Levels without
// tokens are omitted.
func levelCounts(tokens []*domain.Token) []LevelCountRow {
	counts := make(map[string]map[domain.RiskLevel]int)
	totals := make(map[string]int)
	for _, t := range tokens {
		if t.AnalyzedAt == nil {
			continue
		}
		if counts[t.Chain] == nil {
			counts[t.Chain] = make(map[domain.RiskLevel]int)
		}
		counts[t.Chain][t.RiskLevel]++
		totals[t.Chain]++
	}

	chains := make([]string, 0, len(counts))
	for c := range counts {
		chains = append(chains, c)
	}
	sort.Strings(chains)

	var rows []LevelCountRow
	for _, c := range chains {
		for _, level := range levelOrder {
			n := counts[c][level]
			if n == 0 {
				continue
			}
			rows = append(rows, LevelCountRow{
				Chain: c,
				Level: level,
				Count: n,
				Share: float64(n) / float64(totals[c]),
			})
		}
	}
	return rows
}

func (g *Generator) riskiestTokens(tokens []*domain.Token) []TokenRow {
	var rows []TokenRow
	for _, t := range tokens {
		if t.AnalyzedAt == nil || t.FinalScore == nil {
			continue
		}
		row := TokenRow{
			Chain:          t.Chain,
			Address:        t.Address,
			Deployer:       t.Deployer,
			ContractScore:  valueOr(t.ContractScore),
			LiquidityScore: valueOr(t.LiquidityScore),
			OwnershipScore: valueOr(t.OwnershipScore),
			DeployerScore:  valueOr(t.DeployerScore),
			FinalScore:     *t.FinalScore,
			Level:          t.RiskLevel,
			Flags:          t.Flags,
			AnalyzedAt:     *t.AnalyzedAt,
		}
		if t.Symbol != nil {
			row.Symbol = *t.Symbol
		}
		rows = append(rows, row)
	}

	// Deterministic: score DESC, then chain, then address
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].FinalScore != rows[j].FinalScore {
			return rows[i].FinalScore > rows[j].FinalScore
		}
		if rows[i].Chain != rows[j].Chain {
			return rows[i].Chain < rows[j].Chain
		}
		return rows[i].Address < rows[j].Address
	})
	if len(rows) > g.topN {
		rows = rows[:g.topN]
	}
	return rows
}

func (g *Generator) riskiestDeployers(wallets []*domain.Wallet) []DeployerRow {
	rows := make([]DeployerRow, 0, len(wallets))
	for _, w := range wallets {
		row := DeployerRow{
			Chain:         w.Chain,
			Address:       w.Address,
			DeployerScore: w.DeployerScore,
			TotalDeployed: w.TotalDeployed,
			SuspectedRugs: w.SuspectedRugs,
			WalletAgeDays: w.WalletAgeDays,
		}
		if w.CrossChain != nil && w.CrossChain.Suspicious {
			row.CrossChain = w.CrossChain.Chain
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DeployerScore != rows[j].DeployerScore {
			return rows[i].DeployerScore > rows[j].DeployerScore
		}
		if rows[i].Chain != rows[j].Chain {
			return rows[i].Chain < rows[j].Chain
		}
		return rows[i].Address < rows[j].Address
	})
	if len(rows) > g.topN {
		rows = rows[:g.topN]
	}
	return rows
}

func valueOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
