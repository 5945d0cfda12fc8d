package reporting

import (
	"time"

	"sentinel-ledger/internal/domain"
)

// Report is a point-in-time risk overview of every tracked token.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	TopN        int

	// Coverage
	Summary Summary

	// Distribution (sorted by chain, then level order)
	LevelCounts []LevelCountRow

	// Riskiest analyzed tokens, final score DESC
	Tokens []TokenRow

	// Riskiest deployers, deployer score DESC
	Deployers []DeployerRow
}

// Summary describes analysis coverage.
type Summary struct {
	TotalTokens    int
	AnalyzedTokens int
	PendingTokens  int
	Chains         int
	Wallets        int
	DateRangeStart int64 // Unix ms, earliest deployment
	DateRangeEnd   int64 // Unix ms, latest deployment
}

// LevelCountRow counts analyzed tokens of one level on one chain.
type LevelCountRow struct {
	Chain string
	Level domain.RiskLevel
	Count int
	Share float64 // of the chain's analyzed tokens
}

// TokenRow is one token in the riskiest-tokens table.
type TokenRow struct {
	Chain          string
	Address        string
	Symbol         string
	Deployer       string
	ContractScore  float64
	LiquidityScore float64
	OwnershipScore float64
	DeployerScore  float64
	FinalScore     float64
	Level          domain.RiskLevel
	Flags          []string
	AnalyzedAt     int64 // Unix ms
}

// DeployerRow is one wallet in the riskiest-deployers table.
type DeployerRow struct {
	Chain         string
	Address       string
	DeployerScore float64
	TotalDeployed int
	SuspectedRugs int
	WalletAgeDays int
	CrossChain    string // secondary chain when its activity is suspicious
}
