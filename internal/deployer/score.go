package deployer

import (
	"fmt"
	"math"
)

// FlagFundedByFlagged is added when a direct funder is itself a risky deployer.
const FlagFundedByFlagged = "Funded by flagged wallet"

// Inputs are the deployer facts the score is computed from.
type Inputs struct {
	TotalTokens     int
	SuspectedRugs   int
	WalletAgeDays   int
	CrossChain      string // secondary chain name when its activity is suspicious
	FundedByFlagged bool
}

// Score computes the additive deployer sub-score, capped at 100.
// Each tier group contributes at most once, highest tier first.
func Score(in Inputs) (float64, []string) {
	var score float64
	var flags []string
	add := func(points float64, flag string) {
		score += points
		flags = append(flags, flag)
	}

	switch {
	case in.TotalTokens > 10:
		add(15, fmt.Sprintf("High deployment velocity: %d tokens", in.TotalTokens))
	case in.TotalTokens > 5:
		add(10, fmt.Sprintf("Moderate deployment velocity: %d tokens", in.TotalTokens))
	case in.TotalTokens > 2:
		add(5, fmt.Sprintf("Multiple tokens: %d", in.TotalTokens))
	}

	switch {
	case in.SuspectedRugs > 2:
		add(40, fmt.Sprintf("Multiple suspected rugs: %d", in.SuspectedRugs))
	case in.SuspectedRugs > 0:
		add(30, fmt.Sprintf("Prior suspected rug: %d", in.SuspectedRugs))
	}

	switch {
	case in.WalletAgeDays < 7:
		add(20, "Wallet age less than 7 days")
	case in.WalletAgeDays < 30:
		add(10, "Wallet age less than 30 days")
	}

	if in.CrossChain != "" {
		add(30, "Suspicious activity on "+in.CrossChain)
	}
	if in.FundedByFlagged {
		add(20, FlagFundedByFlagged)
	}

	return math.Min(score, 100), flags
}
