package liquidity

import (
	"fmt"
	"math"
)

// Flags emitted by the liquidity score.
const (
	FlagNoLiquidity    = "No liquidity added"
	FlagNotLocked      = "Liquidity not locked"
	FlagDeployerLP     = "Deployer holds LP tokens"
	FlagRemovedEarly   = "Liquidity removed early"
	FlagAnalysisFailed = "Liquidity analysis failed"
)

// UnknownScore is used when liquidity could not be assessed.
const UnknownScore = 50

// Inputs are the aggregated pool facts the score is computed from.
type Inputs struct {
	PoolCount      int
	TotalUSD       float64
	Locked         bool
	DeployerOwnsLP bool
	RemovedEarly   bool
}

// Score computes the additive liquidity sub-score, capped once at 100.
// A token with no pools scores only the no-liquidity component.
func Score(in Inputs, minUSD float64) (float64, []string) {
	if in.PoolCount == 0 {
		return 20, []string{FlagNoLiquidity}
	}

	var score float64
	var flags []string

	switch {
	case in.TotalUSD <= 0:
		score += 20
		flags = append(flags, FlagNoLiquidity)
	case in.TotalUSD < minUSD:
		score += 15
		flags = append(flags, fmt.Sprintf("Low initial liquidity (<$%gk): ~$%.0f", minUSD/1000, in.TotalUSD))
	}

	if !in.Locked {
		score += 30
		flags = append(flags, FlagNotLocked)
	}
	if in.DeployerOwnsLP {
		score += 25
		flags = append(flags, FlagDeployerLP)
	}
	if in.RemovedEarly {
		score += 40
		flags = append(flags, FlagRemovedEarly)
	}

	return math.Min(score, 100), flags
}
