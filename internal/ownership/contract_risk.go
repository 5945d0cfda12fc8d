package ownership

import (
	"math"

	"sentinel-ledger/internal/classifier"
)

// Contract risk flags.
const (
	FlagPublicMint  = "Public mint function"
	FlagOwnerMint   = "Owner-only mint function"
	FlagFeeChange   = "Owner can change fees"
	FlagUpgradeable = "Upgradeable proxy contract"
)

// ContractRisk derives the contract sub-score from detected capabilities.
// A mint with no ownership selector anywhere is treated as public.
func ContractRisk(caps classifier.Capabilities) (float64, []string) {
	var score float64
	var flags []string
	add := func(points float64, flag string) {
		score += points
		flags = append(flags, flag)
	}

	if caps.HasMint {
		if caps.MintUnrestricted() {
			add(25, FlagPublicMint)
		} else {
			add(15, FlagOwnerMint)
		}
	}
	if caps.HasBlacklist {
		add(20, FlagHasBlacklist)
	}
	if caps.HasPause {
		add(15, FlagCanPause)
	}
	if caps.HasFeeChange {
		add(10, FlagFeeChange)
	}
	if caps.IsProxy {
		add(15, FlagUpgradeable)
	}
	if caps.HasWithdraw {
		add(20, FlagCanWithdraw)
	}
	return math.Min(score, 100), flags
}
