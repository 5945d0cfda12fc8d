// Package verification re-derives stored risk scores and reports rows whose
// final score, level or latest history snapshot no longer agree.
package verification

import (
	"fmt"
	"math"
	"slices"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/scoring"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and expected values.
type FieldDivergence struct {
	Field    string // field name
	Expected any    // recomputed or token-side value
	Actual   any    // stored value
}

// String formats the divergence for logs.
func (d FieldDivergence) String() string {
	return fmt.Sprintf("%s: expected %v, got %v", d.Field, d.Expected, d.Actual)
}

// VerificationResult contains the result of verifying a single token.
type VerificationResult struct {
	Chain           string
	Address         string
	Match           bool              // true if all fields match
	Divergences     []FieldDivergence // list of divergent fields
	StoredFinal     float64
	RecomputedFinal float64
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalTokens     int // analyzed tokens verified
	SkippedTokens   int // pending tokens, never analyzed
	MatchedTokens   int
	DivergentTokens int
	Results         []VerificationResult // divergent results only
}

// CompareScores checks a token's stored final score and level against a
// fresh combination of its stored sub-scores.
func CompareScores(t *domain.Token, rescored scoring.Result) []FieldDivergence {
	var divergences []FieldDivergence

	if !floatPtrEquals(t.FinalScore, &rescored.Final) {
		divergences = append(divergences, FieldDivergence{
			Field:    "FinalScore",
			Expected: rescored.Final,
			Actual:   deref(t.FinalScore),
		})
	}

	if t.RiskLevel != rescored.Level {
		divergences = append(divergences, FieldDivergence{
			Field:    "RiskLevel",
			Expected: rescored.Level,
			Actual:   t.RiskLevel,
		})
	}

	return divergences
}

// CompareSnapshot checks that the latest history record mirrors the token row.
// A nil snapshot is itself a divergence: every analysis appends one.
func CompareSnapshot(t *domain.Token, latest *domain.RiskHistory) []FieldDivergence {
	if latest == nil {
		return []FieldDivergence{{Field: "RiskHistory", Expected: "snapshot", Actual: nil}}
	}

	var divergences []FieldDivergence
	scores := []struct {
		field  string
		token  *float64
		stored float64
	}{
		{"History.ContractScore", t.ContractScore, latest.ContractScore},
		{"History.LiquidityScore", t.LiquidityScore, latest.LiquidityScore},
		{"History.OwnershipScore", t.OwnershipScore, latest.OwnershipScore},
		{"History.DeployerScore", t.DeployerScore, latest.DeployerScore},
		{"History.FinalScore", t.FinalScore, latest.FinalScore},
	}
	for _, s := range scores {
		if !floatPtrEquals(s.token, &s.stored) {
			divergences = append(divergences, FieldDivergence{
				Field:    s.field,
				Expected: deref(s.token),
				Actual:   s.stored,
			})
		}
	}

	if t.RiskLevel != latest.RiskLevel {
		divergences = append(divergences, FieldDivergence{
			Field:    "History.RiskLevel",
			Expected: t.RiskLevel,
			Actual:   latest.RiskLevel,
		})
	}

	if !slices.Equal(t.Flags, latest.Flags) {
		divergences = append(divergences, FieldDivergence{
			Field:    "History.Flags",
			Expected: t.Flags,
			Actual:   latest.Flags,
		})
	}

	if t.AnalyzedAt != nil && *t.AnalyzedAt != latest.RecordedAt {
		divergences = append(divergences, FieldDivergence{
			Field:    "History.RecordedAt",
			Expected: *t.AnalyzedAt,
			Actual:   latest.RecordedAt,
		})
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}

// floatPtrEquals compares two *float64 values within FloatTolerance.
// Returns true if both are nil, or both are non-nil and equal.
func floatPtrEquals(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEquals(*a, *b)
}

func deref(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
