// Package scoring combines the four sub-scores into a final risk score and level.
package scoring

import (
	"fmt"
	"math"

	"sentinel-ledger/internal/domain"
)

// weightTolerance is how far the weight sum may drift from 1.0.
const weightTolerance = 1e-9

// Weights are the per-component multipliers. They must sum to 1.0.
type Weights struct {
	Contract  float64
	Liquidity float64
	Ownership float64
	Deployer  float64
}

// DefaultWeights returns the standard weight table.
func DefaultWeights() Weights {
	return Weights{Contract: 0.35, Liquidity: 0.30, Ownership: 0.20, Deployer: 0.15}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Contract + w.Liquidity + w.Ownership + w.Deployer
}

// Validate checks that every weight is non-negative and the sum is 1.0.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"contract": w.Contract, "liquidity": w.Liquidity,
		"ownership": w.Ownership, "deployer": w.Deployer,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s is negative: %v", name, v)
		}
	}
	if math.Abs(w.Sum()-1) > weightTolerance {
		return fmt.Errorf("weights sum to %v, want 1.0", w.Sum())
	}
	return nil
}

// Bands are inclusive upper bounds: final <= LowMax is LOW, <= ModerateMax
// is MODERATE, <= HighMax is HIGH, anything above is CRITICAL.
type Bands struct {
	LowMax      float64
	ModerateMax float64
	HighMax     float64
}

// DefaultBands returns the standard level bands.
func DefaultBands() Bands {
	return Bands{LowMax: 25, ModerateMax: 50, HighMax: 75}
}

// Validate checks that the bands are ordered within [0, 100].
func (b Bands) Validate() error {
	if !(0 <= b.LowMax && b.LowMax < b.ModerateMax && b.ModerateMax < b.HighMax && b.HighMax < 100) {
		return fmt.Errorf("bands must satisfy 0 <= low < moderate < high < 100, got %v/%v/%v",
			b.LowMax, b.ModerateMax, b.HighMax)
	}
	return nil
}

// Level maps a final score to its band.
func (b Bands) Level(final float64) domain.RiskLevel {
	switch {
	case final <= b.LowMax:
		return domain.RiskLow
	case final <= b.ModerateMax:
		return domain.RiskModerate
	case final <= b.HighMax:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}

// Inputs are the four sub-scores.
type Inputs struct {
	Contract  float64
	Liquidity float64
	Ownership float64
	Deployer  float64
}

// Result is the clamped breakdown, final score and level.
type Result struct {
	Contract  float64
	Liquidity float64
	Ownership float64
	Deployer  float64
	Final     float64
	Level     domain.RiskLevel
}

// Engine is a pure function of its inputs and the weight table.
type Engine struct {
	weights Weights
	bands   Bands
}

// NewEngine validates the tables and creates an engine.
func NewEngine(w Weights, b Bands) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: w, bands: b}, nil
}

// Weights returns the engine's weight table.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Score clamps each input to [0, 100], combines them with the weights and
// maps the result to a level. The final score is rounded to two decimals.
func (e *Engine) Score(in Inputs) Result {
	r := Result{
		Contract:  Clamp(in.Contract),
		Liquidity: Clamp(in.Liquidity),
		Ownership: Clamp(in.Ownership),
		Deployer:  Clamp(in.Deployer),
	}
	final := r.Contract*e.weights.Contract +
		r.Liquidity*e.weights.Liquidity +
		r.Ownership*e.weights.Ownership +
		r.Deployer*e.weights.Deployer
	r.Final = Clamp(math.Round(final*100) / 100)
	r.Level = e.bands.Level(r.Final)
	return r
}

// Clamp forces v into [0, 100]. NaN maps to 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
