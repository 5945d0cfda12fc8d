package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel-ledger/internal/domain"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultWeights(), DefaultBands())
	require.NoError(t, err)
	return e
}

func TestScore_WeightedCritical(t *testing.T) {
	r := newEngine(t).Score(Inputs{Contract: 80, Liquidity: 90, Ownership: 70, Deployer: 78})
	assert.Equal(t, 80.7, r.Final)
	assert.Equal(t, domain.RiskCritical, r.Level)
}

func TestScore_ClampsInputs(t *testing.T) {
	r := newEngine(t).Score(Inputs{Contract: 150, Liquidity: -20, Ownership: math.NaN(), Deployer: 100})
	assert.Equal(t, 100.0, r.Contract)
	assert.Zero(t, r.Liquidity)
	assert.Zero(t, r.Ownership)
	assert.Equal(t, 50.0, r.Final)
	assert.Equal(t, domain.RiskModerate, r.Level)
}

func TestScore_AlwaysInRange(t *testing.T) {
	e := newEngine(t)
	for _, v := range []float64{-1e9, -1, 0, 33.3, 100, 101, 1e9} {
		r := e.Score(Inputs{Contract: v, Liquidity: v, Ownership: v, Deployer: v})
		assert.GreaterOrEqual(t, r.Final, 0.0)
		assert.LessOrEqual(t, r.Final, 100.0)
	}
}

func TestScore_Deterministic(t *testing.T) {
	e := newEngine(t)
	in := Inputs{Contract: 12.5, Liquidity: 45, Ownership: 50, Deployer: 20}
	assert.Equal(t, e.Score(in), e.Score(in))
}

func TestBands_Level(t *testing.T) {
	b := DefaultBands()
	tests := []struct {
		final float64
		want  domain.RiskLevel
	}{
		{0, domain.RiskLow},
		{25, domain.RiskLow},
		{25.01, domain.RiskModerate},
		{50, domain.RiskModerate},
		{51, domain.RiskHigh},
		{75, domain.RiskHigh},
		{75.5, domain.RiskCritical},
		{100, domain.RiskCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Level(tt.final), "final %v", tt.final)
	}
}

func TestNewEngine_RejectsBadTables(t *testing.T) {
	_, err := NewEngine(Weights{Contract: 0.5, Liquidity: 0.5, Ownership: 0.5}, DefaultBands())
	assert.Error(t, err)

	_, err = NewEngine(Weights{Contract: 1.2, Liquidity: -0.2}, DefaultBands())
	assert.Error(t, err)

	_, err = NewEngine(DefaultWeights(), Bands{LowMax: 50, ModerateMax: 25, HighMax: 75})
	assert.Error(t, err)

	assert.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-12)
}

func TestEngine_CustomWeights(t *testing.T) {
	e, err := NewEngine(Weights{Liquidity: 1}, DefaultBands())
	require.NoError(t, err)
	r := e.Score(Inputs{Contract: 100, Liquidity: 20, Ownership: 100, Deployer: 100})
	assert.Equal(t, 20.0, r.Final)
	assert.Equal(t, domain.RiskLow, r.Level)
}
