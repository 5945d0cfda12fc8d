package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetricsWith_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, "test")

	m.BlocksProcessed.WithLabelValues("base").Add(3)
	m.PoolProbes.WithLabelValues("uniswap_v3", "found").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.BlocksProcessed.WithLabelValues("base")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolProbes.WithLabelValues("uniswap_v3", "found")))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.BlocksSkipped.WithLabelValues("helper-chain"))
	RecordBlockSkipped("helper-chain")
	after := testutil.ToFloat64(DefaultMetrics.BlocksSkipped.WithLabelValues("helper-chain"))
	assert.Equal(t, before+1, after)

	UpdateCheckpoint("helper-chain", 42, 1700000000)
	assert.Equal(t, 42.0, testutil.ToFloat64(DefaultMetrics.CheckpointHeight.WithLabelValues("helper-chain")))
}
