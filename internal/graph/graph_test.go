package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage/memory"
)

type failingStore struct{ *MemoryStore }

var errDown = errors.New("graph down")

func (failingStore) MergeEdge(context.Context, domain.Edge) error { return errDown }
func (failingStore) Neighborhood(context.Context, domain.NodeRef, int) ([]domain.NodeRef, error) {
	return nil, errDown
}
func (failingStore) Funders(context.Context, domain.NodeRef) ([]string, error) { return nil, errDown }

func newGraph(store Store, depth int) *WalletGraph {
	return NewWalletGraph(WalletGraphOptions{
		Store: store,
		Depth: depth,
		Now:   func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	})
}

func TestMemoryStore_NeighborhoodDepth(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, b, c, d := WalletRef("0xa", "base"), WalletRef("0xb", "base"), WalletRef("0xc", "base"), WalletRef("0xd", "base")
	require.NoError(t, s.MergeEdge(ctx, domain.Edge{From: a, To: b, Kind: domain.EdgeFunded}))
	require.NoError(t, s.MergeEdge(ctx, domain.Edge{From: c, To: b, Kind: domain.EdgeFunded}))
	require.NoError(t, s.MergeEdge(ctx, domain.Edge{From: c, To: d, Kind: domain.EdgeFunded}))

	got, err := s.Neighborhood(ctx, a, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.NodeRef{b}, got)

	got, err = s.Neighborhood(ctx, a, 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.NodeRef{b, c}, got)

	got, err = s.Neighborhood(ctx, a, 3)
	require.NoError(t, err)
	assert.Equal(t, []domain.NodeRef{b, c, d}, got)

	got, err = s.Neighborhood(ctx, WalletRef("0xmissing", "base"), 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_MergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	e := domain.Edge{From: WalletRef("0xa", "base"), To: TokenRef("0xt", "base"), Kind: domain.EdgeDeployed}

	require.NoError(t, s.MergeEdge(ctx, e))
	require.NoError(t, s.MergeEdge(ctx, e))
	assert.Len(t, s.Edges(), 1)

	got, err := s.Neighborhood(ctx, e.From, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryStore_Funders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	w := WalletRef("0xd1", "base")

	require.NoError(t, s.MergeEdge(ctx, domain.Edge{From: WalletRef("0xf2", "base"), To: w, Kind: domain.EdgeFunded}))
	require.NoError(t, s.MergeEdge(ctx, domain.Edge{From: WalletRef("0xf1", "base"), To: w, Kind: domain.EdgeFunded}))
	require.NoError(t, s.MergeEdge(ctx, domain.Edge{From: WalletRef("0xbridge", "base"), To: w, Kind: domain.EdgeBridgedTo}))

	funders, err := s.Funders(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xf1", "0xf2"}, funders)
}

func TestClusterScore(t *testing.T) {
	tests := []struct {
		size  int
		score float64
		flags int
	}{
		{0, 0, 0},
		{10, 0, 0},
		{11, 15, 1},
		{20, 15, 1},
		{21, 30, 1},
	}
	for _, tt := range tests {
		score, flags := ClusterScore(tt.size)
		assert.Equal(t, tt.score, score, "size %d", tt.size)
		assert.Len(t, flags, tt.flags, "size %d", tt.size)
	}
}

func TestWalletGraph_ClusterRisk(t *testing.T) {
	ctx := context.Background()
	g := newGraph(NewMemoryStore(), 2)

	// A deployer funded by 12 wallets.
	for i := 0; i < 12; i++ {
		g.RecordFunding(ctx, fmt.Sprintf("0x%040x", i+1), "0xd1", "base", "", "")
	}
	risk := g.ClusterRisk(ctx, "0xd1", "base")
	assert.Equal(t, 12, risk.ClusterSize)
	assert.Equal(t, 15.0, risk.Score)
	assert.Equal(t, []string{"Moderate cluster size (12 nodes)"}, risk.Flags)

	funders, err := g.Funders(ctx, "0xd1", "base")
	require.NoError(t, err)
	assert.Len(t, funders, 12)
}

func TestWalletGraph_FailuresDegrade(t *testing.T) {
	ctx := context.Background()
	g := newGraph(failingStore{NewMemoryStore()}, 2)

	g.RecordDeployment(ctx, &domain.Token{Address: "0xaa", Chain: "base", Deployer: "0xd1"})
	risk := g.ClusterRisk(ctx, "0xd1", "base")
	assert.Equal(t, domain.ClusterRisk{}, risk)

	_, err := g.Funders(ctx, "0xd1", "base")
	assert.ErrorIs(t, err, errDown)
}

func TestWalletGraph_Disabled(t *testing.T) {
	ctx := context.Background()
	g := newGraph(nil, 2)
	assert.False(t, g.Enabled())

	g.RecordEdge(ctx, domain.Edge{})
	assert.Equal(t, domain.ClusterRisk{}, g.ClusterRisk(ctx, "0xd1", "base"))
	funders, err := g.Funders(ctx, "0xd1", "base")
	assert.NoError(t, err)
	assert.Nil(t, funders)
}

func TestWalletGraph_DepthClamped(t *testing.T) {
	assert.Equal(t, MaxDepth, newGraph(nil, 9).depth)
	assert.Equal(t, MinDepth, newGraph(nil, -1).depth)
	assert.Equal(t, 2, newGraph(nil, 0).depth)
}

func TestWalletGraph_SyncFromStore(t *testing.T) {
	ctx := context.Background()
	tokens := memory.NewTokenStore()
	pools := memory.NewPoolStore()
	wallets := memory.NewWalletStore()

	require.NoError(t, tokens.Insert(ctx, &domain.Token{Address: "0xaa", Chain: "base", Deployer: "0xd1", DeployTx: "0x01"}))
	require.NoError(t, tokens.Insert(ctx, &domain.Token{Address: "0xbb", Chain: "base", Deployer: "0xd1", DeployTx: "0x02"}))
	require.NoError(t, pools.Upsert(ctx, &domain.LiquidityPool{
		Chain: "base", PoolAddress: "0xp1", TokenAddress: "0xaa", RemovedEarly: true,
	}))
	require.NoError(t, wallets.Upsert(ctx, &domain.Wallet{Address: "0xd1", Chain: "base"}))

	store := NewMemoryStore()
	g := newGraph(store, 2)
	stats, err := g.SyncFromStore(ctx, tokens, pools, wallets)
	require.NoError(t, err)
	assert.Equal(t, SyncStats{Wallets: 1, Tokens: 2, Pools: 1}, stats)

	edges := store.Edges()
	require.Len(t, edges, 4)
	kinds := map[domain.EdgeKind]int{}
	for _, e := range edges {
		kinds[e.Kind]++
	}
	assert.Equal(t, map[domain.EdgeKind]int{
		domain.EdgeDeployed:         2,
		domain.EdgeAddedLiquidity:   1,
		domain.EdgeRemovedLiquidity: 1,
	}, kinds)

	// Running it twice converges to the same graph.
	_, err = g.SyncFromStore(ctx, tokens, pools, wallets)
	require.NoError(t, err)
	assert.Equal(t, edges, store.Edges())

	_, err = newGraph(nil, 2).SyncFromStore(ctx, tokens, pools, wallets)
	assert.Error(t, err)
}
