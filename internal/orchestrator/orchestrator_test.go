package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel-ledger/internal/chain/chaintest"
	"sentinel-ledger/internal/classifier"
	"sentinel-ledger/internal/deployer"
	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/graph"
	"sentinel-ledger/internal/liquidity"
	"sentinel-ledger/internal/ownership"
	"sentinel-ledger/internal/scoring"
	"sentinel-ledger/internal/storage"
	"sentinel-ledger/internal/storage/memory"
	"sentinel-ledger/internal/tasks"
)

var (
	fixedNow     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokenAddr    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	ownerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	deployerAddr = "0x00000000000000000000000000000000000000d1"
	poolAddr     = "0x00000000000000000000000000000000000000b1"
)

// bytecode builds a dispatcher-like code blob with one PUSH4 per selector.
func bytecode(hexSelectors ...string) []byte {
	code := []byte{0x60, 0x80, 0x60, 0x40, 0x52}
	for _, h := range hexSelectors {
		sel, err := classifier.ParseSelector(h)
		if err != nil {
			panic(err)
		}
		code = append(code, 0x63)
		code = append(code, sel[:]...)
		code = append(code, 0x14, 0x57)
	}
	return append(code, 0x00)
}

type stubLiquidity struct {
	sig *liquidity.Signal
	err error
}

func (s *stubLiquidity) Assess(ctx context.Context, token *domain.Token) (*liquidity.Signal, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *s.sig
	out.Pools = nil
	for _, p := range s.sig.Pools {
		out.Pools = append(out.Pools, p.Clone())
	}
	return &out, nil
}

type failingOwnership struct{}

func (failingOwnership) Analyze(ctx context.Context, token *domain.Token) (*ownership.Result, error) {
	return nil, ownership.ErrNoBytecode
}

type failingProfiler struct{}

func (failingProfiler) Profile(ctx context.Context, deployer, chain, token string) (*domain.Wallet, error) {
	return nil, errors.New("database unavailable")
}

type stubExplainer struct {
	text string
	ok   bool
	err  error
	got  Summary
}

func (e *stubExplainer) Explain(ctx context.Context, s Summary) (string, bool, error) {
	e.got = s
	return e.text, e.ok, e.err
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, address, chain string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail[address] {
		return errors.New("queue full")
	}
	e.calls = append(e.calls, chain+":"+address)
	return nil
}

type fixture struct {
	chain     *chaintest.Client
	tokens    *memory.TokenStore
	contracts *memory.ContractAnalysisStore
	pools     *memory.PoolStore
	wallets   *memory.WalletStore
	history   *memory.RiskHistoryStore
	liq       *stubLiquidity
	store     *graph.MemoryStore
	opts      Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chain:     chaintest.New(),
		tokens:    memory.NewTokenStore(),
		contracts: memory.NewContractAnalysisStore(),
		pools:     memory.NewPoolStore(),
		wallets:   memory.NewWalletStore(),
		history:   memory.NewRiskHistoryStore(),
		store:     graph.NewMemoryStore(),
	}
	now := func() time.Time { return fixedNow }

	// Owned, transferable, mintable token.
	f.chain.SetCode(tokenAddr, bytecode("8da5cb5b", "f2fde38b", "40c10f19"))
	f.chain.SetCall(tokenAddr, chaintest.Calldata("owner()", nil), chaintest.Encode([]string{"address"}, ownerAddr))

	require.NoError(t, f.tokens.Insert(context.Background(), &domain.Token{
		Address:    domain.NormalizeAddress(tokenAddr.Hex()),
		Chain:      "base",
		Deployer:   deployerAddr,
		DeployTx:   "0xtx",
		DeployedAt: fixedNow.Add(-48 * time.Hour).UnixMilli(),
		CreatedAt:  fixedNow.UnixMilli(),
	}))

	f.liq = &stubLiquidity{sig: &liquidity.Signal{
		PoolCount: 1,
		TotalUSD:  1200,
		Score:     45,
		Flags:     []string{"Low initial liquidity (<$5k): ~$1200", liquidity.FlagNotLocked},
		Pools: []*domain.LiquidityPool{{
			Chain:               "base",
			PoolAddress:         poolAddr,
			TokenAddress:        domain.NormalizeAddress(tokenAddr.Hex()),
			DEX:                 domain.DEXUniswapV3,
			Paired:              domain.PairedWETH,
			InitialLiquidityUSD: 1200,
			CurrentLiquidityUSD: 1200,
			PeakLiquidityUSD:    1200,
		}},
	}}

	engine, err := scoring.NewEngine(scoring.DefaultWeights(), scoring.DefaultBands())
	require.NoError(t, err)

	f.opts = Options{
		Tokens:    f.tokens,
		Writer:    memory.NewAnalysisWriter(f.tokens, f.contracts, f.pools, f.wallets, f.history),
		Ownership: ownership.NewAnalyzer(ownership.Options{Client: f.chain, Now: now}),
		Liquidity: f.liq,
		Deployer: deployer.NewProfiler(deployer.Options{
			Tokens:  f.tokens,
			Wallets: f.wallets,
			Now:     now,
		}),
		Scorer: engine,
		Graph:  graph.NewWalletGraph(graph.WalletGraphOptions{Store: f.store, Now: now, Logger: zerolog.Nop()}),
		Now:    now,
		Logger: zerolog.Nop(),
	}
	return f
}

func (f *fixture) orchestrator() *Orchestrator {
	return New(f.opts)
}

func TestAnalyzeToken_FullPipeline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.orchestrator().AnalyzeToken(ctx, tokenAddr.Hex(), "base")
	require.NoError(t, err)

	// contract 15, liquidity 45, ownership 75, deployer 20
	// 15*.35 + 45*.30 + 75*.20 + 20*.15 = 36.75
	assert.Equal(t, 15.0, out.Breakdown.Contract)
	assert.Equal(t, 45.0, out.Breakdown.Liquidity)
	assert.Equal(t, 75.0, out.Breakdown.Ownership)
	assert.Equal(t, 20.0, out.Breakdown.Deployer)
	assert.Equal(t, 36.75, out.Breakdown.Final)
	assert.Equal(t, domain.RiskModerate, out.Breakdown.Level)

	wantFlags := []string{
		ownership.FlagNotRenounced,
		ownership.FlagTransferable,
		ownership.FlagHasMint,
		ownership.FlagOwnerMint,
		"Low initial liquidity (<$5k): ~$1200",
		liquidity.FlagNotLocked,
		"Wallet age less than 7 days",
	}

	addr := domain.NormalizeAddress(tokenAddr.Hex())
	stored, err := f.tokens.Get(ctx, addr, "base")
	require.NoError(t, err)
	require.NotNil(t, stored.FinalScore)
	assert.Equal(t, 36.75, *stored.FinalScore)
	assert.Equal(t, domain.RiskModerate, stored.RiskLevel)
	assert.Equal(t, wantFlags, stored.Flags)
	require.NotNil(t, stored.AnalyzedAt)
	assert.Equal(t, fixedNow.UnixMilli(), *stored.AnalyzedAt)
	assert.Nil(t, stored.Explanation)

	ca, err := f.contracts.Get(ctx, addr, "base")
	require.NoError(t, err)
	assert.True(t, ca.HasMint)
	assert.Equal(t, []string{"mint"}, ca.DangerousFunctions)

	pools, err := f.pools.ListByToken(ctx, addr, "base")
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, poolAddr, pools[0].PoolAddress)

	w, err := f.wallets.Get(ctx, deployerAddr, "base")
	require.NoError(t, err)
	assert.Equal(t, 1, w.TotalDeployed)
	assert.Equal(t, 20.0, w.DeployerScore)

	hist, err := f.history.ListByToken(ctx, addr, "base")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 36.75, hist[0].FinalScore)
	assert.Equal(t, wantFlags, hist[0].Flags)

	assert.Len(t, f.store.Edges(), 2, "deployment and pool edges")
}

func TestAnalyzeToken_RerunConverges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.orchestrator()

	first, err := o.AnalyzeToken(ctx, tokenAddr.Hex(), "base")
	require.NoError(t, err)
	second, err := o.AnalyzeToken(ctx, tokenAddr.Hex(), "base")
	require.NoError(t, err)

	assert.Equal(t, first.Breakdown, second.Breakdown)
	assert.Equal(t, first.Token.Flags, second.Token.Flags)

	addr := domain.NormalizeAddress(tokenAddr.Hex())
	pools, err := f.pools.ListByToken(ctx, addr, "base")
	require.NoError(t, err)
	assert.Len(t, pools, 1)

	hist, err := f.history.ListByToken(ctx, addr, "base")
	require.NoError(t, err)
	assert.Len(t, hist, 2, "history is append-only")
	assert.Len(t, f.store.Edges(), 2)
}

func TestAnalyzeToken_RerunWithRugLevelLiquidity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.liq.sig.Score = 75
	o := f.orchestrator()

	first, err := o.AnalyzeToken(ctx, tokenAddr.Hex(), "base")
	require.NoError(t, err)
	second, err := o.AnalyzeToken(ctx, tokenAddr.Hex(), "base")
	require.NoError(t, err)

	// The token's own stored liquidity score is not a prior rug of its deployer.
	assert.Equal(t, 20.0, first.Breakdown.Deployer)
	assert.Equal(t, first.Breakdown, second.Breakdown)
	assert.Equal(t, 45.75, second.Breakdown.Final)
	assert.Equal(t, domain.RiskModerate, second.Breakdown.Level)
	assert.Equal(t, first.Token.Flags, second.Token.Flags)

	w, err := f.wallets.Get(ctx, deployerAddr, "base")
	require.NoError(t, err)
	assert.Equal(t, 1, w.TotalDeployed)
	assert.Zero(t, w.SuspectedRugs)
}

func TestAnalyzeToken_OwnershipFailureUsesDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.opts.Ownership = failingOwnership{}

	out, err := f.orchestrator().AnalyzeToken(ctx, tokenAddr.Hex(), "base")
	require.NoError(t, err)

	assert.Equal(t, 50.0, out.Breakdown.Contract)
	assert.Equal(t, 50.0, out.Breakdown.Ownership)
	assert.Equal(t, ownership.FlagAnalysisFailed, out.Token.Flags[0])

	_, err = f.contracts.Get(ctx, domain.NormalizeAddress(tokenAddr.Hex()), "base")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAnalyzeToken_LiquidityFailureUsesDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.liq.err = errors.New("rpc timeout")

	out, err := f.orchestrator().AnalyzeToken(ctx, tokenAddr.Hex(), "base")
	require.NoError(t, err)
	assert.Equal(t, 50.0, out.Breakdown.Liquidity)
	assert.Contains(t, out.Token.Flags, liquidity.FlagAnalysisFailed)

	pools, err := f.pools.ListByToken(ctx, domain.NormalizeAddress(tokenAddr.Hex()), "base")
	require.NoError(t, err)
	assert.Empty(t, pools)
}

func TestAnalyzeToken_DeployerFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.opts.Deployer = failingProfiler{}
	o := f.orchestrator()

	_, err := o.AnalyzeToken(ctx, tokenAddr.Hex(), "base")
	require.Error(t, err)

	addr := domain.NormalizeAddress(tokenAddr.Hex())
	stored, err := f.tokens.Get(ctx, addr, "base")
	require.NoError(t, err)
	assert.Nil(t, stored.AnalyzedAt)
	hist, err := f.history.ListByToken(ctx, addr, "base")
	require.NoError(t, err)
	assert.Empty(t, hist)

	res := o.Handle(ctx, tasks.Task{Address: addr, Chain: "base"})
	assert.Equal(t, tasks.OutcomeRetryable, res.Outcome)
}

func TestHandle_MissingTokenIsPermanent(t *testing.T) {
	f := newFixture(t)
	res := f.orchestrator().Handle(context.Background(), tasks.Task{Address: "0x00000000000000000000000000000000000000ff", Chain: "base"})
	assert.Equal(t, tasks.OutcomePermanent, res.Outcome)
	assert.ErrorIs(t, res.Err, storage.ErrNotFound)
}

func TestHandle_Success(t *testing.T) {
	f := newFixture(t)
	res := f.orchestrator().Handle(context.Background(), tasks.NewTask(tokenAddr.Hex(), "base", fixedNow))
	assert.True(t, res.OK())
}

func TestAnalyzeToken_ClusterFlags(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	wg := f.opts.Graph
	for i := 0; i < 12; i++ {
		wg.RecordFunding(ctx, fmt.Sprintf("0x%040x", 0x1000+i), deployerAddr, "base", "", "1")
	}

	out, err := f.orchestrator().AnalyzeToken(ctx, tokenAddr.Hex(), "base")
	require.NoError(t, err)

	// 12 funders, the token and its pool.
	assert.Equal(t, 14, out.Cluster.ClusterSize)
	_, wantFlags := graph.ClusterScore(14)
	require.Len(t, wantFlags, 1)
	assert.Equal(t, wantFlags[0], out.Token.Flags[len(out.Token.Flags)-1])
	assert.Equal(t, 36.75, out.Breakdown.Final, "cluster risk does not change the final score")
}

func TestAnalyzeToken_Explanation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ex := &stubExplainer{text: "Owner can mint.", ok: true}
	f.opts.Explainer = ex

	out, err := f.orchestrator().AnalyzeToken(ctx, tokenAddr.Hex(), "base")
	require.NoError(t, err)
	require.NotNil(t, out.Token.Explanation)
	assert.Equal(t, "Owner can mint.", *out.Token.Explanation)
	assert.Equal(t, 36.75, ex.got.FinalScore)
	assert.Equal(t, domain.RiskModerate, ex.got.RiskLevel)

	stored, err := f.tokens.Get(ctx, domain.NormalizeAddress(tokenAddr.Hex()), "base")
	require.NoError(t, err)
	require.NotNil(t, stored.Explanation)
}

func TestAnalyzeToken_ExplainerFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.opts.Explainer = &stubExplainer{err: errors.New("completion timeout")}

	out, err := f.orchestrator().AnalyzeToken(context.Background(), tokenAddr.Hex(), "base")
	require.NoError(t, err)
	assert.Nil(t, out.Token.Explanation)
}

func TestRunPendingAnalyses_Enqueues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.tokens.Insert(ctx, &domain.Token{
		Address:   "0x00000000000000000000000000000000000000bb",
		Chain:     "base",
		Deployer:  deployerAddr,
		CreatedAt: fixedNow.Add(time.Minute).UnixMilli(),
	}))
	q := &recordingEnqueuer{}
	f.opts.Enqueuer = q

	n, err := f.orchestrator().RunPendingAnalyses(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{
		"base:" + domain.NormalizeAddress(tokenAddr.Hex()),
		"base:0x00000000000000000000000000000000000000bb",
	}, q.calls)
}

func TestRunPendingAnalyses_ContinuesPastEnqueueErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.tokens.Insert(ctx, &domain.Token{
		Address:   "0x00000000000000000000000000000000000000bb",
		Chain:     "base",
		Deployer:  deployerAddr,
		CreatedAt: fixedNow.Add(time.Minute).UnixMilli(),
	}))
	q := &recordingEnqueuer{fail: map[string]bool{domain.NormalizeAddress(tokenAddr.Hex()): true}}
	f.opts.Enqueuer = q

	n, err := f.orchestrator().RunPendingAnalyses(ctx, 10)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, q.calls, 1)
}

func TestRunPendingAnalyses_InlineWithoutQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.orchestrator()

	n, err := o.RunPendingAnalyses(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := f.tokens.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMergeFlags(t *testing.T) {
	got := MergeFlags([]string{"a", "b"}, nil, []string{"b", "c"}, []string{"a"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, []string{}, MergeFlags())
}

func TestChainRouting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.opts.Ownership = ChainOwnership{"base": f.opts.Ownership}
	f.opts.Liquidity = ChainLiquidity{"base": f.opts.Liquidity}
	f.opts.Deployer = ChainProfilers{"base": f.opts.Deployer}

	out, err := f.orchestrator().AnalyzeToken(ctx, tokenAddr.Hex(), "base")
	require.NoError(t, err)
	assert.Equal(t, 36.75, out.Breakdown.Final)

	_, err = ChainOwnership{}.Analyze(ctx, &domain.Token{Chain: "ethereum"})
	assert.ErrorIs(t, err, ErrUnknownChain)
	_, err = ChainLiquidity{}.Assess(ctx, &domain.Token{Chain: "ethereum"})
	assert.ErrorIs(t, err, ErrUnknownChain)
	_, err = ChainProfilers{}.Profile(ctx, deployerAddr, "ethereum", "")
	assert.ErrorIs(t, err, ErrUnknownChain)
}
