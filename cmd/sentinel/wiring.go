package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"sentinel-ledger/internal/chain"
	"sentinel-ledger/internal/config"
	"sentinel-ledger/internal/deployer"
	"sentinel-ledger/internal/dex"
	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/graph"
	"sentinel-ledger/internal/graph/neo4jstore"
	"sentinel-ledger/internal/ingestion"
	"sentinel-ledger/internal/liquidity"
	"sentinel-ledger/internal/orchestrator"
	"sentinel-ledger/internal/ownership"
	"sentinel-ledger/internal/scoring"
	"sentinel-ledger/internal/storage"
	chstore "sentinel-ledger/internal/storage/clickhouse"
	"sentinel-ledger/internal/storage/memory"
	pgstore "sentinel-ledger/internal/storage/postgres"
	"sentinel-ledger/internal/tasks"
)

var _ ingestion.EdgeRecorder = (*graph.WalletGraph)(nil)

// analysisQueue is the local worker pool or the Kafka consumer.
type analysisQueue interface {
	Enqueue(ctx context.Context, address, chain string) error
	Run(ctx context.Context) error
}

// app holds the stores, chain clients and graph shared by every mode.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	tokens       storage.TokenStore
	wallets      storage.WalletStore
	pools        storage.PoolStore
	checkpoints  storage.CheckpointStore
	skipped      storage.SkippedBlockStore
	observations storage.ObservationStore
	history      storage.RiskHistoryStore
	writer       storage.AnalysisWriter

	graph   *graph.WalletGraph
	clients map[string]*chain.RPCClient
	closers []func()
}

// newApp connects every configured backend. Connection failures are fatal.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, clients: make(map[string]*chain.RPCClient)}
	if err := a.openStores(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openGraph(ctx); err != nil {
		a.close()
		return nil, err
	}
	for _, c := range cfg.Chains {
		client, err := chain.Dial(ctx, c.RPCURL, chain.ClientOptions{Name: c.Name, Timeout: c.RPCTimeout})
		if err != nil {
			a.close()
			return nil, err
		}
		a.clients[c.Name] = client
		a.closers = append(a.closers, client.Close)
		logger.Info().Str("chain", c.Name).Int64("chain_id", c.ChainID).Msg("chain client connected")
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	if a.cfg.General.UseMemory {
		tokens := memory.NewTokenStore()
		wallets := memory.NewWalletStore()
		pools := memory.NewPoolStore()
		a.tokens, a.wallets, a.pools = tokens, wallets, pools
		a.checkpoints = memory.NewCheckpointStore()
		a.skipped = memory.NewSkippedBlockStore()
		a.observations = memory.NewObservationStore()
		history := memory.NewRiskHistoryStore()
		a.history = history
		a.writer = memory.NewAnalysisWriter(tokens, memory.NewContractAnalysisStore(), pools, wallets, history)
		a.logger.Info().Msg("using in-memory stores")
		return nil
	}

	pool, err := openPostgres(ctx, a.cfg.Postgres)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)
	a.tokens = pgstore.NewTokenStore(pool)
	a.wallets = pgstore.NewWalletStore(pool)
	a.pools = pgstore.NewPoolStore(pool)
	a.checkpoints = pgstore.NewCheckpointStore(pool)
	a.skipped = pgstore.NewSkippedBlockStore(pool)
	a.history = pgstore.NewRiskHistoryStore(pool)
	a.writer = pgstore.NewAnalysisWriter(pool)

	if a.cfg.ClickHouse.DSN == "" {
		a.observations = memory.NewObservationStore()
		return nil
	}
	conn, err := chstore.NewConn(ctx, a.cfg.ClickHouse.DSN)
	if err != nil {
		return fmt.Errorf("connect to clickhouse: %w", err)
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })
	a.observations = chstore.NewObservationStore(conn)
	return nil
}

func (a *app) openGraph(ctx context.Context) error {
	var store graph.Store = graph.NewMemoryStore()
	if a.cfg.Neo4j.URI != "" {
		s, err := openNeo4j(ctx, a.cfg.Neo4j)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = s.Close(context.Background()) })
		store = s
	}
	a.graph = graph.NewWalletGraph(graph.WalletGraphOptions{
		Store:   store,
		Depth:   a.cfg.Graph.ClusterDepth,
		Timeout: a.cfg.Neo4j.Timeout,
		Logger:  a.logger.With().Str("component", "graph").Logger(),
	})
	return nil
}

func openPostgres(ctx context.Context, cfg config.PostgresConfig) (*pgstore.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required (set general.use_memory for in-memory storage)")
	}
	pool, err := pgstore.NewPool(ctx, cfg.DSN, pgstore.PoolOptions{MaxConns: cfg.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pool, nil
}

func openNeo4j(ctx context.Context, cfg config.Neo4jConfig) (*neo4jstore.Store, error) {
	s, err := neo4jstore.Open(ctx, neo4jstore.Options{
		URI:      cfg.URI,
		Username: cfg.Username,
		Password: cfg.Password,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("neo4j schema: %w", err)
	}
	return s, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// orchestrator wires the per-chain analyzers. A nil enq makes the sweep
// analyze inline.
func (a *app) orchestrator(enq orchestrator.Enqueuer) *orchestrator.Orchestrator {
	owners := orchestrator.ChainOwnership{}
	liq := orchestrator.ChainLiquidity{}
	profilers := orchestrator.ChainProfilers{}

	for _, c := range a.cfg.Chains {
		client := a.clients[c.Name]
		log := a.logger.With().Str("chain", c.Name).Logger()

		owners[c.Name] = ownership.NewAnalyzer(ownership.Options{
			Client: client,
			Logger: log.With().Str("component", "ownership").Logger(),
		})

		liq[c.Name] = liquidity.NewAggregator(liquidity.Options{
			Finder:              discoveryFor(c, client, log),
			Pools:               a.pools,
			Observations:        a.observations,
			WETHPriceUSD:        a.cfg.Liquidity.WETHPriceUSD,
			MinLiquidityUSD:     a.cfg.Liquidity.MinLiquidityUSD,
			Lockers:             a.cfg.Liquidity.Lockers,
			EarlyRemovalWindow:  a.cfg.Liquidity.EarlyRemovalWindow,
			EarlyRemovalPercent: a.cfg.Liquidity.EarlyRemovalPercent,
			Logger:              log.With().Str("component", "liquidity").Logger(),
		})

		opts := deployer.Options{
			Tokens:       a.tokens,
			Wallets:      a.wallets,
			Funders:      a.graph,
			RugThreshold: a.cfg.Deployer.RugThreshold,
			Logger:       log.With().Str("component", "deployer").Logger(),
		}
		if c.SecondaryChain != "" && c.SecondaryChain != c.Name {
			cc := deployer.CrossChainOptions{
				Chain:        c.SecondaryChain,
				Tokens:       a.tokens,
				RugThreshold: a.cfg.Deployer.RugThreshold,
				Logger:       log,
			}
			if secondary, ok := a.clients[c.SecondaryChain]; ok {
				cc.Client = secondary
			}
			opts.CrossChain = deployer.NewCrossChain(cc)
		}
		profilers[c.Name] = deployer.NewProfiler(opts)
	}

	return orchestrator.New(orchestrator.Options{
		Tokens:    a.tokens,
		Writer:    a.writer,
		Ownership: owners,
		Liquidity: liq,
		Deployer:  profilers,
		Scorer:    a.engine(),
		Graph:     a.graph,
		Enqueuer:  enq,
		Logger:    a.logger.With().Str("component", "orchestrator").Logger(),
	})
}

// engine builds the scoring engine from the configured tables.
func (a *app) engine() *scoring.Engine {
	// Config validation already checked the table.
	w := a.cfg.Scoring.Weights
	b := a.cfg.Scoring.Bands
	engine, err := scoring.NewEngine(
		scoring.Weights{Contract: w.Contract, Liquidity: w.Liquidity, Ownership: w.Ownership, Deployer: w.Deployer},
		scoring.Bands{LowMax: b.LowMax, ModerateMax: b.ModerateMax, HighMax: b.HighMax},
	)
	if err != nil {
		a.logger.Fatal().Err(err).Msg("invalid scoring table")
	}
	return engine
}

func discoveryFor(c config.ChainConfig, client chain.Client, log zerolog.Logger) *dex.Discovery {
	var probers []dex.PoolProber
	if c.UniswapV3Factory != "" {
		probers = append(probers, dex.NewUniswapV3(client, common.HexToAddress(c.UniswapV3Factory)))
	}
	if c.AerodromeFactory != "" {
		probers = append(probers, dex.NewAerodrome(client, common.HexToAddress(c.AerodromeFactory)))
	}
	var paired []dex.PairedToken
	if c.WETH != "" {
		paired = append(paired, dex.PairedToken{Asset: domain.PairedWETH, Address: common.HexToAddress(c.WETH)})
	}
	if c.USDC != "" {
		paired = append(paired, dex.PairedToken{Asset: domain.PairedUSDC, Address: common.HexToAddress(c.USDC)})
	}
	return dex.NewDiscovery(dex.DiscoveryOptions{
		Probers: probers,
		Paired:  paired,
		Logger:  log.With().Str("component", "dex").Logger(),
	})
}

// queue returns the Kafka consumer when brokers are configured and the
// local worker pool otherwise.
func (a *app) queue(runner *tasks.Runner) (analysisQueue, error) {
	logger := a.logger.With().Str("component", "queue").Logger()
	if len(a.cfg.Kafka.Brokers) == 0 {
		return tasks.NewLocalQueue(tasks.LocalQueueOptions{
			Runner:  runner,
			Workers: a.cfg.Tasks.Workers,
			Logger:  logger,
		}), nil
	}
	q, err := tasks.NewKafkaQueue(tasks.KafkaQueueOptions{
		Brokers:  a.cfg.Kafka.Brokers,
		Topic:    a.cfg.Kafka.Topic,
		GroupID:  a.cfg.Kafka.GroupID,
		ClientID: a.cfg.General.InstanceID,
		Runner:   runner,
		Workers:  a.cfg.Tasks.Workers,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, q.Close)
	return q, nil
}

// listeners builds one listener per chain. Head notifiers are optional;
// a failed subscription falls back to polling.
func (a *app) listeners(ctx context.Context, enq ingestion.Enqueuer) ([]*ingestion.Listener, error) {
	out := make([]*ingestion.Listener, 0, len(a.cfg.Chains))
	for _, c := range a.cfg.Chains {
		client := a.clients[c.Name]
		log := a.logger.With().Str("component", "ingestion").Logger()

		proc := ingestion.NewBlockProcessor(ingestion.BlockProcessorOptions{
			Chain:    c.Name,
			Client:   client,
			Tokens:   a.tokens,
			Enqueuer: enq,
			Edges:    a.graph,
			Bridges:  c.Bridges,
			Logger:   log,
		})
		if err := proc.LoadDeployers(ctx); err != nil {
			return nil, fmt.Errorf("load deployers on %s: %w", c.Name, err)
		}

		var heads <-chan uint64
		if c.WSURL != "" {
			n, err := chain.NewHeadNotifier(ctx, c.WSURL, nil, log.With().Str("chain", c.Name).Logger())
			if err != nil {
				log.Warn().Err(err).Str("chain", c.Name).Msg("head subscription failed, polling only")
			} else {
				a.closers = append(a.closers, func() { _ = n.Close() })
				heads = n.Heads()
			}
		}

		out = append(out, ingestion.NewListener(ingestion.ListenerOptions{
			Chain:        c.Name,
			StartBlock:   c.StartBlock,
			BatchSize:    c.MaxBlockBatch,
			PollInterval: c.PollInterval,
			ErrorBackoff: c.ErrorBackoff,
			Client:       client,
			Handler:      proc,
			Checkpoints:  a.checkpoints,
			Skipped:      a.skipped,
			Heads:        heads,
			Logger:       log,
		}))
	}
	return out, nil
}
