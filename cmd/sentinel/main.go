package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"sentinel-ledger/internal/config"
	"sentinel-ledger/internal/ingestion"
	"sentinel-ledger/internal/observability"
	"sentinel-ledger/internal/orchestrator"
	"sentinel-ledger/internal/reporting"
	"sentinel-ledger/internal/storage/migrations"
	"sentinel-ledger/internal/tasks"
	"sentinel-ledger/internal/verification"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	mode := flag.String("mode", "run", "Mode: run, analyze, sweep, graph-sync, report, verify, or migrate")
	token := flag.String("token", "", "Token address (analyze mode)")
	chainName := flag.String("chain", "", "Chain name (analyze mode)")
	outputDir := flag.String("output-dir", "reports", "Output directory for generated files (report mode)")
	topN := flag.Int("top", 25, "Rows per table (report mode)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	setupLogging(cfg.General)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}
	log.Info().
		Str("mode", *mode).
		Int("chains", len(cfg.Chains)).
		Bool("use_memory", cfg.General.UseMemory).
		Msg("sentinel starting")

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			log.Warn().Str("signal", sig.String()).Msg("second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Error().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	switch *mode {
	case "run":
		err = runService(ctx, cfg)
	case "analyze":
		err = runAnalyze(ctx, cfg, *token, *chainName)
	case "sweep":
		err = runSweep(ctx, cfg)
	case "graph-sync":
		err = runGraphSync(ctx, cfg)
	case "report":
		err = runReport(ctx, cfg, *outputDir, *topN)
	case "verify":
		err = runVerify(ctx, cfg)
	case "migrate":
		err = runMigrate(ctx, cfg)
	default:
		err = fmt.Errorf("unknown mode: %s", *mode)
	}

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Str("mode", *mode).Msg("sentinel failed")
	}
	log.Info().Msg("shutdown complete")
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "sentinel").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "sentinel").
			Str("instance", general.InstanceID).Logger()
	}
}

// serveMetrics runs the metrics server until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// runService runs listeners, the sweep scheduler and analysis workers.
func runService(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer a.close()

	var orch *orchestrator.Orchestrator
	runner := tasks.NewRunner(tasks.RunnerOptions{
		Handler: tasks.HandlerFunc(func(ctx context.Context, t tasks.Task) tasks.Result {
			return orch.Handle(ctx, t)
		}),
		MaxRetries: cfg.Tasks.MaxRetries,
		RetryDelay: cfg.Tasks.RetryDelay,
		Timeout:    cfg.Tasks.TaskTimeout,
		Logger:     log.Logger.With().Str("component", "tasks").Logger(),
	})
	queue, err := a.queue(runner)
	if err != nil {
		return err
	}
	orch = a.orchestrator(queue)

	listeners, err := a.listeners(ctx, queue)
	if err != nil {
		return err
	}
	retriers := make([]tasks.SkipRetrier, 0, len(listeners))
	for _, l := range listeners {
		retriers = append(retriers, l)
	}
	scheduler := tasks.NewScheduler(tasks.SchedulerOptions{
		Sweeper:  orch,
		Retriers: retriers,
		Interval: cfg.Tasks.SweepInterval,
		Batch:    cfg.Tasks.SweepBatch,
		Logger:   log.Logger.With().Str("component", "scheduler").Logger(),
	})

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Addr) })
	}
	g.Go(func() error { return queue.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	for _, l := range listeners {
		g.Go(func() error { return l.Run(gctx) })
	}
	return g.Wait()
}

// runAnalyze analyzes one token inline and logs the breakdown.
func runAnalyze(ctx context.Context, cfg *config.Config, token, chainName string) error {
	if token == "" || chainName == "" {
		return fmt.Errorf("--token and --chain are required for analyze mode")
	}
	a, err := newApp(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer a.close()

	out, err := a.orchestrator(nil).AnalyzeToken(ctx, token, chainName)
	if err != nil {
		return err
	}
	log.Info().
		Str("token", out.Token.Address).
		Float64("contract", out.Breakdown.Contract).
		Float64("liquidity", out.Breakdown.Liquidity).
		Float64("ownership", out.Breakdown.Ownership).
		Float64("deployer", out.Breakdown.Deployer).
		Float64("final", out.Breakdown.Final).
		Str("level", string(out.Breakdown.Level)).
		Strs("flags", out.Token.Flags).
		Msg("analysis complete")
	return nil
}

// runSweep schedules one batch of pending tokens. With Kafka configured
// the tasks are published; otherwise they are analyzed inline.
func runSweep(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer a.close()

	var enq orchestrator.Enqueuer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := tasks.NewKafkaQueue(tasks.KafkaQueueOptions{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Logger:  log.Logger,
		})
		if err != nil {
			return err
		}
		defer producer.Close()
		enq = producer
	}

	n, err := a.orchestrator(enq).RunPendingAnalyses(ctx, cfg.Tasks.SweepBatch)
	log.Info().Int("scheduled", n).Msg("sweep finished")
	return err
}

// runGraphSync rebuilds the wallet graph from the relational store.
func runGraphSync(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.graph.SyncFromStore(ctx, a.tokens, a.pools, a.wallets)
	if err != nil {
		return err
	}
	log.Info().
		Int("wallets", stats.Wallets).
		Int("tokens", stats.Tokens).
		Int("pools", stats.Pools).
		Msg("graph sync finished")
	return nil
}

// runReport writes the risk report as Markdown plus the token table as CSV.
func runReport(ctx context.Context, cfg *config.Config, outputDir string, topN int) error {
	a, err := newApp(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := reporting.NewGenerator(a.tokens, a.wallets, topN).Generate(ctx)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	mdPath := filepath.Join(outputDir, "RISK_REPORT.md")
	if err := os.WriteFile(mdPath, []byte(reporting.RenderMarkdown(r)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", mdPath, err)
	}
	csvPath := filepath.Join(outputDir, "risky_tokens.csv")
	if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(r.Tokens)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", csvPath, err)
	}

	log.Info().
		Int("tokens", r.Summary.TotalTokens).
		Int("analyzed", r.Summary.AnalyzedTokens).
		Str("markdown", mdPath).
		Str("csv", csvPath).
		Msg("report written")
	return nil
}

// runVerify re-scores every analyzed token and logs each divergence.
// It fails when any token diverges.
func runVerify(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer a.close()

	v := verification.NewScoreVerifier(verification.ScoreVerifierOptions{
		TokenStore:   a.tokens,
		HistoryStore: a.history,
		Engine:       a.engine(),
	})
	report, err := v.VerifyAll(ctx)
	if err != nil {
		return err
	}

	for _, r := range report.Results {
		for _, d := range r.Divergences {
			log.Warn().
				Str("chain", r.Chain).
				Str("token", r.Address).
				Str("divergence", d.String()).
				Msg("score divergence")
		}
	}
	log.Info().
		Int("verified", report.TotalTokens).
		Int("matched", report.MatchedTokens).
		Int("divergent", report.DivergentTokens).
		Int("skipped", report.SkippedTokens).
		Msg("verification finished")

	if report.DivergentTokens > 0 {
		return fmt.Errorf("%d of %d tokens diverge", report.DivergentTokens, report.TotalTokens)
	}
	return nil
}

// runMigrate applies the Postgres and ClickHouse schemas and the Neo4j indexes.
func runMigrate(ctx context.Context, cfg *config.Config) error {
	if cfg.General.UseMemory {
		return fmt.Errorf("migrate mode needs postgres; use_memory is set")
	}
	pool, err := openPostgres(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	log.Info().Msg("postgres migrations applied")

	if cfg.ClickHouse.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		conn.Close()
		log.Info().Msg("clickhouse migrations applied")
	}

	if cfg.Neo4j.URI != "" {
		store, err := openNeo4j(ctx, cfg.Neo4j)
		if err != nil {
			return err
		}
		defer store.Close(context.Background())
		log.Info().Msg("neo4j indexes ensured")
	}
	return nil
}

// Compile-time checks for the wiring below.
var (
	_ ingestion.Enqueuer    = (analysisQueue)(nil)
	_ orchestrator.Enqueuer = (analysisQueue)(nil)
)
