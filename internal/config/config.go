// Package config loads the YAML configuration shared by every binary.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Neo4j      Neo4jConfig      `yaml:"neo4j"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Chains     []ChainConfig    `yaml:"chains"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Liquidity  LiquidityConfig  `yaml:"liquidity"`
	Deployer   DeployerConfig   `yaml:"deployer"`
	Graph      GraphConfig      `yaml:"graph"`
	Tasks      TasksConfig      `yaml:"tasks"`
}

type GeneralConfig struct {
	InstanceID string `yaml:"instance_id"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"` // json|text
	UseMemory  bool   `yaml:"use_memory"` // in-memory stores and local queue
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// ClickHouseConfig is optional; an empty DSN keeps observations in memory.
type ClickHouseConfig struct {
	DSN string `yaml:"dsn"`
}

// Neo4jConfig is optional; an empty URI keeps the wallet graph in memory.
type Neo4jConfig struct {
	URI      string        `yaml:"uri"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
}

// KafkaConfig is optional; no brokers means analysis tasks run on the local worker pool.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the metrics server
}

// ChainConfig describes one EVM chain the listener follows.
type ChainConfig struct {
	Name          string        `yaml:"name"`
	ChainID       int64         `yaml:"chain_id"`
	RPCURL        string        `yaml:"rpc_url"`
	WSURL         string        `yaml:"ws_url"` // optional newHeads wake-up
	StartBlock    uint64        `yaml:"start_block"`
	MaxBlockBatch uint64        `yaml:"max_block_batch"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	ErrorBackoff  time.Duration `yaml:"error_backoff"`
	RPCTimeout    time.Duration `yaml:"rpc_timeout"`

	WETH             string   `yaml:"weth"`
	USDC             string   `yaml:"usdc"`
	UniswapV3Factory string   `yaml:"uniswap_v3_factory"`
	AerodromeFactory string   `yaml:"aerodrome_factory"`
	Bridges          []string `yaml:"bridges"`
	SecondaryChain   string   `yaml:"secondary_chain"` // cross-chain correlation target
}

// ScoringConfig holds the final-score weights and band upper bounds.
type ScoringConfig struct {
	Weights WeightsConfig `yaml:"weights"`
	Bands   BandsConfig   `yaml:"bands"`
}

type WeightsConfig struct {
	Contract  float64 `yaml:"contract"`
	Liquidity float64 `yaml:"liquidity"`
	Ownership float64 `yaml:"ownership"`
	Deployer  float64 `yaml:"deployer"`
}

// Sum returns the total weight.
func (w WeightsConfig) Sum() float64 {
	return w.Contract + w.Liquidity + w.Ownership + w.Deployer
}

// BandsConfig holds inclusive upper bounds: score <= LowMax is LOW, and so on.
type BandsConfig struct {
	LowMax      float64 `yaml:"low_max"`
	ModerateMax float64 `yaml:"moderate_max"`
	HighMax     float64 `yaml:"high_max"`
}

type LiquidityConfig struct {
	WETHPriceUSD        float64       `yaml:"weth_price_usd"`
	MinLiquidityUSD     float64       `yaml:"min_liquidity_usd"`
	Lockers             []string      `yaml:"lockers"`
	EarlyRemovalWindow  time.Duration `yaml:"early_removal_window"`
	EarlyRemovalPercent float64       `yaml:"early_removal_percent"`
}

type DeployerConfig struct {
	RugThreshold float64 `yaml:"rug_threshold"`
}

type GraphConfig struct {
	ClusterDepth int `yaml:"cluster_depth"`
}

type TasksConfig struct {
	Workers       int           `yaml:"workers"`
	MaxRetries    uint64        `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepBatch    int           `yaml:"sweep_batch"`
	TaskTimeout   time.Duration `yaml:"task_timeout"`
}

// Load reads a config file from path, expands environment variables, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a Config with defaults applied.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// Default returns a configuration with every default applied and no chains.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "sentinel-1"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = "neo4j"
	}
	if cfg.Neo4j.Timeout == 0 {
		cfg.Neo4j.Timeout = 10 * time.Second
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "sentinel.analysis.tasks"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "sentinel-analyzers"
	}

	for i := range cfg.Chains {
		applyChainDefaults(&cfg.Chains[i])
	}

	w := &cfg.Scoring.Weights
	if w.Contract == 0 && w.Liquidity == 0 && w.Ownership == 0 && w.Deployer == 0 {
		*w = WeightsConfig{Contract: 0.35, Liquidity: 0.30, Ownership: 0.20, Deployer: 0.15}
	}
	b := &cfg.Scoring.Bands
	if b.LowMax == 0 && b.ModerateMax == 0 && b.HighMax == 0 {
		*b = BandsConfig{LowMax: 25, ModerateMax: 50, HighMax: 75}
	}

	l := &cfg.Liquidity
	if l.WETHPriceUSD == 0 {
		l.WETHPriceUSD = 2500
	}
	if l.MinLiquidityUSD == 0 {
		l.MinLiquidityUSD = 5000
	}
	if l.Lockers == nil {
		l.Lockers = []string{
			"0x663a5c229c09b049e36dcc11a9b0d4a8eb9db214", // UNCX
			"0xe2fe530c047f2d85298b07d9333c05737f1435fb", // Team Finance
		}
	}
	if l.EarlyRemovalWindow == 0 {
		l.EarlyRemovalWindow = 72 * time.Hour
	}
	if l.EarlyRemovalPercent == 0 {
		l.EarlyRemovalPercent = 50
	}

	if cfg.Deployer.RugThreshold == 0 {
		cfg.Deployer.RugThreshold = 70
	}
	if cfg.Graph.ClusterDepth == 0 {
		cfg.Graph.ClusterDepth = 2
	}

	t := &cfg.Tasks
	if t.Workers == 0 {
		t.Workers = 4
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = 3
	}
	if t.RetryDelay == 0 {
		t.RetryDelay = 60 * time.Second
	}
	if t.SweepInterval == 0 {
		t.SweepInterval = 120 * time.Second
	}
	if t.SweepBatch == 0 {
		t.SweepBatch = 100
	}
	if t.TaskTimeout == 0 {
		t.TaskTimeout = 5 * time.Minute
	}
}

func applyChainDefaults(c *ChainConfig) {
	if known, ok := knownChains[c.Name]; ok {
		if c.ChainID == 0 {
			c.ChainID = known.ChainID
		}
		if c.WETH == "" {
			c.WETH = known.WETH
		}
		if c.USDC == "" {
			c.USDC = known.USDC
		}
		if c.UniswapV3Factory == "" {
			c.UniswapV3Factory = known.UniswapV3Factory
		}
		if c.AerodromeFactory == "" {
			c.AerodromeFactory = known.AerodromeFactory
		}
		if c.Bridges == nil {
			c.Bridges = known.Bridges
		}
	}
	if c.MaxBlockBatch == 0 {
		c.MaxBlockBatch = 100
	}
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ErrorBackoff == 0 {
		c.ErrorBackoff = 10 * time.Second
	}
	if c.RPCTimeout == 0 {
		c.RPCTimeout = 30 * time.Second
	}
}

// knownChains supplies contract addresses for chains that need no manual setup.
var knownChains = map[string]ChainConfig{
	"base": {
		ChainID:          8453,
		WETH:             "0x4200000000000000000000000000000000000006",
		USDC:             "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		UniswapV3Factory: "0x33128a8fc17869897dce68ed026d694621f6fdfd",
		AerodromeFactory: "0x420dd381b31aef6683db6b902084cb0ffece40da",
		Bridges: []string{
			"0x3154cf16ccdb4c6d922629664174b904d80f2c35",
			"0x49048044d57e1c92a77f79988d21fa8faf74e97e",
		},
	},
	"ethereum": {
		ChainID:          1,
		WETH:             "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		USDC:             "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		UniswapV3Factory: "0x1f98431c8ad98523631ae4a59f267346ea31f984",
		Bridges: []string{
			"0x3154cf16ccdb4c6d922629664174b904d80f2c35",
			"0x49048044d57e1c92a77f79988d21fa8faf74e97e",
		},
	},
}

// weightTolerance absorbs float rounding in YAML-provided weights.
const weightTolerance = 1e-9

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if !c.General.UseMemory && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required unless general.use_memory is set")
	}

	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	seen := make(map[string]bool, len(c.Chains))
	for _, ch := range c.Chains {
		if ch.Name == "" {
			return fmt.Errorf("chain name is required")
		}
		if seen[ch.Name] {
			return fmt.Errorf("duplicate chain %q", ch.Name)
		}
		seen[ch.Name] = true
		if ch.RPCURL == "" {
			return fmt.Errorf("chain %s: rpc_url is required", ch.Name)
		}
		if ch.WETH == "" || ch.USDC == "" {
			return fmt.Errorf("chain %s: weth and usdc addresses are required", ch.Name)
		}
	}
	for _, ch := range c.Chains {
		if ch.SecondaryChain != "" && !seen[ch.SecondaryChain] {
			return fmt.Errorf("chain %s: secondary_chain %q is not configured", ch.Name, ch.SecondaryChain)
		}
	}

	if err := c.Scoring.Validate(); err != nil {
		return err
	}

	if c.Liquidity.EarlyRemovalPercent <= 0 || c.Liquidity.EarlyRemovalPercent > 100 {
		return fmt.Errorf("liquidity.early_removal_percent must be in (0, 100]")
	}
	if c.Graph.ClusterDepth < 1 || c.Graph.ClusterDepth > 3 {
		return fmt.Errorf("graph.cluster_depth must be between 1 and 3")
	}
	if c.Tasks.Workers < 1 {
		return fmt.Errorf("tasks.workers must be positive")
	}
	return nil
}

// Validate checks that weights are non-negative and sum to 1.0 and that
// bands are ordered within [0, 100].
func (s ScoringConfig) Validate() error {
	w := s.Weights
	for name, v := range map[string]float64{
		"contract": w.Contract, "liquidity": w.Liquidity, "ownership": w.Ownership, "deployer": w.Deployer,
	} {
		if v < 0 {
			return fmt.Errorf("scoring.weights.%s must be non-negative", name)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("scoring weights must sum to 1.0, got %v", sum)
	}

	b := s.Bands
	if !(0 < b.LowMax && b.LowMax < b.ModerateMax && b.ModerateMax < b.HighMax && b.HighMax < 100) {
		return fmt.Errorf("scoring bands must satisfy 0 < low_max < moderate_max < high_max < 100")
	}
	return nil
}

// Chain returns the configuration of the named chain.
func (c *Config) Chain(name string) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChainConfig{}, false
}
