package storage

import (
	"context"

	"sentinel-ledger/internal/domain"
)

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// Insert adds a newly classified token. Returns ErrDuplicateKey if (address, chain) exists.
	Insert(ctx context.Context, t *domain.Token) error

	// Get retrieves a token. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address, chain string) (*domain.Token, error)

	// Exists reports whether a token row exists for (address, chain).
	Exists(ctx context.Context, address, chain string) (bool, error)

	// ListByDeployer returns all tokens deployed by deployer on chain, ordered by deploy block ASC.
	ListByDeployer(ctx context.Context, deployer, chain string) ([]*domain.Token, error)

	// ListPending returns up to limit tokens that were never analyzed, oldest first.
	ListPending(ctx context.Context, limit int) ([]*domain.Token, error)

	// ListDeployers returns the distinct deployer addresses seen on chain.
	ListDeployers(ctx context.Context, chain string) ([]string, error)

	// ListAll returns every token, ordered by (chain, deploy block).
	ListAll(ctx context.Context) ([]*domain.Token, error)
}

// WalletStore provides access to wallets storage.
type WalletStore interface {
	// Upsert inserts or overwrites a wallet profile keyed by (address, chain).
	Upsert(ctx context.Context, w *domain.Wallet) error

	// Get retrieves a wallet. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address, chain string) (*domain.Wallet, error)

	// ListAll returns every wallet.
	ListAll(ctx context.Context) ([]*domain.Wallet, error)
}

// PoolStore provides access to liquidity_pools storage.
type PoolStore interface {
	// Upsert inserts or updates a pool keyed by (chain, pool address).
	// Initial liquidity is kept once set, peak liquidity never decreases,
	// and the early-removal flag never clears.
	Upsert(ctx context.Context, p *domain.LiquidityPool) error

	// Get retrieves a pool. Returns ErrNotFound if not exists.
	Get(ctx context.Context, chain, poolAddress string) (*domain.LiquidityPool, error)

	// ListByToken returns all pools of a token, ordered by pool address.
	ListByToken(ctx context.Context, tokenAddress, chain string) ([]*domain.LiquidityPool, error)

	// ListAll returns every pool.
	ListAll(ctx context.Context) ([]*domain.LiquidityPool, error)
}

// ContractAnalysisStore provides access to contract_analysis storage.
type ContractAnalysisStore interface {
	// Upsert overwrites the analysis row for (token address, chain).
	Upsert(ctx context.Context, a *domain.ContractAnalysis) error

	// Get retrieves the analysis row. Returns ErrNotFound if not exists.
	Get(ctx context.Context, tokenAddress, chain string) (*domain.ContractAnalysis, error)
}

// RiskHistoryStore provides access to the append-only risk_history log.
type RiskHistoryStore interface {
	// Append inserts a new history record and assigns its ID.
	Append(ctx context.Context, h *domain.RiskHistory) error

	// ListByToken returns the history of a token, ordered by ID ASC.
	ListByToken(ctx context.Context, tokenAddress, chain string) ([]*domain.RiskHistory, error)
}

// CheckpointStore persists the per-chain ProcessedBlock checkpoint.
type CheckpointStore interface {
	// Get returns the checkpoint of chain. Returns ErrNotFound if none saved yet.
	Get(ctx context.Context, chain string) (*domain.ProcessedBlock, error)

	// Set overwrites the checkpoint. A block number lower than the stored one is ignored.
	Set(ctx context.Context, b *domain.ProcessedBlock) error
}

// SkippedBlockStore records blocks the listener could not process.
type SkippedBlockStore interface {
	// Record stores a skipped block, incrementing attempts if it is already recorded.
	Record(ctx context.Context, b *domain.SkippedBlock) error

	// ListUnresolved returns up to limit unresolved blocks of chain, lowest first.
	ListUnresolved(ctx context.Context, chain string, limit int) ([]*domain.SkippedBlock, error)

	// Resolve marks a skipped block as processed.
	Resolve(ctx context.Context, chain string, blockNumber uint64, resolvedAt int64) error
}

// ObservationStore provides access to pool liquidity observations.
type ObservationStore interface {
	// Insert appends one observation.
	Insert(ctx context.Context, o *domain.PoolObservation) error

	// ListByPool returns observations of a pool, ordered by time ASC.
	ListByPool(ctx context.Context, chain, poolAddress string) ([]*domain.PoolObservation, error)
}

// AnalysisRecord is everything one analysis pass writes.
type AnalysisRecord struct {
	Token    *domain.Token            // scores, level, flags, analyzed_at
	Contract *domain.ContractAnalysis // nil when bytecode analysis failed
	Pools    []*domain.LiquidityPool
	Wallet   *domain.Wallet // nil when the deployer was not profiled
	History  *domain.RiskHistory
}

// AnalysisWriter persists an analysis pass atomically: either every row
// is written or none is. Returns ErrNotFound if the token row is missing.
type AnalysisWriter interface {
	SaveAnalysis(ctx context.Context, rec *AnalysisRecord) error
}
