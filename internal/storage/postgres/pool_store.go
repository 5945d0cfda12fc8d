package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

const poolColumns = `
	chain, pool_address, token_address, dex, paired, paired_token, variant,
	initial_liquidity_usd, current_liquidity_usd, peak_liquidity_usd, first_liquidity_at,
	locked, lp_holder, removed_early, removal_pct, created_at, updated_at
`

// Upsert inserts or updates a pool keyed by (chain, pool address).
func (s *PoolStore) Upsert(ctx context.Context, p *domain.LiquidityPool) error {
	return upsertPool(ctx, s.pool, p)
}

// upsertPool keeps initial liquidity once set, never lowers the peak, and
// never clears the early-removal flag, so concurrent duplicate writes converge.
func upsertPool(ctx context.Context, db dbtx, p *domain.LiquidityPool) error {
	if p == nil || p.Chain == "" || p.PoolAddress == "" || p.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	_, err := db.Exec(ctx, `
		INSERT INTO liquidity_pools (`+poolColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (chain, pool_address) DO UPDATE
		SET initial_liquidity_usd = CASE
		        WHEN liquidity_pools.initial_liquidity_usd > 0 THEN liquidity_pools.initial_liquidity_usd
		        ELSE EXCLUDED.initial_liquidity_usd
		    END,
		    current_liquidity_usd = EXCLUDED.current_liquidity_usd,
		    peak_liquidity_usd = GREATEST(liquidity_pools.peak_liquidity_usd, EXCLUDED.peak_liquidity_usd),
		    first_liquidity_at = COALESCE(liquidity_pools.first_liquidity_at, EXCLUDED.first_liquidity_at),
		    locked = EXCLUDED.locked,
		    lp_holder = EXCLUDED.lp_holder,
		    removed_early = liquidity_pools.removed_early OR EXCLUDED.removed_early,
		    removal_pct = GREATEST(liquidity_pools.removal_pct, EXCLUDED.removal_pct),
		    updated_at = EXCLUDED.updated_at
	`,
		p.Chain, p.PoolAddress, p.TokenAddress, string(p.DEX), string(p.Paired), p.PairedToken, p.Variant,
		p.InitialLiquidityUSD, p.CurrentLiquidityUSD, p.PeakLiquidityUSD, p.FirstLiquidityAt,
		p.Locked, p.LPHolder, p.RemovedEarly, p.RemovalPct, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}

// Get retrieves a pool. Returns ErrNotFound if not exists.
func (s *PoolStore) Get(ctx context.Context, chain, poolAddress string) (*domain.LiquidityPool, error) {
	query := `SELECT ` + poolColumns + ` FROM liquidity_pools WHERE chain = $1 AND pool_address = $2`

	p, err := scanPool(s.pool.QueryRow(ctx, query, chain, poolAddress))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return p, nil
}

// ListByToken returns all pools of a token.
func (s *PoolStore) ListByToken(ctx context.Context, tokenAddress, chain string) ([]*domain.LiquidityPool, error) {
	query := `
		SELECT ` + poolColumns + `
		FROM liquidity_pools
		WHERE token_address = $1 AND chain = $2
		ORDER BY pool_address ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenAddress, chain)
	if err != nil {
		return nil, fmt.Errorf("list pools by token: %w", err)
	}
	defer rows.Close()

	return scanPools(rows)
}

// ListAll returns every pool.
func (s *PoolStore) ListAll(ctx context.Context) ([]*domain.LiquidityPool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM liquidity_pools ORDER BY chain, pool_address`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	return scanPools(rows)
}

func scanPool(row pgx.Row) (*domain.LiquidityPool, error) {
	var p domain.LiquidityPool
	var dex, paired string

	err := row.Scan(
		&p.Chain, &p.PoolAddress, &p.TokenAddress, &dex, &paired, &p.PairedToken, &p.Variant,
		&p.InitialLiquidityUSD, &p.CurrentLiquidityUSD, &p.PeakLiquidityUSD, &p.FirstLiquidityAt,
		&p.Locked, &p.LPHolder, &p.RemovedEarly, &p.RemovalPct, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.DEX = domain.DEX(dex)
	p.Paired = domain.PairedAsset(paired)
	return &p, nil
}

func scanPools(rows pgx.Rows) ([]*domain.LiquidityPool, error) {
	var pools []*domain.LiquidityPool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool row: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool rows: %w", err)
	}
	return pools, nil
}
