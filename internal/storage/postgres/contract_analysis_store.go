package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// ContractAnalysisStore implements storage.ContractAnalysisStore using PostgreSQL.
type ContractAnalysisStore struct {
	pool *Pool
}

// NewContractAnalysisStore creates a new ContractAnalysisStore.
func NewContractAnalysisStore(pool *Pool) *ContractAnalysisStore {
	return &ContractAnalysisStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ContractAnalysisStore = (*ContractAnalysisStore)(nil)

const contractColumns = `
	token_address, chain, has_mint, mint_unrestricted, has_burn, has_blacklist, has_pause,
	has_ownership, renounced, transferable, is_proxy, is_upgradeable, has_fee_change, has_withdraw,
	owner_address, selectors, dangerous_functions, analyzed_at
`

// Upsert overwrites the analysis row for (token address, chain).
func (s *ContractAnalysisStore) Upsert(ctx context.Context, a *domain.ContractAnalysis) error {
	return upsertContractAnalysis(ctx, s.pool, a)
}

func upsertContractAnalysis(ctx context.Context, db dbtx, a *domain.ContractAnalysis) error {
	if a == nil || a.TokenAddress == "" || a.Chain == "" {
		return storage.ErrInvalidInput
	}

	_, err := db.Exec(ctx, `
		INSERT INTO contract_analysis (`+contractColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (token_address, chain) DO UPDATE
		SET has_mint = EXCLUDED.has_mint,
		    mint_unrestricted = EXCLUDED.mint_unrestricted,
		    has_burn = EXCLUDED.has_burn,
		    has_blacklist = EXCLUDED.has_blacklist,
		    has_pause = EXCLUDED.has_pause,
		    has_ownership = EXCLUDED.has_ownership,
		    renounced = EXCLUDED.renounced,
		    transferable = EXCLUDED.transferable,
		    is_proxy = EXCLUDED.is_proxy,
		    is_upgradeable = EXCLUDED.is_upgradeable,
		    has_fee_change = EXCLUDED.has_fee_change,
		    has_withdraw = EXCLUDED.has_withdraw,
		    owner_address = EXCLUDED.owner_address,
		    selectors = EXCLUDED.selectors,
		    dangerous_functions = EXCLUDED.dangerous_functions,
		    analyzed_at = EXCLUDED.analyzed_at
	`,
		a.TokenAddress, a.Chain, a.HasMint, a.MintUnrestricted, a.HasBurn, a.HasBlacklist, a.HasPause,
		a.HasOwnership, a.Renounced, a.Transferable, a.IsProxy, a.IsUpgradeable, a.HasFeeChange, a.HasWithdraw,
		a.OwnerAddress, nonNilStrings(a.Selectors), nonNilStrings(a.DangerousFunctions), a.AnalyzedAt,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("upsert contract analysis: %w", err)
	}
	return nil
}

// Get retrieves the analysis row. Returns ErrNotFound if not exists.
func (s *ContractAnalysisStore) Get(ctx context.Context, tokenAddress, chain string) (*domain.ContractAnalysis, error) {
	query := `SELECT ` + contractColumns + ` FROM contract_analysis WHERE token_address = $1 AND chain = $2`

	a, err := scanContractAnalysis(s.pool.QueryRow(ctx, query, tokenAddress, chain))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get contract analysis: %w", err)
	}
	return a, nil
}

func scanContractAnalysis(row pgx.Row) (*domain.ContractAnalysis, error) {
	var a domain.ContractAnalysis
	err := row.Scan(
		&a.TokenAddress, &a.Chain, &a.HasMint, &a.MintUnrestricted, &a.HasBurn, &a.HasBlacklist, &a.HasPause,
		&a.HasOwnership, &a.Renounced, &a.Transferable, &a.IsProxy, &a.IsUpgradeable, &a.HasFeeChange, &a.HasWithdraw,
		&a.OwnerAddress, &a.Selectors, &a.DangerousFunctions, &a.AnalyzedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
