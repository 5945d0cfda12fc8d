package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

const walletColumns = `
	address, chain, first_seen, total_deployed, suspected_rugs, wallet_age_days,
	deployer_score, flags, crosschain, last_profiled_at
`

// Upsert inserts or overwrites a wallet profile. First-seen keeps the earliest value.
func (s *WalletStore) Upsert(ctx context.Context, w *domain.Wallet) error {
	return upsertWallet(ctx, s.pool, w)
}

func upsertWallet(ctx context.Context, db dbtx, w *domain.Wallet) error {
	if w == nil || w.Address == "" || w.Chain == "" {
		return storage.ErrInvalidInput
	}

	_, err := db.Exec(ctx, `
		INSERT INTO wallets (`+walletColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (address, chain) DO UPDATE
		SET first_seen = LEAST(wallets.first_seen, EXCLUDED.first_seen),
		    total_deployed = EXCLUDED.total_deployed,
		    suspected_rugs = EXCLUDED.suspected_rugs,
		    wallet_age_days = EXCLUDED.wallet_age_days,
		    deployer_score = EXCLUDED.deployer_score,
		    flags = EXCLUDED.flags,
		    crosschain = EXCLUDED.crosschain,
		    last_profiled_at = EXCLUDED.last_profiled_at
	`,
		w.Address, w.Chain, w.FirstSeen, w.TotalDeployed, w.SuspectedRugs, w.WalletAgeDays,
		w.DeployerScore, nonNilStrings(w.Flags), w.CrossChain, w.LastProfiledAt,
	)
	if err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}
	return nil
}

// Get retrieves a wallet. Returns ErrNotFound if not exists.
func (s *WalletStore) Get(ctx context.Context, address, chain string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE address = $1 AND chain = $2`

	w, err := scanWallet(s.pool.QueryRow(ctx, query, address, chain))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// ListAll returns every wallet.
func (s *WalletStore) ListAll(ctx context.Context) ([]*domain.Wallet, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY chain, address`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(
		&w.Address, &w.Chain, &w.FirstSeen, &w.TotalDeployed, &w.SuspectedRugs, &w.WalletAgeDays,
		&w.DeployerScore, &w.Flags, &w.CrossChain, &w.LastProfiledAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
