package memory

import (
	"context"
	"sync"

	"sentinel-ledger/internal/storage"
)

// AnalysisWriter is an in-memory implementation of storage.AnalysisWriter.
// Every input is validated before the first write, so a pass either lands
// completely or not at all.
type AnalysisWriter struct {
	mu        sync.Mutex
	tokens    *TokenStore
	contracts *ContractAnalysisStore
	pools     *PoolStore
	wallets   *WalletStore
	history   *RiskHistoryStore
}

// NewAnalysisWriter creates an AnalysisWriter over the given memory stores.
func NewAnalysisWriter(tokens *TokenStore, contracts *ContractAnalysisStore, pools *PoolStore, wallets *WalletStore, history *RiskHistoryStore) *AnalysisWriter {
	return &AnalysisWriter{
		tokens:    tokens,
		contracts: contracts,
		pools:     pools,
		wallets:   wallets,
		history:   history,
	}
}

// Compile-time interface check.
var _ storage.AnalysisWriter = (*AnalysisWriter)(nil)

// SaveAnalysis writes every row of rec or none of them.
func (w *AnalysisWriter) SaveAnalysis(ctx context.Context, rec *storage.AnalysisRecord) error {
	if rec == nil || rec.Token == nil || rec.History == nil {
		return storage.ErrInvalidInput
	}
	for _, p := range rec.Pools {
		if err := validatePool(p); err != nil {
			return err
		}
	}
	if rec.Contract != nil && (rec.Contract.TokenAddress == "" || rec.Contract.Chain == "") {
		return storage.ErrInvalidInput
	}
	if rec.Wallet != nil && (rec.Wallet.Address == "" || rec.Wallet.Chain == "") {
		return storage.ErrInvalidInput
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	exists, err := w.tokens.Exists(ctx, rec.Token.Address, rec.Token.Chain)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}

	if rec.Contract != nil {
		if err := w.contracts.Upsert(ctx, rec.Contract); err != nil {
			return err
		}
	}
	if len(rec.Pools) > 0 {
		w.pools.mu.Lock()
		for _, p := range rec.Pools {
			w.pools.merge(p)
		}
		w.pools.mu.Unlock()
	}
	if rec.Wallet != nil {
		if err := w.wallets.Upsert(ctx, rec.Wallet); err != nil {
			return err
		}
	}
	if err := w.tokens.update(rec.Token); err != nil {
		return err
	}
	return w.history.Append(ctx, rec.History)
}
