package memory

import (
	"context"
	"sort"
	"sync"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu      sync.RWMutex
	wallets map[domain.TokenKey]*domain.Wallet
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{wallets: make(map[domain.TokenKey]*domain.Wallet)}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Upsert inserts or overwrites a wallet profile. First-seen keeps the earliest value.
func (s *WalletStore) Upsert(_ context.Context, w *domain.Wallet) error {
	if w == nil || w.Address == "" || w.Chain == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.TokenKey{Address: w.Address, Chain: w.Chain}
	next := w.Clone()
	if cur, ok := s.wallets[key]; ok && cur.FirstSeen < next.FirstSeen {
		next.FirstSeen = cur.FirstSeen
	}
	s.wallets[key] = next
	return nil
}

// Get retrieves a wallet.
func (s *WalletStore) Get(_ context.Context, address, chain string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[domain.TokenKey{Address: address, Chain: chain}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return w.Clone(), nil
}

// ListAll returns every wallet.
func (s *WalletStore) ListAll(_ context.Context) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].Address < out[j].Address
	})
	return out, nil
}
