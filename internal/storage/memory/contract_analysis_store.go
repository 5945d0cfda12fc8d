package memory

import (
	"context"
	"sync"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// ContractAnalysisStore is an in-memory implementation of storage.ContractAnalysisStore.
type ContractAnalysisStore struct {
	mu   sync.RWMutex
	rows map[domain.TokenKey]*domain.ContractAnalysis
}

// NewContractAnalysisStore creates a new in-memory contract analysis store.
func NewContractAnalysisStore() *ContractAnalysisStore {
	return &ContractAnalysisStore{rows: make(map[domain.TokenKey]*domain.ContractAnalysis)}
}

// Compile-time interface check.
var _ storage.ContractAnalysisStore = (*ContractAnalysisStore)(nil)

// Upsert overwrites the analysis row.
func (s *ContractAnalysisStore) Upsert(_ context.Context, a *domain.ContractAnalysis) error {
	if a == nil || a.TokenAddress == "" || a.Chain == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[domain.TokenKey{Address: a.TokenAddress, Chain: a.Chain}] = a.Clone()
	return nil
}

// Get retrieves the analysis row.
func (s *ContractAnalysisStore) Get(_ context.Context, tokenAddress, chain string) (*domain.ContractAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.rows[domain.TokenKey{Address: tokenAddress, Chain: chain}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a.Clone(), nil
}
