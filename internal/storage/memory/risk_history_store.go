package memory

import (
	"context"
	"sync"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// RiskHistoryStore is an in-memory implementation of storage.RiskHistoryStore.
type RiskHistoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records []*domain.RiskHistory
}

// NewRiskHistoryStore creates a new in-memory risk history store.
func NewRiskHistoryStore() *RiskHistoryStore {
	return &RiskHistoryStore{nextID: 1}
}

// Compile-time interface check.
var _ storage.RiskHistoryStore = (*RiskHistoryStore)(nil)

// Append inserts a new history record and assigns its ID.
func (s *RiskHistoryStore) Append(_ context.Context, h *domain.RiskHistory) error {
	if h == nil || h.TokenAddress == "" || h.Chain == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h.ID = s.nextID
	s.nextID++

	c := *h
	c.Flags = append([]string(nil), h.Flags...)
	s.records = append(s.records, &c)
	return nil
}

// ListByToken returns the history of a token, ordered by ID ASC.
func (s *RiskHistoryStore) ListByToken(_ context.Context, tokenAddress, chain string) ([]*domain.RiskHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.RiskHistory
	for _, h := range s.records {
		if h.TokenAddress == tokenAddress && h.Chain == chain {
			c := *h
			c.Flags = append([]string(nil), h.Flags...)
			out = append(out, &c)
		}
	}
	return out, nil
}
