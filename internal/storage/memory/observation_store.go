package memory

import (
	"context"
	"sort"
	"sync"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// ObservationStore is an in-memory implementation of storage.ObservationStore.
type ObservationStore struct {
	mu   sync.RWMutex
	data map[poolKey][]*domain.PoolObservation
}

// NewObservationStore creates a new in-memory observation store.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{data: make(map[poolKey][]*domain.PoolObservation)}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

// Insert appends one observation.
func (s *ObservationStore) Insert(_ context.Context, o *domain.PoolObservation) error {
	if o == nil || o.Chain == "" || o.PoolAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := poolKey{chain: o.Chain, pool: o.PoolAddress}
	c := *o
	s.data[key] = append(s.data[key], &c)
	return nil
}

// ListByPool returns observations of a pool, ordered by time ASC.
func (s *ObservationStore) ListByPool(_ context.Context, chain, poolAddress string) ([]*domain.PoolObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.data[poolKey{chain: chain, pool: poolAddress}]
	out := make([]*domain.PoolObservation, 0, len(src))
	for _, o := range src {
		c := *o
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt < out[j].ObservedAt })
	return out, nil
}
