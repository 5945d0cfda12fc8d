package memory

import (
	"context"
	"sort"
	"sync"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

type poolKey struct {
	chain string
	pool  string
}

// PoolStore is an in-memory implementation of storage.PoolStore.
type PoolStore struct {
	mu    sync.RWMutex
	pools map[poolKey]*domain.LiquidityPool
}

// NewPoolStore creates a new in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{pools: make(map[poolKey]*domain.LiquidityPool)}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// Upsert inserts or updates a pool with the same merge rules as the SQL store.
func (s *PoolStore) Upsert(_ context.Context, p *domain.LiquidityPool) error {
	if err := validatePool(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.merge(p)
	return nil
}

func validatePool(p *domain.LiquidityPool) error {
	if p == nil || p.Chain == "" || p.PoolAddress == "" || p.TokenAddress == "" {
		return storage.ErrInvalidInput
	}
	return nil
}

// merge must be called with s.mu held.
func (s *PoolStore) merge(p *domain.LiquidityPool) {
	key := poolKey{chain: p.Chain, pool: p.PoolAddress}
	cur, ok := s.pools[key]
	if !ok {
		s.pools[key] = p.Clone()
		return
	}

	next := p.Clone()
	next.CreatedAt = cur.CreatedAt
	if cur.InitialLiquidityUSD > 0 {
		next.InitialLiquidityUSD = cur.InitialLiquidityUSD
	}
	if cur.PeakLiquidityUSD > next.PeakLiquidityUSD {
		next.PeakLiquidityUSD = cur.PeakLiquidityUSD
	}
	if cur.FirstLiquidityAt != nil {
		v := *cur.FirstLiquidityAt
		next.FirstLiquidityAt = &v
	}
	next.RemovedEarly = cur.RemovedEarly || next.RemovedEarly
	if cur.RemovalPct > next.RemovalPct {
		next.RemovalPct = cur.RemovalPct
	}
	s.pools[key] = next
}

// Get retrieves a pool.
func (s *PoolStore) Get(_ context.Context, chain, poolAddress string) (*domain.LiquidityPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[poolKey{chain: chain, pool: poolAddress}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// ListByToken returns all pools of a token, ordered by pool address.
func (s *PoolStore) ListByToken(_ context.Context, tokenAddress, chain string) ([]*domain.LiquidityPool, error) {
	return s.list(func(p *domain.LiquidityPool) bool {
		return p.TokenAddress == tokenAddress && p.Chain == chain
	}), nil
}

// ListAll returns every pool.
func (s *PoolStore) ListAll(_ context.Context) ([]*domain.LiquidityPool, error) {
	return s.list(func(*domain.LiquidityPool) bool { return true }), nil
}

func (s *PoolStore) list(keep func(*domain.LiquidityPool) bool) []*domain.LiquidityPool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.LiquidityPool
	for _, p := range s.pools {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].PoolAddress < out[j].PoolAddress
	})
	return out
}
