package memory

import (
	"context"
	"sort"
	"sync"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu     sync.RWMutex
	blocks map[string]domain.ProcessedBlock
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{blocks: make(map[string]domain.ProcessedBlock)}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Get returns the checkpoint of chain.
func (s *CheckpointStore) Get(_ context.Context, chain string) (*domain.ProcessedBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blocks[chain]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &b, nil
}

// Set saves the checkpoint unless it would move backwards.
func (s *CheckpointStore) Set(_ context.Context, b *domain.ProcessedBlock) error {
	if b == nil || b.Chain == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.blocks[b.Chain]; ok && cur.BlockNumber > b.BlockNumber {
		return nil
	}
	s.blocks[b.Chain] = *b
	return nil
}

// SkippedBlockStore is an in-memory implementation of storage.SkippedBlockStore.
type SkippedBlockStore struct {
	mu     sync.RWMutex
	blocks map[string]map[uint64]*domain.SkippedBlock
}

// NewSkippedBlockStore creates a new in-memory skipped block store.
func NewSkippedBlockStore() *SkippedBlockStore {
	return &SkippedBlockStore{blocks: make(map[string]map[uint64]*domain.SkippedBlock)}
}

// Compile-time interface check.
var _ storage.SkippedBlockStore = (*SkippedBlockStore)(nil)

// Record stores a skipped block, incrementing attempts if already recorded.
func (s *SkippedBlockStore) Record(_ context.Context, b *domain.SkippedBlock) error {
	if b == nil || b.Chain == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byNumber, ok := s.blocks[b.Chain]
	if !ok {
		byNumber = make(map[uint64]*domain.SkippedBlock)
		s.blocks[b.Chain] = byNumber
	}

	if cur, ok := byNumber[b.BlockNumber]; ok {
		cur.Attempts++
		cur.Reason = b.Reason
		cur.ResolvedAt = nil
		return nil
	}
	byNumber[b.BlockNumber] = &domain.SkippedBlock{
		Chain:       b.Chain,
		BlockNumber: b.BlockNumber,
		Reason:      b.Reason,
		Attempts:    1,
		SkippedAt:   b.SkippedAt,
	}
	return nil
}

// ListUnresolved returns up to limit unresolved blocks of chain, lowest first.
func (s *SkippedBlockStore) ListUnresolved(_ context.Context, chain string, limit int) ([]*domain.SkippedBlock, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.SkippedBlock
	for _, b := range s.blocks[chain] {
		if b.ResolvedAt == nil {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Resolve marks a skipped block as processed.
func (s *SkippedBlockStore) Resolve(_ context.Context, chain string, blockNumber uint64, resolvedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[chain][blockNumber]
	if !ok {
		return storage.ErrNotFound
	}
	b.ResolvedAt = &resolvedAt
	return nil
}
