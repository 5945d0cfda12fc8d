package postgres

import (
	"context"
	"fmt"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// CheckpointStore is a PostgreSQL implementation of storage.CheckpointStore.
// Uses processed_blocks: one row per chain, overwritten in place.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new PostgreSQL checkpoint store.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Get returns the checkpoint of chain.
func (s *CheckpointStore) Get(ctx context.Context, chain string) (*domain.ProcessedBlock, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT chain, block_number, block_hash, processed_at
		FROM processed_blocks
		WHERE chain = $1
	`, chain)

	var b domain.ProcessedBlock
	var number int64
	if err := row.Scan(&b.Chain, &number, &b.BlockHash, &b.ProcessedAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	b.BlockNumber = uint64(number)
	return &b, nil
}

// Set saves the checkpoint. The WHERE clause on the conflict branch keeps the
// stored block number from ever moving backwards.
func (s *CheckpointStore) Set(ctx context.Context, b *domain.ProcessedBlock) error {
	if b == nil || b.Chain == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO processed_blocks (chain, block_number, block_hash, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain) DO UPDATE
		SET block_number = EXCLUDED.block_number,
		    block_hash = EXCLUDED.block_hash,
		    processed_at = EXCLUDED.processed_at
		WHERE processed_blocks.block_number <= EXCLUDED.block_number
	`, b.Chain, int64(b.BlockNumber), b.BlockHash, b.ProcessedAt)
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}
