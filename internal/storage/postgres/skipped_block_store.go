package postgres

import (
	"context"
	"fmt"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// SkippedBlockStore implements storage.SkippedBlockStore using PostgreSQL.
type SkippedBlockStore struct {
	pool *Pool
}

// NewSkippedBlockStore creates a new SkippedBlockStore.
func NewSkippedBlockStore(pool *Pool) *SkippedBlockStore {
	return &SkippedBlockStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SkippedBlockStore = (*SkippedBlockStore)(nil)

// Record stores a skipped block, incrementing attempts if already recorded.
// A previously resolved block that fails again is reopened.
func (s *SkippedBlockStore) Record(ctx context.Context, b *domain.SkippedBlock) error {
	if b == nil || b.Chain == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO skipped_blocks (chain, block_number, reason, attempts, skipped_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (chain, block_number) DO UPDATE
		SET reason = EXCLUDED.reason,
		    attempts = skipped_blocks.attempts + 1,
		    resolved_at = NULL
	`, b.Chain, int64(b.BlockNumber), b.Reason, b.SkippedAt)
	if err != nil {
		return fmt.Errorf("record skipped block: %w", err)
	}
	return nil
}

// ListUnresolved returns up to limit unresolved blocks of chain, lowest first.
func (s *SkippedBlockStore) ListUnresolved(ctx context.Context, chain string, limit int) ([]*domain.SkippedBlock, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.pool.Query(ctx, `
		SELECT chain, block_number, reason, attempts, skipped_at, resolved_at
		FROM skipped_blocks
		WHERE chain = $1 AND resolved_at IS NULL
		ORDER BY block_number ASC
		LIMIT $2
	`, chain, limit)
	if err != nil {
		return nil, fmt.Errorf("list skipped blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*domain.SkippedBlock
	for rows.Next() {
		var b domain.SkippedBlock
		var number int64
		if err := rows.Scan(&b.Chain, &number, &b.Reason, &b.Attempts, &b.SkippedAt, &b.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan skipped block row: %w", err)
		}
		b.BlockNumber = uint64(number)
		blocks = append(blocks, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skipped block rows: %w", err)
	}
	return blocks, nil
}

// Resolve marks a skipped block as processed. Returns ErrNotFound if it was never recorded.
func (s *SkippedBlockStore) Resolve(ctx context.Context, chain string, blockNumber uint64, resolvedAt int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE skipped_blocks SET resolved_at = $3
		WHERE chain = $1 AND block_number = $2
	`, chain, int64(blockNumber), resolvedAt)
	if err != nil {
		return fmt.Errorf("resolve skipped block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
