package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sentinel-ledger/internal/storage"
)

// AnalysisWriter implements storage.AnalysisWriter with a single transaction
// per analysis pass.
type AnalysisWriter struct {
	pool *Pool
}

// NewAnalysisWriter creates a new AnalysisWriter.
func NewAnalysisWriter(pool *Pool) *AnalysisWriter {
	return &AnalysisWriter{pool: pool}
}

// Compile-time interface check.
var _ storage.AnalysisWriter = (*AnalysisWriter)(nil)

// SaveAnalysis writes every row of rec or none of them. The token row is
// locked first so concurrent passes for the same token serialize.
func (w *AnalysisWriter) SaveAnalysis(ctx context.Context, rec *storage.AnalysisRecord) error {
	if rec == nil || rec.Token == nil || rec.History == nil {
		return storage.ErrInvalidInput
	}

	err := pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		var locked int
		err := tx.QueryRow(ctx,
			`SELECT 1 FROM tokens WHERE address = $1 AND chain = $2 FOR UPDATE`,
			rec.Token.Address, rec.Token.Chain,
		).Scan(&locked)
		if err != nil {
			if isNotFoundError(err) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("lock token: %w", err)
		}

		if rec.Contract != nil {
			if err := upsertContractAnalysis(ctx, tx, rec.Contract); err != nil {
				return err
			}
		}
		for _, p := range rec.Pools {
			if err := upsertPool(ctx, tx, p); err != nil {
				return err
			}
		}
		if rec.Wallet != nil {
			if err := upsertWallet(ctx, tx, rec.Wallet); err != nil {
				return err
			}
		}
		if err := updateTokenAnalysis(ctx, tx, rec.Token); err != nil {
			return err
		}
		return appendRiskHistory(ctx, tx, rec.History)
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidInput) {
			return err
		}
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}
