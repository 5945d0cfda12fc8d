package postgres

import (
	"context"
	"fmt"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// RiskHistoryStore implements storage.RiskHistoryStore using PostgreSQL.
// Rows are only ever inserted.
type RiskHistoryStore struct {
	pool *Pool
}

// NewRiskHistoryStore creates a new RiskHistoryStore.
func NewRiskHistoryStore(pool *Pool) *RiskHistoryStore {
	return &RiskHistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RiskHistoryStore = (*RiskHistoryStore)(nil)

// Append inserts a new history record and assigns its ID.
func (s *RiskHistoryStore) Append(ctx context.Context, h *domain.RiskHistory) error {
	return appendRiskHistory(ctx, s.pool, h)
}

func appendRiskHistory(ctx context.Context, db dbtx, h *domain.RiskHistory) error {
	if h == nil || h.TokenAddress == "" || h.Chain == "" {
		return storage.ErrInvalidInput
	}

	err := db.QueryRow(ctx, `
		INSERT INTO risk_history (
			token_address, chain, contract_score, liquidity_score, ownership_score,
			deployer_score, final_score, risk_level, flags, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		h.TokenAddress, h.Chain, h.ContractScore, h.LiquidityScore, h.OwnershipScore,
		h.DeployerScore, h.FinalScore, string(h.RiskLevel), nonNilStrings(h.Flags), h.RecordedAt,
	).Scan(&h.ID)
	if err != nil {
		if isForeignKeyError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("append risk history: %w", err)
	}
	return nil
}

// ListByToken returns the history of a token, ordered by ID ASC.
func (s *RiskHistoryStore) ListByToken(ctx context.Context, tokenAddress, chain string) ([]*domain.RiskHistory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, token_address, chain, contract_score, liquidity_score, ownership_score,
		       deployer_score, final_score, risk_level, flags, recorded_at
		FROM risk_history
		WHERE token_address = $1 AND chain = $2
		ORDER BY id ASC
	`, tokenAddress, chain)
	if err != nil {
		return nil, fmt.Errorf("list risk history: %w", err)
	}
	defer rows.Close()

	var history []*domain.RiskHistory
	for rows.Next() {
		var h domain.RiskHistory
		var level string
		err := rows.Scan(
			&h.ID, &h.TokenAddress, &h.Chain, &h.ContractScore, &h.LiquidityScore, &h.OwnershipScore,
			&h.DeployerScore, &h.FinalScore, &level, &h.Flags, &h.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan risk history row: %w", err)
		}
		h.RiskLevel = domain.RiskLevel(level)
		history = append(history, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk history rows: %w", err)
	}
	return history, nil
}
