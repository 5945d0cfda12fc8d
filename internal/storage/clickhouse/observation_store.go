package clickhouse

import (
	"context"
	"fmt"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// ObservationStore implements storage.ObservationStore using ClickHouse.
type ObservationStore struct {
	conn *Conn
}

// NewObservationStore creates a new ObservationStore.
func NewObservationStore(conn *Conn) *ObservationStore {
	return &ObservationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

// Insert appends one observation.
func (s *ObservationStore) Insert(ctx context.Context, o *domain.PoolObservation) error {
	if o == nil || o.Chain == "" || o.PoolAddress == "" {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.PoolObservation{o})
}

// InsertBulk appends observations in a single batch.
func (s *ObservationStore) InsertBulk(ctx context.Context, observations []*domain.PoolObservation) error {
	if len(observations) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO pool_liquidity_observations (
			chain, pool_address, token_address, observed_at, liquidity_usd, reserve_token, reserve_paired
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range observations {
		err = batch.Append(
			o.Chain, o.PoolAddress, o.TokenAddress, uint64(o.ObservedAt),
			o.LiquidityUSD, o.ReserveToken, o.ReservePaired,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ListByPool returns observations of a pool, ordered by time ASC.
func (s *ObservationStore) ListByPool(ctx context.Context, chain, poolAddress string) ([]*domain.PoolObservation, error) {
	query := `
		SELECT chain, pool_address, token_address, observed_at, liquidity_usd, reserve_token, reserve_paired
		FROM pool_liquidity_observations
		WHERE chain = ? AND pool_address = ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, chain, poolAddress)
	if err != nil {
		return nil, fmt.Errorf("query observations by pool: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

func scanObservations(rows chRows) ([]*domain.PoolObservation, error) {
	var out []*domain.PoolObservation
	for rows.Next() {
		var o domain.PoolObservation
		var observedAt uint64
		err := rows.Scan(
			&o.Chain, &o.PoolAddress, &o.TokenAddress, &observedAt,
			&o.LiquidityUSD, &o.ReserveToken, &o.ReservePaired,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}
		o.ObservedAt = int64(observedAt)
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation rows: %w", err)
	}
	return out, nil
}
