package memory

import (
	"context"
	"testing"

	"sentinel-ledger/internal/domain"
)

func TestPoolStore_UpsertKeepsMonotonicFields(t *testing.T) {
	store := NewPoolStore()
	ctx := context.Background()

	first := int64(100)
	p := &domain.LiquidityPool{
		Chain: "base", PoolAddress: "0xpool", TokenAddress: "0xtoken",
		InitialLiquidityUSD: 10000, CurrentLiquidityUSD: 10000, PeakLiquidityUSD: 10000,
		FirstLiquidityAt: &first, RemovedEarly: true, RemovalPct: 60,
	}
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	later := int64(200)
	if err := store.Upsert(ctx, &domain.LiquidityPool{
		Chain: "base", PoolAddress: "0xpool", TokenAddress: "0xtoken",
		InitialLiquidityUSD: 3000, CurrentLiquidityUSD: 3000, PeakLiquidityUSD: 3000,
		FirstLiquidityAt: &later,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, "base", "0xpool")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.InitialLiquidityUSD != 10000 {
		t.Errorf("initial changed: got %v", got.InitialLiquidityUSD)
	}
	if got.PeakLiquidityUSD != 10000 {
		t.Errorf("peak decreased: got %v", got.PeakLiquidityUSD)
	}
	if got.CurrentLiquidityUSD != 3000 {
		t.Errorf("current not updated: got %v", got.CurrentLiquidityUSD)
	}
	if !got.RemovedEarly || got.RemovalPct != 60 {
		t.Errorf("early removal cleared: %+v", got)
	}
	if *got.FirstLiquidityAt != 100 {
		t.Errorf("first liquidity time changed: got %d", *got.FirstLiquidityAt)
	}
}

func TestCheckpointStore_Monotonic(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	for _, n := range []uint64{10, 30, 20} {
		if err := store.Set(ctx, &domain.ProcessedBlock{Chain: "base", BlockNumber: n}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	got, err := store.Get(ctx, "base")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.BlockNumber != 30 {
		t.Errorf("checkpoint moved backwards: got %d, want 30", got.BlockNumber)
	}
}
