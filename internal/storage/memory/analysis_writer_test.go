package memory

import (
	"context"
	"errors"
	"testing"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

func TestAnalysisWriter_MissingTokenWritesNothing(t *testing.T) {
	tokens := NewTokenStore()
	contracts := NewContractAnalysisStore()
	pools := NewPoolStore()
	wallets := NewWalletStore()
	history := NewRiskHistoryStore()
	writer := NewAnalysisWriter(tokens, contracts, pools, wallets, history)
	ctx := context.Background()

	rec := &storage.AnalysisRecord{
		Token:    &domain.Token{Address: "0xa", Chain: "base"},
		Contract: &domain.ContractAnalysis{TokenAddress: "0xa", Chain: "base"},
		Pools:    []*domain.LiquidityPool{{Chain: "base", PoolAddress: "0xp", TokenAddress: "0xa"}},
		Wallet:   &domain.Wallet{Address: "0xd", Chain: "base"},
		History:  &domain.RiskHistory{TokenAddress: "0xa", Chain: "base"},
	}

	err := writer.SaveAnalysis(ctx, rec)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := contracts.Get(ctx, "0xa", "base"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("contract analysis written despite failure")
	}
	if _, err := pools.Get(ctx, "base", "0xp"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("pool written despite failure")
	}
	if h, _ := history.ListByToken(ctx, "0xa", "base"); len(h) != 0 {
		t.Errorf("history written despite failure")
	}
}

func TestAnalysisWriter_UpdatesToken(t *testing.T) {
	tokens := NewTokenStore()
	history := NewRiskHistoryStore()
	writer := NewAnalysisWriter(tokens, NewContractAnalysisStore(), NewPoolStore(), NewWalletStore(), history)
	ctx := context.Background()

	if err := tokens.Insert(ctx, newToken("0xa", 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	final := 42.0
	analyzed := int64(9)
	scored := newToken("0xa", 1)
	scored.FinalScore = &final
	scored.RiskLevel = domain.RiskModerate
	scored.AnalyzedAt = &analyzed

	err := writer.SaveAnalysis(ctx, &storage.AnalysisRecord{
		Token:   scored,
		History: &domain.RiskHistory{TokenAddress: "0xa", Chain: "base", FinalScore: 42, RiskLevel: domain.RiskModerate},
	})
	if err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}

	got, _ := tokens.Get(ctx, "0xa", "base")
	if got.FinalScore == nil || *got.FinalScore != 42 || got.RiskLevel != domain.RiskModerate {
		t.Errorf("token not updated: %+v", got)
	}
	if h, _ := history.ListByToken(ctx, "0xa", "base"); len(h) != 1 || h[0].ID != 1 {
		t.Errorf("unexpected history: %+v", h)
	}
}
