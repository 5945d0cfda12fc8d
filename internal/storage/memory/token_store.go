// Package memory provides in-memory store implementations for tests and
// lower environments.
package memory

import (
	"context"
	"sort"
	"sync"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[domain.TokenKey]*domain.Token
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[domain.TokenKey]*domain.Token)}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Insert adds a newly classified token.
func (s *TokenStore) Insert(_ context.Context, t *domain.Token) error {
	if t == nil || t.Address == "" || t.Chain == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.Key()]; exists {
		return storage.ErrDuplicateKey
	}
	c := t.Clone()
	if c.RiskLevel == "" {
		c.RiskLevel = domain.RiskUnknown
	}
	s.tokens[t.Key()] = c
	return nil
}

// Get retrieves a token.
func (s *TokenStore) Get(_ context.Context, address, chain string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[domain.TokenKey{Address: address, Chain: chain}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

// Exists reports whether a token row exists.
func (s *TokenStore) Exists(_ context.Context, address, chain string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tokens[domain.TokenKey{Address: address, Chain: chain}]
	return ok, nil
}

// ListByDeployer returns all tokens deployed by deployer on chain.
func (s *TokenStore) ListByDeployer(_ context.Context, deployer, chain string) ([]*domain.Token, error) {
	return s.filter(func(t *domain.Token) bool {
		return t.Deployer == deployer && t.Chain == chain
	}, byDeployBlock), nil
}

// ListPending returns up to limit never-analyzed tokens, oldest first.
func (s *TokenStore) ListPending(_ context.Context, limit int) ([]*domain.Token, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	pending := s.filter(func(t *domain.Token) bool { return t.AnalyzedAt == nil }, byCreatedAt)
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// ListDeployers returns the distinct deployer addresses seen on chain.
func (s *TokenStore) ListDeployers(_ context.Context, chain string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, t := range s.tokens {
		if t.Chain == chain {
			seen[t.Deployer] = struct{}{}
		}
	}
	deployers := make([]string, 0, len(seen))
	for d := range seen {
		deployers = append(deployers, d)
	}
	sort.Strings(deployers)
	return deployers, nil
}

// ListAll returns every token.
func (s *TokenStore) ListAll(_ context.Context) ([]*domain.Token, error) {
	return s.filter(func(*domain.Token) bool { return true }, byDeployBlock), nil
}

// update replaces the analysis fields of an existing token.
func (s *TokenStore) update(t *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tokens[t.Key()]
	if !ok {
		return storage.ErrNotFound
	}
	src := t.Clone()
	next := cur.Clone()
	next.ContractScore = src.ContractScore
	next.LiquidityScore = src.LiquidityScore
	next.OwnershipScore = src.OwnershipScore
	next.DeployerScore = src.DeployerScore
	next.FinalScore = src.FinalScore
	next.RiskLevel = src.RiskLevel
	next.Flags = src.Flags
	if src.Explanation != nil {
		next.Explanation = src.Explanation
	}
	next.AnalyzedAt = src.AnalyzedAt
	s.tokens[t.Key()] = next
	return nil
}

func (s *TokenStore) filter(keep func(*domain.Token) bool, less func(a, b *domain.Token) bool) []*domain.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Token
	for _, t := range s.tokens {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byDeployBlock(a, b *domain.Token) bool {
	if a.Chain != b.Chain {
		return a.Chain < b.Chain
	}
	if a.DeployBlock != b.DeployBlock {
		return a.DeployBlock < b.DeployBlock
	}
	return a.Address < b.Address
}

func byCreatedAt(a, b *domain.Token) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	if a.Chain != b.Chain {
		return a.Chain < b.Chain
	}
	return a.Address < b.Address
}
