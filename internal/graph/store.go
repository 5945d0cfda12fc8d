// Package graph maintains the wallet relationship graph: who deployed,
// funded and provided liquidity to what. The graph is advisory; the
// relational store remains the source of truth.
package graph

import (
	"context"

	"sentinel-ledger/internal/domain"
)

// MinDepth and MaxDepth bound neighborhood traversals.
const (
	MinDepth = 1
	MaxDepth = 3
)

// Store is a graph backend with idempotent merges.
type Store interface {
	// MergeNode creates the node if it does not exist.
	MergeNode(ctx context.Context, n domain.NodeRef) error

	// MergeEdge creates both endpoints and the typed edge if missing.
	// Merging the same (from, to, kind) again only refreshes its properties.
	MergeEdge(ctx context.Context, e domain.Edge) error

	// Neighborhood returns the distinct nodes reachable from start within
	// depth hops, ignoring edge direction. start itself is excluded.
	Neighborhood(ctx context.Context, start domain.NodeRef, depth int) ([]domain.NodeRef, error)

	// Funders returns the addresses with a FUNDED edge into wallet.
	Funders(ctx context.Context, wallet domain.NodeRef) ([]string, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// ClampDepth forces depth into [MinDepth, MaxDepth].
func ClampDepth(depth int) int {
	if depth < MinDepth {
		return MinDepth
	}
	if depth > MaxDepth {
		return MaxDepth
	}
	return depth
}

// WalletRef builds a wallet node reference.
func WalletRef(address, chain string) domain.NodeRef {
	return domain.NodeRef{Kind: domain.NodeWallet, Address: domain.NormalizeAddress(address), Chain: chain}
}

// TokenRef builds a token node reference.
func TokenRef(address, chain string) domain.NodeRef {
	return domain.NodeRef{Kind: domain.NodeToken, Address: domain.NormalizeAddress(address), Chain: chain}
}

// PoolRef builds a pool node reference.
func PoolRef(address, chain string) domain.NodeRef {
	return domain.NodeRef{Kind: domain.NodePool, Address: domain.NormalizeAddress(address), Chain: chain}
}
