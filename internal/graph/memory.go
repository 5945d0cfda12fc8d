package graph

import (
	"context"
	"sort"
	"sync"

	"sentinel-ledger/internal/domain"
)

type edgeKey struct {
	from domain.NodeRef
	to   domain.NodeRef
	kind domain.EdgeKind
}

// MemoryStore is an in-process Store backed by adjacency maps.
type MemoryStore struct {
	mu     sync.RWMutex
	nodes  map[domain.NodeRef]struct{}
	edges  map[edgeKey]domain.Edge
	adjOut map[domain.NodeRef][]domain.NodeRef
	adjIn  map[domain.NodeRef][]domain.NodeRef
}

// NewMemoryStore creates an empty in-memory graph.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:  make(map[domain.NodeRef]struct{}),
		edges:  make(map[edgeKey]domain.Edge),
		adjOut: make(map[domain.NodeRef][]domain.NodeRef),
		adjIn:  make(map[domain.NodeRef][]domain.NodeRef),
	}
}

var _ Store = (*MemoryStore)(nil)

// MergeNode implements Store.
func (s *MemoryStore) MergeNode(_ context.Context, n domain.NodeRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n] = struct{}{}
	return nil
}

// MergeEdge implements Store.
func (s *MemoryStore) MergeEdge(_ context.Context, e domain.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes[e.From] = struct{}{}
	s.nodes[e.To] = struct{}{}

	key := edgeKey{from: e.From, to: e.To, kind: e.Kind}
	if _, exists := s.edges[key]; !exists {
		s.adjOut[e.From] = append(s.adjOut[e.From], e.To)
		s.adjIn[e.To] = append(s.adjIn[e.To], e.From)
	}
	s.edges[key] = e
	return nil
}

// Neighborhood implements Store with a breadth-first walk over both
// edge directions.
func (s *MemoryStore) Neighborhood(_ context.Context, start domain.NodeRef, depth int) ([]domain.NodeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[start]; !ok {
		return nil, nil
	}

	visited := map[domain.NodeRef]int{start: 0}
	queue := []domain.NodeRef{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		d := visited[current]
		if d >= depth {
			continue
		}
		for _, adj := range [][]domain.NodeRef{s.adjOut[current], s.adjIn[current]} {
			for _, next := range adj {
				if _, seen := visited[next]; seen {
					continue
				}
				visited[next] = d + 1
				queue = append(queue, next)
			}
		}
	}

	out := make([]domain.NodeRef, 0, len(visited)-1)
	for n := range visited {
		if n != start {
			out = append(out, n)
		}
	}
	sortRefs(out)
	return out, nil
}

// Funders implements Store.
func (s *MemoryStore) Funders(_ context.Context, wallet domain.NodeRef) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, from := range s.adjIn[wallet] {
		if _, ok := s.edges[edgeKey{from: from, to: wallet, kind: domain.EdgeFunded}]; ok {
			out = append(out, from.Address)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close(context.Context) error { return nil }

// Edges returns a snapshot of every edge, ordered for stable comparison.
func (s *MemoryStore) Edges() []domain.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.From != b.From {
			return refLess(a.From, b.From)
		}
		return refLess(a.To, b.To)
	})
	return out
}

func sortRefs(refs []domain.NodeRef) {
	sort.Slice(refs, func(i, j int) bool { return refLess(refs[i], refs[j]) })
}

func refLess(a, b domain.NodeRef) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Chain != b.Chain {
		return a.Chain < b.Chain
	}
	return a.Address < b.Address
}
