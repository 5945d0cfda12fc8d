// Package neo4jstore implements graph.Store on Neo4j.
package neo4jstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/graph"
)

// Store is a Neo4j-backed graph.Store.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ graph.Store = (*Store)(nil)

// Options contains connection settings.
type Options struct {
	URI      string
	Username string
	Password string
	Database string // empty uses the server default
}

// Open connects to Neo4j and verifies connectivity.
func Open(ctx context.Context, opts Options) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Store{driver: driver, database: opts.Database}, nil
}

// EnsureSchema creates lookup indexes for every node label.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, kind := range []domain.NodeKind{domain.NodeWallet, domain.NodeToken, domain.NodePool} {
		q := fmt.Sprintf("CREATE INDEX %s_key IF NOT EXISTS FOR (n:%s) ON (n.address, n.chain)",
			lowerLabel(kind), kind)
		if _, err := s.write(ctx, q, nil); err != nil {
			return fmt.Errorf("create %s index: %w", kind, err)
		}
	}
	return nil
}

// MergeNode implements graph.Store.
func (s *Store) MergeNode(ctx context.Context, n domain.NodeRef) error {
	label, err := nodeLabel(n.Kind)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("MERGE (n:%s {address: $address, chain: $chain})", label)
	_, err = s.write(ctx, q, map[string]any{"address": n.Address, "chain": n.Chain})
	return err
}

// MergeEdge implements graph.Store.
func (s *Store) MergeEdge(ctx context.Context, e domain.Edge) error {
	fromLabel, err := nodeLabel(e.From.Kind)
	if err != nil {
		return err
	}
	toLabel, err := nodeLabel(e.To.Kind)
	if err != nil {
		return err
	}
	rel, err := edgeType(e.Kind)
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`MERGE (a:%s {address: $from, chain: $fromChain})
MERGE (b:%s {address: $to, chain: $toChain})
MERGE (a)-[r:%s]->(b)
SET r.observed_at = $observedAt,
    r.tx_hash = CASE WHEN $txHash = '' THEN r.tx_hash ELSE $txHash END,
    r.value_wei = CASE WHEN $valueWei = '' THEN r.value_wei ELSE $valueWei END`,
		fromLabel, toLabel, rel)
	_, err = s.write(ctx, q, map[string]any{
		"from":       e.From.Address,
		"fromChain":  e.From.Chain,
		"to":         e.To.Address,
		"toChain":    e.To.Chain,
		"observedAt": e.ObservedAt,
		"txHash":     e.TxHash,
		"valueWei":   e.ValueWei,
	})
	return err
}

// Neighborhood implements graph.Store.
func (s *Store) Neighborhood(ctx context.Context, start domain.NodeRef, depth int) ([]domain.NodeRef, error) {
	label, err := nodeLabel(start.Kind)
	if err != nil {
		return nil, err
	}
	// Variable-length bounds cannot be parameterized.
	q := fmt.Sprintf(`MATCH (s:%s {address: $address, chain: $chain})-[*1..%d]-(c)
WHERE c <> s
RETURN DISTINCT labels(c)[0] AS kind, c.address AS address, c.chain AS chain`,
		label, graph.ClampDepth(depth))

	res, err := s.read(ctx, q, map[string]any{"address": start.Address, "chain": start.Chain})
	if err != nil {
		return nil, err
	}
	out := make([]domain.NodeRef, 0, len(res.Records))
	for _, rec := range res.Records {
		kind, _, err := neo4j.GetRecordValue[string](rec, "kind")
		if err != nil {
			return nil, fmt.Errorf("decode kind: %w", err)
		}
		addr, _, err := neo4j.GetRecordValue[string](rec, "address")
		if err != nil {
			return nil, fmt.Errorf("decode address: %w", err)
		}
		chain, _, err := neo4j.GetRecordValue[string](rec, "chain")
		if err != nil {
			return nil, fmt.Errorf("decode chain: %w", err)
		}
		out = append(out, domain.NodeRef{Kind: domain.NodeKind(kind), Address: addr, Chain: chain})
	}
	return out, nil
}

// Funders implements graph.Store.
func (s *Store) Funders(ctx context.Context, wallet domain.NodeRef) ([]string, error) {
	res, err := s.read(ctx, `MATCH (f:Wallet)-[:FUNDED]->(w:Wallet {address: $address, chain: $chain})
RETURN DISTINCT f.address AS address ORDER BY address`,
		map[string]any{"address": wallet.Address, "chain": wallet.Chain})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		addr, _, err := neo4j.GetRecordValue[string](rec, "address")
		if err != nil {
			return nil, fmt.Errorf("decode funder: %w", err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// Close implements graph.Store.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) write(ctx context.Context, q string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, q, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
		neo4j.ExecuteQueryWithWritersRouting())
}

func (s *Store) read(ctx context.Context, q string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, q, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
		neo4j.ExecuteQueryWithReadersRouting())
}

// Labels and relationship types are interpolated into Cypher, so only the
// known constants are accepted.
func nodeLabel(k domain.NodeKind) (string, error) {
	switch k {
	case domain.NodeWallet, domain.NodeToken, domain.NodePool:
		return string(k), nil
	}
	return "", fmt.Errorf("unknown node kind %q", k)
}

func edgeType(k domain.EdgeKind) (string, error) {
	switch k {
	case domain.EdgeDeployed, domain.EdgeFunded, domain.EdgeAddedLiquidity,
		domain.EdgeRemovedLiquidity, domain.EdgeBridgedTo:
		return string(k), nil
	}
	return "", fmt.Errorf("unknown edge kind %q", k)
}

func lowerLabel(k domain.NodeKind) string {
	switch k {
	case domain.NodeWallet:
		return "wallet"
	case domain.NodeToken:
		return "token"
	default:
		return "pool"
	}
}
