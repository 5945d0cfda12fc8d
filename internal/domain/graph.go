package domain

// NodeKind labels a graph node.
type NodeKind string

// Graph node kinds
const (
	NodeWallet NodeKind = "Wallet"
	NodeToken  NodeKind = "Token"
	NodePool   NodeKind = "Pool"
)

// EdgeKind labels a directed graph relationship.
type EdgeKind string

// Graph edge kinds
const (
	EdgeDeployed         EdgeKind = "DEPLOYED"
	EdgeFunded           EdgeKind = "FUNDED"
	EdgeAddedLiquidity   EdgeKind = "ADDED_LIQUIDITY"
	EdgeRemovedLiquidity EdgeKind = "REMOVED_LIQUIDITY"
	EdgeBridgedTo        EdgeKind = "BRIDGED_TO"
)

// NodeRef identifies a node in the wallet graph.
type NodeRef struct {
	Kind    NodeKind
	Address string
	Chain   string
}

// Edge is a typed relationship between two nodes.
type Edge struct {
	From       NodeRef
	To         NodeRef
	Kind       EdgeKind
	TxHash     string // optional
	ValueWei   string // optional decimal string
	ObservedAt int64  // ms
}

// ClusterRisk is the result of a bounded neighborhood traversal.
type ClusterRisk struct {
	ClusterSize int
	Score       float64
	Flags       []string
}
