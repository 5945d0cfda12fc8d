package domain

// RiskHistory is one immutable scoring snapshot.
// Corresponds to risk_history table in PostgreSQL (append-only).
type RiskHistory struct {
	ID             int64 // BIGSERIAL primary key
	TokenAddress   string
	Chain          string
	ContractScore  float64
	LiquidityScore float64
	OwnershipScore float64
	DeployerScore  float64
	FinalScore     float64
	RiskLevel      RiskLevel
	Flags          []string
	RecordedAt     int64 // ms
}
