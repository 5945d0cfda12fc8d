package domain

// RiskLevel is the discrete band a final score maps to.
type RiskLevel string

// Risk level constants
const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
	RiskUnknown  RiskLevel = "UNKNOWN"
)

// Valid reports whether l is one of the known levels.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskModerate, RiskHigh, RiskCritical, RiskUnknown:
		return true
	}
	return false
}

// Token is a deployed contract the classifier confirmed as a fungible token.
// Corresponds to tokens table in PostgreSQL. Identity is (Address, Chain).
type Token struct {
	Address      string // lowercase 0x-hex contract address
	Chain        string // configured chain name, e.g. "base"
	Deployer     string // lowercase 0x-hex creator address
	DeployBlock  uint64 // block number of the creation transaction
	DeployTx     string // creation transaction hash
	DeployedAt   int64  // block timestamp in milliseconds
	BytecodeHash string // keccak256 of runtime bytecode, 0x-hex

	Name     *string // nullable, best-effort eth_call
	Symbol   *string // nullable
	Decimals *uint8  // nullable

	ContractScore  *float64 // nullable until first analysis
	LiquidityScore *float64
	OwnershipScore *float64
	DeployerScore  *float64
	FinalScore     *float64
	RiskLevel      RiskLevel
	Flags          []string // ordered, accumulated by the last analysis pass
	Explanation    *string  // nullable, optional text collaborator output

	AnalyzedAt *int64 // nullable, ms; nil means pending analysis
	CreatedAt  int64  // record creation timestamp (ms)
}

// Key returns the token's identity.
func (t *Token) Key() TokenKey {
	return TokenKey{Address: t.Address, Chain: t.Chain}
}

// TokenKey identifies a token across chains.
type TokenKey struct {
	Address string
	Chain   string
}

// Clone returns a deep copy of t.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	c.Name = clonePtr(t.Name)
	c.Symbol = clonePtr(t.Symbol)
	c.Decimals = clonePtr(t.Decimals)
	c.ContractScore = clonePtr(t.ContractScore)
	c.LiquidityScore = clonePtr(t.LiquidityScore)
	c.OwnershipScore = clonePtr(t.OwnershipScore)
	c.DeployerScore = clonePtr(t.DeployerScore)
	c.FinalScore = clonePtr(t.FinalScore)
	c.Explanation = clonePtr(t.Explanation)
	c.AnalyzedAt = clonePtr(t.AnalyzedAt)
	c.Flags = append([]string(nil), t.Flags...)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
