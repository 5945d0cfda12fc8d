package domain

// ContractAnalysis is the capability summary extracted from a token's bytecode.
// Corresponds to contract_analysis table in PostgreSQL, one row per (TokenAddress, Chain).
type ContractAnalysis struct {
	TokenAddress string
	Chain        string

	HasMint          bool
	MintUnrestricted bool
	HasBurn          bool
	HasBlacklist     bool
	HasPause         bool
	HasOwnership     bool
	Renounced        bool
	Transferable     bool
	IsProxy          bool
	IsUpgradeable    bool
	HasFeeChange     bool
	HasWithdraw      bool

	OwnerAddress       *string  // nullable, from owner() when readable
	Selectors          []string // sorted 0x-prefixed 4-byte selectors
	DangerousFunctions []string // names of matched dangerous selectors, sorted
	AnalyzedAt         int64    // ms
}

// Clone returns a deep copy of a.
func (a *ContractAnalysis) Clone() *ContractAnalysis {
	if a == nil {
		return nil
	}
	c := *a
	c.OwnerAddress = clonePtr(a.OwnerAddress)
	c.Selectors = append([]string(nil), a.Selectors...)
	c.DangerousFunctions = append([]string(nil), a.DangerousFunctions...)
	return &c
}
