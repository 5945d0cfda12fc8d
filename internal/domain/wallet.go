package domain

// Wallet is a deployer address profiled on one chain.
// Corresponds to wallets table in PostgreSQL. Identity is (Address, Chain).
type Wallet struct {
	Address        string
	Chain          string
	FirstSeen      int64 // ms, earliest known activity
	TotalDeployed  int   // tokens deployed on Chain
	SuspectedRugs  int   // deployed tokens whose liquidity score exceeded the rug threshold
	WalletAgeDays  int
	DeployerScore  float64
	Flags          []string
	CrossChain     *CrossChainSummary // nullable
	LastProfiledAt int64              // ms
}

// CrossChainSummary is what the correlator found for the same address on a secondary chain.
type CrossChainSummary struct {
	Chain         string `json:"chain"`
	TokensFound   int    `json:"tokens_found"`
	SuspectedRugs int    `json:"suspected_rugs"`
	Nonce         uint64 `json:"nonce"`
	Suspicious    bool   `json:"suspicious"`
}

// Clone returns a deep copy of w.
func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	c := *w
	c.Flags = append([]string(nil), w.Flags...)
	c.CrossChain = clonePtr(w.CrossChain)
	return &c
}
