// Package ownership reads a token's bytecode and on-chain owner to score
// ownership control and contract capabilities.
package ownership

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"sentinel-ledger/internal/chain"
	"sentinel-ledger/internal/classifier"
	"sentinel-ledger/internal/domain"
)

// DefaultScore is used for both ownership and contract risk when the
// bytecode could not be analyzed.
const DefaultScore = 50

// Ownership flags.
const (
	FlagNotRenounced   = "Ownership not renounced"
	FlagTransferable   = "Ownership can be transferred"
	FlagHasMint        = "Has mint function"
	FlagHasBlacklist   = "Has blacklist function"
	FlagCanPause       = "Can pause trading"
	FlagCanWithdraw    = "Owner can withdraw funds"
	FlagAnalysisFailed = "Ownership analysis failed"
)

// ErrNoBytecode is returned when the token address holds no code.
var ErrNoBytecode = errors.New("no bytecode at address")

var ownableABI = chain.MustParseABI(`[
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`)

// CodeReader is the chain surface the analyzer needs.
type CodeReader interface {
	chain.Caller
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
}

// Result is one ownership analysis.
type Result struct {
	Score        float64
	Flags        []string
	Capabilities classifier.Capabilities
	Renounced    bool
	Owner        *common.Address // nil when owner() was absent or unreadable

	// Analysis is the contract_analysis row to persist.
	Analysis *domain.ContractAnalysis
}

// Analyzer scores ownership control of token contracts.
type Analyzer struct {
	client CodeReader
	now    func() time.Time
	logger zerolog.Logger
}

// Options contains configuration for creating an Analyzer.
type Options struct {
	Client CodeReader
	Now    func() time.Time
	Logger zerolog.Logger
}

// NewAnalyzer creates a new ownership analyzer.
func NewAnalyzer(opts Options) *Analyzer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Analyzer{client: opts.Client, now: opts.Now, logger: opts.Logger}
}

// Analyze fetches the token bytecode, maps its selectors to capabilities,
// reads owner() when present and computes the ownership score.
func (a *Analyzer) Analyze(ctx context.Context, token *domain.Token) (*Result, error) {
	addr := common.HexToAddress(token.Address)
	code, err := a.client.CodeAt(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("get code %s: %w", token.Address, err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%s: %w", token.Address, ErrNoBytecode)
	}

	caps := classifier.Analyze(code)
	res := &Result{Capabilities: caps}

	if caps.HasOwner {
		owner, err := chain.NewContract(a.client, addr, ownableABI).CallAddress(ctx, "owner")
		if err != nil {
			a.logger.Debug().Err(err).Str("token", token.Address).Msg("owner() unreadable")
		} else {
			res.Owner = &owner
			res.Renounced = owner == (common.Address{})
		}
	}

	res.Score, res.Flags = Score(caps, res.Renounced)
	res.Analysis = contractAnalysis(token, caps, res, a.now().UnixMilli())
	return res, nil
}

// Score computes the additive ownership sub-score, capped at 100.
func Score(caps classifier.Capabilities, renounced bool) (float64, []string) {
	var score float64
	var flags []string
	add := func(points float64, flag string) {
		score += points
		flags = append(flags, flag)
	}

	if caps.HasOwner && !renounced {
		add(30, FlagNotRenounced)
	}
	if caps.Transferable {
		add(20, FlagTransferable)
	}
	if caps.HasMint {
		add(25, FlagHasMint)
	}
	if caps.HasBlacklist {
		add(20, FlagHasBlacklist)
	}
	if caps.HasPause {
		add(15, FlagCanPause)
	}
	if caps.HasWithdraw {
		add(20, FlagCanWithdraw)
	}
	return math.Min(score, 100), flags
}

func contractAnalysis(token *domain.Token, caps classifier.Capabilities, res *Result, now int64) *domain.ContractAnalysis {
	ca := &domain.ContractAnalysis{
		TokenAddress:     token.Address,
		Chain:            token.Chain,
		HasMint:          caps.HasMint,
		MintUnrestricted: caps.MintUnrestricted(),
		HasBurn:          caps.HasBurn,
		HasBlacklist:     caps.HasBlacklist,
		HasPause:         caps.HasPause,
		HasOwnership:     caps.HasOwnershipControl(),
		Renounced:        res.Renounced,
		Transferable:     caps.Transferable,
		IsProxy:          caps.IsProxy,
		IsUpgradeable:    caps.IsProxy,
		HasFeeChange:     caps.HasFeeChange,
		HasWithdraw:      caps.HasWithdraw,
		AnalyzedAt:       now,
	}
	if res.Owner != nil {
		o := domain.NormalizeAddress(res.Owner.Hex())
		ca.OwnerAddress = &o
	}
	for _, s := range caps.Selectors.Strings() {
		ca.Selectors = append(ca.Selectors, "0x"+s)
	}
	ca.DangerousFunctions = append([]string(nil), caps.Dangerous...)
	sort.Strings(ca.DangerousFunctions)
	return ca
}
