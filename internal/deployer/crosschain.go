package deployer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/storage"
)

// suspiciousDeployments is the deployment count above which secondary-chain
// activity is suspicious on its own.
const suspiciousDeployments = 5

// NonceReader reads an account's transaction count.
type NonceReader interface {
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// CrossChain correlates a deployer with its activity on a secondary chain.
type CrossChain struct {
	chain        string
	tokens       storage.TokenStore
	client       NonceReader
	rugThreshold float64
	logger       zerolog.Logger
}

// CrossChainOptions contains configuration for creating a CrossChain.
type CrossChainOptions struct {
	Chain        string
	Tokens       storage.TokenStore
	Client       NonceReader // optional
	RugThreshold float64
	Logger       zerolog.Logger
}

// NewCrossChain creates a correlator for the given secondary chain.
func NewCrossChain(opts CrossChainOptions) *CrossChain {
	if opts.RugThreshold <= 0 {
		opts.RugThreshold = DefaultRugThreshold
	}
	return &CrossChain{
		chain:        opts.Chain,
		tokens:       opts.Tokens,
		client:       opts.Client,
		rugThreshold: opts.RugThreshold,
		logger:       opts.Logger,
	}
}

// Chain returns the secondary chain name.
func (c *CrossChain) Chain() string {
	return c.chain
}

// Correlate summarizes what the address did on the secondary chain.
func (c *CrossChain) Correlate(ctx context.Context, address string) (*domain.CrossChainSummary, error) {
	address = domain.NormalizeAddress(address)
	deployed, err := c.tokens.ListByDeployer(ctx, address, c.chain)
	if err != nil {
		return nil, fmt.Errorf("list %s tokens of %s: %w", c.chain, address, err)
	}

	s := &domain.CrossChainSummary{
		Chain:         c.chain,
		TokensFound:   len(deployed),
		SuspectedRugs: CountSuspectedRugs(deployed, c.rugThreshold),
	}
	if c.client != nil && common.IsHexAddress(address) {
		nonce, err := c.client.NonceAt(ctx, common.HexToAddress(address))
		if err != nil {
			c.logger.Debug().Err(err).Str("wallet", address).Str("chain", c.chain).Msg("nonce unreadable")
		} else {
			s.Nonce = nonce
		}
	}
	s.Suspicious = s.SuspectedRugs > 0 || s.TokensFound > suspiciousDeployments
	return s, nil
}
