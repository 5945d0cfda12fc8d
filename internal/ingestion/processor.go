package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"sentinel-ledger/internal/chain"
	"sentinel-ledger/internal/classifier"
	"sentinel-ledger/internal/domain"
	"sentinel-ledger/internal/observability"
	"sentinel-ledger/internal/storage"
)

// Enqueuer schedules analysis of a newly detected token.
type Enqueuer interface {
	Enqueue(ctx context.Context, address, chain string) error
}

// EdgeRecorder receives wallet-graph edges. Implementations must not block
// ingestion on graph-store failures.
type EdgeRecorder interface {
	RecordEdge(ctx context.Context, e domain.Edge)
}

// BlockProcessor detects token deployments and value flows in a block.
type BlockProcessor struct {
	chain    string
	client   chain.Client
	tokens   storage.TokenStore
	enqueuer Enqueuer
	edges    EdgeRecorder
	bridges  map[string]bool
	now      func() time.Time
	logger   zerolog.Logger

	deployersMu sync.RWMutex
	deployers   map[string]bool
}

var _ BlockHandler = (*BlockProcessor)(nil)

// BlockProcessorOptions contains configuration for creating a BlockProcessor.
type BlockProcessorOptions struct {
	Chain    string
	Client   chain.Client
	Tokens   storage.TokenStore
	Enqueuer Enqueuer     // optional; the pending sweep catches tokens not enqueued
	Edges    EdgeRecorder // optional
	Bridges  []string     // bridge contract addresses on this chain
	Now      func() time.Time
	Logger   zerolog.Logger
}

// NewBlockProcessor creates a new block processor.
func NewBlockProcessor(opts BlockProcessorOptions) *BlockProcessor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	bridges := make(map[string]bool, len(opts.Bridges))
	for _, b := range opts.Bridges {
		bridges[domain.NormalizeAddress(b)] = true
	}

	return &BlockProcessor{
		chain:     opts.Chain,
		client:    opts.Client,
		tokens:    opts.Tokens,
		enqueuer:  opts.Enqueuer,
		edges:     opts.Edges,
		bridges:   bridges,
		now:       now,
		logger:    opts.Logger.With().Str("chain", opts.Chain).Logger(),
		deployers: make(map[string]bool),
	}
}

// LoadDeployers warms the known-deployer set used for funding edges.
func (p *BlockProcessor) LoadDeployers(ctx context.Context) error {
	deployers, err := p.tokens.ListDeployers(ctx, p.chain)
	if err != nil {
		return fmt.Errorf("list deployers: %w", err)
	}

	p.deployersMu.Lock()
	for _, d := range deployers {
		p.deployers[domain.NormalizeAddress(d)] = true
	}
	p.deployersMu.Unlock()

	p.logger.Info().Int("deployers", len(deployers)).Msg("known deployers loaded")
	return nil
}

func (p *BlockProcessor) isDeployer(addr string) bool {
	p.deployersMu.RLock()
	defer p.deployersMu.RUnlock()
	return p.deployers[addr]
}

func (p *BlockProcessor) addDeployer(addr string) {
	p.deployersMu.Lock()
	p.deployers[addr] = true
	p.deployersMu.Unlock()
}

// ProcessBlock handles every transaction of b. Failures on individual
// transactions do not stop the others; the joined error is returned so the
// block can be retried later.
func (p *BlockProcessor) ProcessBlock(ctx context.Context, b *chain.Block) error {
	var errs []error
	for _, tx := range b.Transactions {
		if tx.IsCreation() {
			if err := p.processCreation(ctx, b, tx); err != nil {
				errs = append(errs, fmt.Errorf("tx %s: %w", tx.Hash.Hex(), err))
			}
			continue
		}
		p.processTransfer(ctx, b, tx)
	}
	return errors.Join(errs...)
}

func (p *BlockProcessor) processCreation(ctx context.Context, b *chain.Block, tx chain.Transaction) error {
	receipt, err := p.client.TransactionReceipt(ctx, tx.Hash)
	if err != nil {
		return fmt.Errorf("get receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful || receipt.ContractAddress == (common.Address{}) {
		return nil
	}

	address := domain.NormalizeAddress(receipt.ContractAddress.Hex())
	deployer := domain.NormalizeAddress(tx.From.Hex())

	exists, err := p.tokens.Exists(ctx, address, p.chain)
	if err != nil {
		return fmt.Errorf("check token %s: %w", address, err)
	}
	if exists {
		p.logger.Debug().Str("address", address).Msg("contract already processed")
		return nil
	}

	code, err := p.client.CodeAt(ctx, receipt.ContractAddress)
	if err != nil {
		return fmt.Errorf("get code %s: %w", address, err)
	}
	if len(code) == 0 {
		p.logger.Debug().Str("address", address).Msg("contract has no bytecode")
		return nil
	}
	observability.RecordContractDetected(p.chain)

	if !classifier.IsToken(code) {
		p.logger.Debug().Str("address", address).Msg("contract is not a token")
		return nil
	}

	token := &domain.Token{
		Address:      address,
		Chain:        p.chain,
		Deployer:     deployer,
		DeployBlock:  b.Number,
		DeployTx:     strings.ToLower(tx.Hash.Hex()),
		DeployedAt:   b.TimeMillis(),
		BytecodeHash: crypto.Keccak256Hash(code).Hex(),
		RiskLevel:    domain.RiskUnknown,
		CreatedAt:    p.now().UnixMilli(),
	}
	p.readMetadata(ctx, receipt.ContractAddress, token)

	if err := p.tokens.Insert(ctx, token); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("insert token %s: %w", address, err)
	}
	observability.RecordTokenClassified(p.chain)
	p.addDeployer(deployer)

	p.logger.Info().
		Str("address", address).
		Str("deployer", deployer).
		Uint64("block", b.Number).
		Msg("new token detected")

	if p.enqueuer != nil {
		if err := p.enqueuer.Enqueue(ctx, address, p.chain); err != nil {
			p.logger.Error().Err(err).Str("address", address).Msg("enqueue analysis failed, left for sweep")
		}
	}
	return nil
}

// processTransfer records funding of known deployers and bridge arrivals.
func (p *BlockProcessor) processTransfer(ctx context.Context, b *chain.Block, tx chain.Transaction) {
	if p.edges == nil || tx.Value == nil || tx.Value.Sign() <= 0 {
		return
	}

	from := domain.NormalizeAddress(tx.From.Hex())
	to := domain.NormalizeAddress(tx.To.Hex())

	if p.isDeployer(to) {
		p.edges.RecordEdge(ctx, domain.Edge{
			From:       domain.NodeRef{Kind: domain.NodeWallet, Address: from, Chain: p.chain},
			To:         domain.NodeRef{Kind: domain.NodeWallet, Address: to, Chain: p.chain},
			Kind:       domain.EdgeFunded,
			TxHash:     strings.ToLower(tx.Hash.Hex()),
			ValueWei:   tx.Value.String(),
			ObservedAt: b.TimeMillis(),
		})
	}

	if p.bridges[from] {
		p.edges.RecordEdge(ctx, domain.Edge{
			From:       domain.NodeRef{Kind: domain.NodeWallet, Address: from, Chain: p.chain},
			To:         domain.NodeRef{Kind: domain.NodeWallet, Address: to, Chain: p.chain},
			Kind:       domain.EdgeBridgedTo,
			TxHash:     strings.ToLower(tx.Hash.Hex()),
			ValueWei:   tx.Value.String(),
			ObservedAt: b.TimeMillis(),
		})
	}
}
