// Package chain wraps EVM JSON-RPC access for ingestion and analysis.
//
// Blocks are decoded from raw eth_getBlockByNumber responses rather than
// go-ethereum's typed block so that L2 system transactions (OP-stack
// deposits on Base) never fail the whole block.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"sentinel-ledger/internal/observability"
)

// Transaction is the subset of a transaction the pipeline consumes.
type Transaction struct {
	Hash  common.Hash
	From  common.Address
	To    *common.Address // nil for contract creation
	Value *big.Int
}

// IsCreation reports whether the transaction deploys a contract.
func (t Transaction) IsCreation() bool {
	return t.To == nil
}

// Block is a fetched block with full transactions.
type Block struct {
	Number       uint64
	Hash         common.Hash
	Time         uint64 // unix seconds
	Transactions []Transaction
}

// TimeMillis returns the block timestamp in unix milliseconds.
func (b *Block) TimeMillis() int64 {
	return int64(b.Time) * 1000
}

// Caller executes read-only contract calls against latest state.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Client is the chain access surface used by the pipeline.
type Client interface {
	Caller
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*Block, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// ClientOptions configures an RPCClient.
type ClientOptions struct {
	// Name labels metrics, e.g. "base".
	Name string
	// Timeout bounds every individual RPC call. Zero means 30s.
	Timeout time.Duration
}

// RPCClient implements Client over go-ethereum's rpc and ethclient packages.
type RPCClient struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	name    string
	timeout time.Duration
}

var _ Client = (*RPCClient)(nil)

// Dial connects to an HTTP or WebSocket JSON-RPC endpoint.
func Dial(ctx context.Context, url string, opts ClientOptions) (*RPCClient, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", opts.Name, err)
	}
	return NewRPCClient(rc, opts), nil
}

// NewRPCClient wraps an existing rpc.Client.
func NewRPCClient(rc *rpc.Client, opts ClientOptions) *RPCClient {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &RPCClient{
		rpc:     rc,
		eth:     ethclient.NewClient(rc),
		name:    opts.Name,
		timeout: opts.Timeout,
	}
}

// Close releases the underlying connection.
func (c *RPCClient) Close() {
	c.rpc.Close()
}

// ChainID returns the remote chain id.
func (c *RPCClient) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, done := c.begin(ctx, "eth_chainId")
	id, err := c.eth.ChainID(ctx)
	done(err)
	return id, err
}

// BlockNumber returns the current head.
func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, done := c.begin(ctx, "eth_blockNumber")
	n, err := c.eth.BlockNumber(ctx)
	done(err)
	return n, err
}

// BlockByNumber fetches a block with full transaction objects.
func (c *RPCClient) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	ctx, done := c.begin(ctx, "eth_getBlockByNumber")
	var raw *rpcBlock
	err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true)
	if err == nil && raw == nil {
		err = ethereum.NotFound
	}
	done(err)
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", number, err)
	}
	return raw.toBlock(), nil
}

// TransactionReceipt fetches the receipt for hash.
func (c *RPCClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, done := c.begin(ctx, "eth_getTransactionReceipt")
	r, err := c.eth.TransactionReceipt(ctx, hash)
	done(err)
	return r, err
}

// CodeAt returns runtime bytecode at the latest block.
func (c *RPCClient) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	ctx, done := c.begin(ctx, "eth_getCode")
	code, err := c.eth.CodeAt(ctx, account, nil)
	done(err)
	return code, err
}

// NonceAt returns the account nonce at the latest block.
func (c *RPCClient) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ctx, done := c.begin(ctx, "eth_getTransactionCount")
	n, err := c.eth.NonceAt(ctx, account, nil)
	done(err)
	return n, err
}

// CallContract executes an eth_call against latest state.
func (c *RPCClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	ctx, done := c.begin(ctx, "eth_call")
	out, err := c.eth.CallContract(ctx, msg, nil)
	done(err)
	return out, err
}

// begin applies the per-call timeout and returns a completion hook that
// records latency.
func (c *RPCClient) begin(ctx context.Context, method string) (context.Context, func(error)) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	start := time.Now()
	return ctx, func(err error) {
		cancel()
		observability.RecordRPCCall(c.name, method, time.Since(start).Seconds(), err)
	}
}

type rpcBlock struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         common.Hash    `json:"hash"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	Transactions []rpcTx        `json:"transactions"`
}

type rpcTx struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
}

func (b *rpcBlock) toBlock() *Block {
	out := &Block{
		Number:       uint64(b.Number),
		Hash:         b.Hash,
		Time:         uint64(b.Timestamp),
		Transactions: make([]Transaction, 0, len(b.Transactions)),
	}
	for _, tx := range b.Transactions {
		value := new(big.Int)
		if tx.Value != nil {
			value = tx.Value.ToInt()
		}
		out.Transactions = append(out.Transactions, Transaction{
			Hash:  tx.Hash,
			From:  tx.From,
			To:    tx.To,
			Value: value,
		})
	}
	return out
}
