// Package chaintest provides an in-memory chain.Client for tests.
package chaintest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"sentinel-ledger/internal/chain"
)

// Client is a scriptable chain.Client. The zero value is not usable; call New.
type Client struct {
	mu sync.Mutex

	head      uint64
	blocks    map[uint64]*chain.Block
	blockErrs map[uint64]error
	receipts  map[common.Hash]*types.Receipt
	code      map[common.Address][]byte
	codeErrs  map[common.Address]error
	nonces    map[common.Address]uint64
	calls     map[string][]byte
	selectors map[string][]byte
	callErrs  map[common.Address]error

	blockFetches map[uint64]int
}

var _ chain.Client = (*Client)(nil)

// New creates an empty fake chain.
func New() *Client {
	return &Client{
		blocks:       make(map[uint64]*chain.Block),
		blockErrs:    make(map[uint64]error),
		receipts:     make(map[common.Hash]*types.Receipt),
		code:         make(map[common.Address][]byte),
		codeErrs:     make(map[common.Address]error),
		nonces:       make(map[common.Address]uint64),
		calls:        make(map[string][]byte),
		selectors:    make(map[string][]byte),
		callErrs:     make(map[common.Address]error),
		blockFetches: make(map[uint64]int),
	}
}

// SetHead sets the value BlockNumber returns.
func (c *Client) SetHead(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = n
}

// AddBlock registers a block and raises the head if needed.
func (c *Client) AddBlock(b *chain.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[b.Number] = b
	if b.Number > c.head {
		c.head = b.Number
	}
}

// FailBlock makes BlockByNumber(n) return err until cleared with a nil err.
func (c *Client) FailBlock(n uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.blockErrs, n)
		return
	}
	c.blockErrs[n] = err
}

// BlockFetches returns how many times block n was requested.
func (c *Client) BlockFetches(n uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockFetches[n]
}

// SetReceipt registers a receipt.
func (c *Client) SetReceipt(tx common.Hash, r *types.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[tx] = r
}

// SetCode registers runtime bytecode.
func (c *Client) SetCode(addr common.Address, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[addr] = code
}

// FailCode makes CodeAt for addr return err. A nil err clears it.
func (c *Client) FailCode(addr common.Address, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.codeErrs, addr)
		return
	}
	c.codeErrs[addr] = err
}

// SetNonce registers an account nonce.
func (c *Client) SetNonce(addr common.Address, nonce uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonces[addr] = nonce
}

// SetCall registers the return data for an exact (to, calldata) pair.
func (c *Client) SetCall(to common.Address, data, out []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[callKey(to, data)] = out
}

// SetSelector registers return data for any call to `to` whose calldata
// starts with the 4-byte selector of data. Exact matches win.
func (c *Client) SetSelector(to common.Address, data, out []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectors[callKey(to, data[:4])] = out
}

// FailCalls makes every call to `to` return err.
func (c *Client) FailCalls(to common.Address, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callErrs[to] = err
}

// BlockNumber implements chain.Client.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

// BlockByNumber implements chain.Client.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*chain.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockFetches[number]++
	if err := c.blockErrs[number]; err != nil {
		return nil, err
	}
	b, ok := c.blocks[number]
	if !ok {
		// Empty blocks do not need registering.
		return &chain.Block{Number: number, Time: 1700000000 + number*2}, nil
	}
	return b, nil
}

// TransactionReceipt implements chain.Client.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// CodeAt implements chain.Client.
func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.codeErrs[account]; err != nil {
		return nil, err
	}
	return c.code[account], nil
}

// NonceAt implements chain.Client.
func (c *Client) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

// CallContract implements chain.Client. Unregistered calls return empty
// data, which is what a node answers for a missing function.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if msg.To == nil {
		return nil, fmt.Errorf("call without target")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.callErrs[*msg.To]; err != nil {
		return nil, err
	}
	if out, ok := c.calls[callKey(*msg.To, msg.Data)]; ok {
		return out, nil
	}
	if len(msg.Data) >= 4 {
		if out, ok := c.selectors[callKey(*msg.To, msg.Data[:4])]; ok {
			return out, nil
		}
	}
	return nil, nil
}

func callKey(to common.Address, data []byte) string {
	return to.Hex() + ":" + common.Bytes2Hex(data)
}

// Encode ABI-encodes values as a tuple of the named solidity types.
// It panics on bad input and is meant for building canned call results.
func Encode(typeNames []string, values ...any) []byte {
	args := make(abi.Arguments, 0, len(typeNames))
	for _, name := range typeNames {
		typ, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abi type %s: %v", name, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	out, err := args.Pack(values...)
	if err != nil {
		panic(fmt.Sprintf("abi pack: %v", err))
	}
	return out
}

// Calldata builds selector||encoded args for signature such as
// "balanceOf(address)".
func Calldata(signature string, typeNames []string, values ...any) []byte {
	sel := Selector(signature)
	if len(typeNames) == 0 {
		return sel
	}
	return append(sel, Encode(typeNames, values...)...)
}

// Selector returns the 4-byte function selector for signature.
func Selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}
