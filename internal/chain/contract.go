package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrEmptyResult is returned when a call produces no return data, which is
// what an eth_call against a non-contract or a missing function yields.
var ErrEmptyResult = errors.New("empty call result")

// MustParseABI parses a JSON ABI definition and panics on error.
// Intended for package-level ABI fragments.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// Contract binds an ABI to an address for read-only calls.
type Contract struct {
	Address common.Address
	abi     abi.ABI
	caller  Caller
}

// NewContract creates a Contract.
func NewContract(caller Caller, address common.Address, parsed abi.ABI) *Contract {
	return &Contract{Address: address, abi: parsed, caller: caller}
}

// Call packs method with args, executes it and unpacks the outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := c.Address
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, c.Address.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s on %s: %w", method, c.Address.Hex(), ErrEmptyResult)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: %w", method, ErrEmptyResult)
	}
	return values, nil
}

// CallAddress calls a method returning a single address.
func (c *Contract) CallAddress(ctx context.Context, method string, args ...any) (common.Address, error) {
	values, err := c.Call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected return type %T", method, values[0])
	}
	return addr, nil
}

// Pack exposes ABI packing for callers that build raw call data, such as
// test fakes matching on selectors.
func (c *Contract) Pack(method string, args ...any) ([]byte, error) {
	return c.abi.Pack(method, args...)
}
