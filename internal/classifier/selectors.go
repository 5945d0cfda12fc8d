package classifier

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
)

// Selector is a 4-byte function selector.
type Selector [4]byte

// String returns the selector as 8 lowercase hex characters without prefix.
func (s Selector) String() string {
	return hex.EncodeToString(s[:])
}

// SelectorOf computes the selector of a canonical signature such as
// "transfer(address,uint256)".
func SelectorOf(signature string) Selector {
	var s Selector
	copy(s[:], crypto.Keccak256([]byte(signature))[:4])
	return s
}

// ParseSelector parses 8 hex characters, with or without 0x prefix.
func ParseSelector(h string) (Selector, error) {
	if len(h) == 10 && (h[:2] == "0x" || h[:2] == "0X") {
		h = h[2:]
	}
	var s Selector
	if len(h) != 8 {
		return s, fmt.Errorf("selector %q: want 8 hex chars", h)
	}
	if _, err := hex.Decode(s[:], []byte(h)); err != nil {
		return s, fmt.Errorf("selector %q: %w", h, err)
	}
	return s, nil
}

func mustSelector(h string) Selector {
	s, err := ParseSelector(h)
	if err != nil {
		panic(err)
	}
	return s
}

// SelectorSet is a set of selectors.
type SelectorSet map[Selector]struct{}

// Has reports membership.
func (s SelectorSet) Has(sel Selector) bool {
	_, ok := s[sel]
	return ok
}

// Strings returns the set as sorted hex strings.
func (s SelectorSet) Strings() []string {
	out := make([]string, 0, len(s))
	for sel := range s {
		out = append(out, sel.String())
	}
	sort.Strings(out)
	return out
}

// Capability names a contract capability detected from selectors.
type Capability string

const (
	CapOwner             Capability = "owner"
	CapTransferOwnership Capability = "transfer_ownership"
	CapRenounce          Capability = "renounce_ownership"
	CapSetOwner          Capability = "set_owner"
	CapMint              Capability = "mint"
	CapBurn              Capability = "burn"
	CapWithdraw          Capability = "withdraw"
	CapMinterRole        Capability = "minter_role"
	CapBlacklist         Capability = "blacklist"
	CapPause             Capability = "pause"
	CapPauserRole        Capability = "pauser_role"
	CapProxy             Capability = "proxy"
	CapFeeChange         Capability = "fee_change"
)

// SelectorInfo maps a selector to a named function and its capability.
type SelectorInfo struct {
	Selector   Selector
	Name       string
	Capability Capability
	// Dangerous marks functions reported in the dangerous-function list.
	Dangerous bool
}

// Required ERC-20 selectors.
var (
	SelTotalSupply  = mustSelector("18160ddd")
	SelBalanceOf    = mustSelector("70a08231")
	SelTransfer     = mustSelector("a9059cbb")
	SelApprove      = mustSelector("095ea7b3")
	SelTransferFrom = mustSelector("23b872dd")
)

// Optional metadata selectors.
var (
	SelName     = mustSelector("06fdde03")
	SelSymbol   = mustSelector("95d89b41")
	SelDecimals = mustSelector("313ce567")
)

var erc20Required = [5]Selector{SelTotalSupply, SelBalanceOf, SelTransfer, SelApprove, SelTransferFrom}

// selectorTable is the capability table. Order is the order dangerous
// functions are reported in.
var selectorTable = []SelectorInfo{
	{mustSelector("8da5cb5b"), "owner", CapOwner, false},
	{mustSelector("f2fde38b"), "transferOwnership", CapTransferOwnership, false},
	{mustSelector("715018a6"), "renounceOwnership", CapRenounce, false},
	{mustSelector("13af4035"), "setOwner", CapSetOwner, false},

	{mustSelector("42966c68"), "burn", CapBurn, true},
	{mustSelector("79cc6790"), "burnFrom", CapBurn, true},
	{mustSelector("40c10f19"), "mint", CapMint, true},
	{mustSelector("9dc29fac"), "withdraw", CapWithdraw, true},
	{SelectorOf("withdraw(uint256)"), "withdraw", CapWithdraw, true},
	{mustSelector("24d7806c"), "setMinter", CapMinterRole, true},
	{mustSelector("9b2f3ef0"), "setBlacklist", CapBlacklist, true},
	{mustSelector("f9f92be4"), "addToBlacklist", CapBlacklist, true},
	{mustSelector("f0f9d4c6"), "removeFromBlacklist", CapBlacklist, true},
	{mustSelector("8456cb59"), "pause", CapPause, true},
	{mustSelector("3f4ba83a"), "unpause", CapPause, true},
	{mustSelector("8f283970"), "setPauser", CapPauserRole, true},

	{mustSelector("3659cfe6"), "upgradeTo", CapProxy, true},
	{mustSelector("4f1ef286"), "upgradeToAndCall", CapProxy, true},
	{mustSelector("5c60da1b"), "implementation", CapProxy, false},

	{SelectorOf("setFee(uint256)"), "setFee", CapFeeChange, true},
	{SelectorOf("setTaxFee(uint256)"), "setTaxFee", CapFeeChange, true},
	{SelectorOf("setFees(uint256,uint256)"), "setFees", CapFeeChange, true},
	{SelectorOf("updateFees(uint256,uint256)"), "updateFees", CapFeeChange, true},
}

// Table returns a copy of the capability selector table.
func Table() []SelectorInfo {
	out := make([]SelectorInfo, len(selectorTable))
	copy(out, selectorTable)
	return out
}
