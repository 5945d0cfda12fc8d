// Package classifier inspects runtime bytecode for function selectors.
//
// Selectors are found by a naive scan for the PUSH4 opcode: every 0x63 byte
// contributes the following four bytes as a candidate. Push operands are not
// skipped, so the set over-approximates the real dispatch table. That is
// acceptable for a heuristic that only counts matches against known values.
package classifier

// opPush4 is the EVM PUSH4 opcode.
const opPush4 = 0x63

// MinERC20Matches is how many required ERC-20 selectors must be present.
const MinERC20Matches = 3

// ExtractSelectors returns every 4-byte operand following a PUSH4 byte.
func ExtractSelectors(code []byte) SelectorSet {
	set := make(SelectorSet)
	for i := 0; i+4 < len(code); i++ {
		if code[i] != opPush4 {
			continue
		}
		var s Selector
		copy(s[:], code[i+1:i+5])
		set[s] = struct{}{}
	}
	return set
}

// ERC20Matches counts the required ERC-20 selectors present in set.
func ERC20Matches(set SelectorSet) int {
	n := 0
	for _, sel := range erc20Required {
		if set.Has(sel) {
			n++
		}
	}
	return n
}

// IsToken reports whether code looks like a fungible token.
func IsToken(code []byte) bool {
	if len(code) == 0 {
		return false
	}
	return ERC20Matches(ExtractSelectors(code)) >= MinERC20Matches
}

// Capabilities summarizes what a contract's selectors allow.
type Capabilities struct {
	Selectors SelectorSet

	HasOwner     bool // owner()
	Transferable bool // transferOwnership / setOwner
	Renounceable bool
	HasMint      bool
	HasBurn      bool
	HasWithdraw  bool
	HasBlacklist bool
	HasPause     bool
	IsProxy      bool
	HasFeeChange bool

	// HasRoleChange is set by minter or pauser role setters. A role setter
	// alone implies neither mint nor pause.
	HasRoleChange bool

	// Dangerous lists matched dangerous function names in table order,
	// without duplicates.
	Dangerous []string
}

// HasOwnershipControl reports whether any ownership selector is present.
func (c Capabilities) HasOwnershipControl() bool {
	return c.HasOwner || c.Transferable || c.Renounceable
}

// MintUnrestricted reports a mint with no ownership gate in sight.
func (c Capabilities) MintUnrestricted() bool {
	return c.HasMint && !c.HasOwnershipControl()
}

// Analyze extracts selectors from code and maps them to capabilities.
func Analyze(code []byte) Capabilities {
	set := ExtractSelectors(code)
	caps := Capabilities{Selectors: set}

	seen := make(map[string]bool)
	for _, info := range selectorTable {
		if !set.Has(info.Selector) {
			continue
		}
		switch info.Capability {
		case CapOwner:
			caps.HasOwner = true
		case CapTransferOwnership, CapSetOwner:
			caps.Transferable = true
		case CapRenounce:
			caps.Renounceable = true
		case CapMint:
			caps.HasMint = true
		case CapBurn:
			caps.HasBurn = true
		case CapWithdraw:
			caps.HasWithdraw = true
		case CapBlacklist:
			caps.HasBlacklist = true
		case CapPause:
			caps.HasPause = true
		case CapMinterRole, CapPauserRole:
			caps.HasRoleChange = true
		case CapProxy:
			caps.IsProxy = true
		case CapFeeChange:
			caps.HasFeeChange = true
		}
		if info.Dangerous && !seen[info.Name] {
			seen[info.Name] = true
			caps.Dangerous = append(caps.Dangerous, info.Name)
		}
	}
	return caps
}
