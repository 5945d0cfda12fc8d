package domain

import "strings"

// ZeroAddress is the all-zero EVM address in normalized form.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// NormalizeAddress lowercases an 0x-hex address so it can be used as a key.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(strings.ToLower(addr))
	if addr != "" && !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}
	return addr
}

// IsZeroAddress reports whether addr is empty or the zero address.
func IsZeroAddress(addr string) bool {
	n := NormalizeAddress(addr)
	return n == "" || n == ZeroAddress
}
