package utils

import (
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// SolanaAddressLength is the decoded byte length of a Solana public key
const SolanaAddressLength = 32

// AddressFormatter handles validation and display of account and mint addresses
type AddressFormatter struct{}

// IsValidAddress reports whether s is a base58-encoded 32-byte public key
func (af *AddressFormatter) IsValidAddress(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 44 {
		return false
	}
	// base58.Decode returns an empty slice on any character outside the alphabet
	return len(base58.Decode(s)) == SolanaAddressLength
}

// ShortAddress returns the "abcdef...uvwxyz" form used in chart titles.
// Addresses of 12 characters or fewer are returned as-is.
func (af *AddressFormatter) ShortAddress(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "..." + s[len(s)-6:]
}

var defaultFormatter = &AddressFormatter{}

// IsValidAddress validates s with the default formatter
func IsValidAddress(s string) bool {
	return defaultFormatter.IsValidAddress(s)
}

// ShortAddress shortens s with the default formatter
func ShortAddress(s string) string {
	return defaultFormatter.ShortAddress(s)
}
