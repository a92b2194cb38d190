package domain

import "strings"

// PriorityTier buckets tokens by how aggressively discovery should pair them.
type PriorityTier string

const (
	TierHigh   PriorityTier = "high"
	TierMedium PriorityTier = "medium"
	TierLow    PriorityTier = "low"
)

// Score returns the fixed discovery score contribution for the tier.
func (t PriorityTier) Score() float64 {
	switch t {
	case TierHigh:
		return 10
	case TierMedium:
		return 5
	default:
		return 1
	}
}

// Token identifies an ERC-20 token tracked by the scanner. Address is stored
// lowercase so tokens compare equal regardless of checksum casing.
type Token struct {
	Symbol   string
	Address  string
	Decimals uint8
	Tier     PriorityTier
}

// NormalizeAddress lowercases a 0x-prefixed hex address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Equal reports whether two tokens refer to the same contract.
func (t Token) Equal(other Token) bool {
	return NormalizeAddress(t.Address) == NormalizeAddress(other.Address)
}
