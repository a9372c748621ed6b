package otc

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseAddress decodes a 20-byte hex account address, with or without a
// 0x prefix.
func ParseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("otc: invalid address %q: %w", s, err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("otc: invalid address length %d", len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

// FormatAddress renders an account address as 0x-prefixed hex.
func FormatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// ParseOfferID decodes a 32-byte hex offer identifier.
func ParseOfferID(s string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("otc: invalid offer id %q: %w", s, err)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("otc: invalid offer id length %d", len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}

// FormatOfferID renders an offer identifier as 0x-prefixed hex.
func FormatOfferID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}
