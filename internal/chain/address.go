package chain

import (
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
)

// NormalizeAddress accepts an N3 address or a 0x-prefixed script hash and
// returns it trimmed. Anything else is an error.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("address is required")
	}
	if strings.HasPrefix(s, "0x") {
		if _, err := ParseScriptHash(s); err != nil {
			return "", fmt.Errorf("invalid script hash %q: %w", s, err)
		}
		return strings.ToLower(s), nil
	}
	if _, err := address.StringToUint160(s); err != nil {
		return "", fmt.Errorf("invalid address %q: %w", s, err)
	}
	return s, nil
}
