package chain

import (
	"fmt"
	"os"
	"strings"
)

// =============================================================================
// Contract Addresses (configurable)
// =============================================================================

// ContractAddresses holds the deployed NeptuneChain contract hashes.
type ContractAddresses struct {
	Accounts     string `json:"accounts"`
	Verification string `json:"verification"`
	Credits      string `json:"credits"`
}

// LoadFromEnv loads contract addresses from environment variables.
func (c *ContractAddresses) LoadFromEnv() {
	if h := os.Getenv("NPC_CONTRACT_ACCOUNTS"); h != "" {
		c.Accounts = h
	}
	if h := os.Getenv("NPC_CONTRACT_VERIFICATION"); h != "" {
		c.Verification = h
	}
	if h := os.Getenv("NPC_CONTRACT_CREDITS"); h != "" {
		c.Credits = h
	}
}

// ContractAddressesFromEnv creates ContractAddresses from environment variables.
func ContractAddressesFromEnv() ContractAddresses {
	c := ContractAddresses{}
	c.LoadFromEnv()
	return c
}

// Validate checks every hash parses as a script hash.
func (c ContractAddresses) Validate() error {
	for name, hash := range map[string]string{
		"accounts":     c.Accounts,
		"verification": c.Verification,
		"credits":      c.Credits,
	} {
		if hash == "" {
			return fmt.Errorf("contract %s: hash is required", name)
		}
		if _, err := ParseScriptHash(hash); err != nil {
			return fmt.Errorf("contract %s: %w", name, err)
		}
	}
	return nil
}

// Normalized returns the hashes lower-cased with a 0x prefix, the form
// notifications report them in.
func (c ContractAddresses) Normalized() ContractAddresses {
	return ContractAddresses{
		Accounts:     NormalizeHash(c.Accounts),
		Verification: NormalizeHash(c.Verification),
		Credits:      NormalizeHash(c.Credits),
	}
}

// NormalizeHash lower-cases h and ensures a 0x prefix.
func NormalizeHash(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if h == "" {
		return ""
	}
	if !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	return h
}
