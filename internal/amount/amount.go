// Package amount converts API-boundary numerics into lossless ledger integers.
package amount

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Parse parses a decimal string into a non-negative integer.
// Fractional values, exponents that leave a fraction, and negatives are rejected.
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", s)
	}
	if !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("amount %q must be an integer", s)
	}
	return d.BigInt(), nil
}

// ParsePositive is Parse with zero rejected.
func ParsePositive(s string) (*big.Int, error) {
	v, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if v.Sign() == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return v, nil
}

// FromJSON accepts a JSON string or number and parses it with Parse.
// Numbers must have been decoded with json.Decoder.UseNumber.
func FromJSON(v interface{}) (*big.Int, error) {
	switch t := v.(type) {
	case string:
		return Parse(t)
	case json.Number:
		return Parse(t.String())
	case nil:
		return nil, fmt.Errorf("amount is required")
	default:
		return nil, fmt.Errorf("unsupported amount type %T", v)
	}
}

// Value is a JSON field that accepts either a quoted or bare integer and
// always marshals as a decimal string.
type Value struct {
	Int *big.Int
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		v.Int = nil
		return nil
	}
	raw = strings.Trim(raw, `"`)
	n, err := Parse(raw)
	if err != nil {
		return err
	}
	v.Int = n
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Int == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v.Int.String())
}

// String returns the decimal representation, or "0" when unset.
func String(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Sum adds the given values, treating nil as zero.
func Sum(values ...*big.Int) *big.Int {
	out := new(big.Int)
	for _, v := range values {
		if v != nil {
			out.Add(out, v)
		}
	}
	return out
}
