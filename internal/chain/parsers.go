package chain

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/bigint"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Stack item types.
const (
	ItemAny        = "Any"
	ItemBoolean    = "Boolean"
	ItemInteger    = "Integer"
	ItemByteString = "ByteString"
	ItemBuffer     = "Buffer"
	ItemArray      = "Array"
	ItemStruct     = "Struct"
	ItemMap        = "Map"
)

// =============================================================================
// Stack Item Parsers
// =============================================================================

// ParseArray extracts an array of StackItems from a parent StackItem.
func ParseArray(item StackItem) ([]StackItem, error) {
	if item.Type != ItemArray && item.Type != ItemStruct {
		return nil, fmt.Errorf("expected Array or Struct, got %s", item.Type)
	}

	var items []StackItem
	if err := json.Unmarshal(item.Value, &items); err != nil {
		return nil, fmt.Errorf("unmarshal array: %w", err)
	}
	return items, nil
}

// ParseArrayN is ParseArray with a minimum length check.
func ParseArrayN(item StackItem, n int) ([]StackItem, error) {
	items, err := ParseArray(item)
	if err != nil {
		return nil, err
	}
	if len(items) < n {
		return nil, fmt.Errorf("expected at least %d items, got %d", n, len(items))
	}
	return items, nil
}

// decodeStackBytes decodes a ByteString value. Nodes emit base64; 0x-prefixed
// and bare hex are accepted from older tooling.
func decodeStackBytes(value string) ([]byte, error) {
	if strings.HasPrefix(value, "0x") {
		return hex.DecodeString(value[2:])
	}
	if b, err := base64.StdEncoding.DecodeString(value); err == nil {
		return b, nil
	}
	return hex.DecodeString(value)
}

func ParseByteArray(item StackItem) ([]byte, error) {
	switch item.Type {
	case ItemByteString, ItemBuffer:
		var value string
		if err := json.Unmarshal(item.Value, &value); err != nil {
			return nil, err
		}
		return decodeStackBytes(value)
	case ItemAny, "Null":
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected type: %s", item.Type)
}

func ParseString(item StackItem) (string, error) {
	switch item.Type {
	case ItemByteString, ItemBuffer, ItemAny, "Null":
		b, err := ParseByteArray(item)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case ItemInteger:
		n, err := ParseInteger(item)
		if err != nil {
			return "", err
		}
		return n.String(), nil
	}
	return "", fmt.Errorf("unexpected type for string: %s", item.Type)
}

// ParseInteger parses an Integer item, or a ByteString holding a
// little-endian VM integer.
func ParseInteger(item StackItem) (*big.Int, error) {
	switch item.Type {
	case ItemInteger:
		var value string
		if err := json.Unmarshal(item.Value, &value); err != nil {
			return nil, err
		}
		n, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", value)
		}
		return n, nil
	case ItemByteString, ItemBuffer:
		b, err := ParseByteArray(item)
		if err != nil {
			return nil, err
		}
		return bigint.FromBytes(b), nil
	case ItemBoolean:
		ok, err := ParseBoolean(item)
		if err != nil {
			return nil, err
		}
		if ok {
			return big.NewInt(1), nil
		}
		return new(big.Int), nil
	case ItemAny, "Null":
		return new(big.Int), nil
	}
	return nil, fmt.Errorf("unexpected type: %s", item.Type)
}

func ParseBoolean(item StackItem) (bool, error) {
	switch item.Type {
	case ItemBoolean:
		var value bool
		if err := json.Unmarshal(item.Value, &value); err != nil {
			return false, err
		}
		return value, nil
	case ItemInteger:
		n, err := ParseInteger(item)
		if err != nil {
			return false, err
		}
		return n.Sign() != 0, nil
	case ItemByteString, ItemBuffer:
		b, err := ParseByteArray(item)
		if err != nil {
			return false, err
		}
		for _, c := range b {
			if c != 0 {
				return true, nil
			}
		}
		return false, nil
	case ItemAny, "Null":
		return false, nil
	}
	return false, fmt.Errorf("unexpected type: %s", item.Type)
}

// ParseHash160 parses a 20-byte script hash into its 0x display form.
func ParseHash160(item StackItem) (string, error) {
	b, err := ParseByteArray(item)
	if err != nil {
		return "", err
	}
	if b == nil {
		return "", nil
	}
	u, err := util.Uint160DecodeBytesBE(b)
	if err != nil {
		return "", fmt.Errorf("parse hash160: %w", err)
	}
	return "0x" + u.StringLE(), nil
}

// ParseAddressOrString returns a Hash160 display form when item holds exactly
// 20 bytes and the plain string otherwise.
func ParseAddressOrString(item StackItem) (string, error) {
	b, err := ParseByteArray(item)
	if err != nil {
		return ParseString(item)
	}
	if len(b) == util.Uint160Size {
		return ParseHash160(item)
	}
	return string(b), nil
}

// ParseStrings parses an Array of strings.
func ParseStrings(item StackItem) ([]string, error) {
	if item.Type == ItemAny || item.Type == "Null" {
		return []string{}, nil
	}
	items, err := ParseArray(item)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, it := range items {
		if out[i], err = ParseString(it); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return out, nil
}

// ParseIntegers parses an Array of integers.
func ParseIntegers(item StackItem) ([]*big.Int, error) {
	if item.Type == ItemAny || item.Type == "Null" {
		return []*big.Int{}, nil
	}
	items, err := ParseArray(item)
	if err != nil {
		return nil, err
	}
	out := make([]*big.Int, len(items))
	for i, it := range items {
		if out[i], err = ParseInteger(it); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return out, nil
}

// FirstStackItem returns the first item of an invocation stack.
func FirstStackItem(stack []StackItem) (StackItem, error) {
	if len(stack) == 0 {
		return StackItem{}, fmt.Errorf("empty result stack")
	}
	return stack[0], nil
}

// =============================================================================
// Stack Item Constructors
// =============================================================================

// NewIntegerItem builds an Integer stack item.
func NewIntegerItem(n *big.Int) StackItem {
	if n == nil {
		n = new(big.Int)
	}
	raw, _ := json.Marshal(n.String())
	return StackItem{Type: ItemInteger, Value: raw}
}

// NewStringItem builds a ByteString stack item holding s.
func NewStringItem(s string) StackItem {
	return NewByteStringItem([]byte(s))
}

// NewByteStringItem builds a base64 ByteString stack item.
func NewByteStringItem(b []byte) StackItem {
	raw, _ := json.Marshal(base64.StdEncoding.EncodeToString(b))
	return StackItem{Type: ItemByteString, Value: raw}
}

// NewBooleanItem builds a Boolean stack item.
func NewBooleanItem(b bool) StackItem {
	raw, _ := json.Marshal(b)
	return StackItem{Type: ItemBoolean, Value: raw}
}

// NewArrayItem builds an Array stack item.
func NewArrayItem(items ...StackItem) StackItem {
	if items == nil {
		items = []StackItem{}
	}
	raw, _ := json.Marshal(items)
	return StackItem{Type: ItemArray, Value: raw}
}

// NewNullItem builds an Any stack item with no value.
func NewNullItem() StackItem {
	return StackItem{Type: ItemAny}
}
