package chain

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// =============================================================================
// Contract Parameters
// =============================================================================

// ContractParam is a typed invokefunction argument.
type ContractParam struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value,omitempty"`
}

// Parameter types.
const (
	ParamString    = "String"
	ParamInteger   = "Integer"
	ParamBoolean   = "Boolean"
	ParamHash160   = "Hash160"
	ParamByteArray = "ByteArray"
	ParamArray     = "Array"
	ParamAny       = "Any"
)

func NewStringParam(s string) ContractParam {
	return ContractParam{Type: ParamString, Value: s}
}

// NewIntegerParam encodes n as a decimal string so precision is never lost.
func NewIntegerParam(n *big.Int) ContractParam {
	if n == nil {
		n = new(big.Int)
	}
	return ContractParam{Type: ParamInteger, Value: n.String()}
}

func NewBoolParam(b bool) ContractParam {
	return ContractParam{Type: ParamBoolean, Value: b}
}

// NewHash160Param takes a 0x-prefixed big-endian script hash.
func NewHash160Param(hash string) ContractParam {
	return ContractParam{Type: ParamHash160, Value: hash}
}

func NewByteArrayParam(b []byte) ContractParam {
	return ContractParam{Type: ParamByteArray, Value: base64.StdEncoding.EncodeToString(b)}
}

func NewArrayParam(items []ContractParam) ContractParam {
	if items == nil {
		items = []ContractParam{}
	}
	return ContractParam{Type: ParamArray, Value: items}
}

// NewStringArrayParam builds an Array of String params.
func NewStringArrayParam(values []string) ContractParam {
	items := make([]ContractParam, len(values))
	for i, v := range values {
		items[i] = NewStringParam(v)
	}
	return NewArrayParam(items)
}

// NewIntegerArrayParam builds an Array of Integer params.
func NewIntegerArrayParam(values []*big.Int) ContractParam {
	items := make([]ContractParam, len(values))
	for i, v := range values {
		items[i] = NewIntegerParam(v)
	}
	return NewArrayParam(items)
}

func NewAnyParam() ContractParam {
	return ContractParam{Type: ParamAny}
}

// =============================================================================
// Accessors
// =============================================================================

// AsString returns the value of a String or Hash160 param.
func (p ContractParam) AsString() (string, error) {
	switch p.Type {
	case ParamString, ParamHash160:
		s, ok := p.Value.(string)
		if !ok {
			return "", fmt.Errorf("%s param holds %T", p.Type, p.Value)
		}
		return s, nil
	default:
		return "", fmt.Errorf("expected String param, got %s", p.Type)
	}
}

// AsInteger returns the value of an Integer param.
func (p ContractParam) AsInteger() (*big.Int, error) {
	if p.Type != ParamInteger {
		return nil, fmt.Errorf("expected Integer param, got %s", p.Type)
	}
	s, ok := p.Value.(string)
	if !ok {
		return nil, fmt.Errorf("Integer param holds %T", p.Value)
	}
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

// AsBool returns the value of a Boolean param.
func (p ContractParam) AsBool() (bool, error) {
	if p.Type != ParamBoolean {
		return false, fmt.Errorf("expected Boolean param, got %s", p.Type)
	}
	b, ok := p.Value.(bool)
	if !ok {
		return false, fmt.Errorf("Boolean param holds %T", p.Value)
	}
	return b, nil
}

// AsArray returns the items of an Array param.
func (p ContractParam) AsArray() ([]ContractParam, error) {
	if p.Type != ParamArray {
		return nil, fmt.Errorf("expected Array param, got %s", p.Type)
	}
	items, ok := p.Value.([]ContractParam)
	if !ok {
		return nil, fmt.Errorf("Array param holds %T", p.Value)
	}
	return items, nil
}

// AsStrings returns the String items of an Array param.
func (p ContractParam) AsStrings() ([]string, error) {
	items, err := p.AsArray()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, item := range items {
		if out[i], err = item.AsString(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return out, nil
}

// AsIntegers returns the Integer items of an Array param.
func (p ContractParam) AsIntegers() ([]*big.Int, error) {
	items, err := p.AsArray()
	if err != nil {
		return nil, err
	}
	out := make([]*big.Int, len(items))
	for i, item := range items {
		if out[i], err = item.AsInteger(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return out, nil
}
