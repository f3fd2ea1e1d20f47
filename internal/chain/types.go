package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// JSON-RPC Envelope
// =============================================================================

// RPCRequest is a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("RPC error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// isNotFoundError reports whether err is the node's "unknown transaction /
// block" error, which callers polling for finality treat as transient.
func isNotFoundError(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	if rpcErr.Code == -100 {
		return true
	}
	msg := strings.ToLower(rpcErr.Message + " " + rpcErr.Data)
	return strings.Contains(msg, "unknown") || strings.Contains(msg, "not found")
}

// =============================================================================
// Ledger Types
// =============================================================================

// Block is the verbose getblock result, reduced to what the subscriber uses.
type Block struct {
	Hash  string        `json:"hash"`
	Index uint64        `json:"index"`
	Time  uint64        `json:"time"`
	Tx    []Transaction `json:"tx"`
}

// Transaction is the verbose transaction representation.
type Transaction struct {
	Hash            string `json:"hash"`
	Sender          string `json:"sender"`
	SysFee          string `json:"sysfee"`
	NetFee          string `json:"netfee"`
	ValidUntilBlock uint32 `json:"validuntilblock"`
	Script          string `json:"script"`
	BlockHash       string `json:"blockhash,omitempty"`
	Confirmations   uint64 `json:"confirmations,omitempty"`
	BlockTime       uint64 `json:"blocktime,omitempty"`
}

// InvokeResult is the result of invokefunction / invokescript.
type InvokeResult struct {
	Script      string      `json:"script"`
	State       string      `json:"state"`
	GasConsumed string      `json:"gasconsumed"`
	Exception   string      `json:"exception,omitempty"`
	Stack       []StackItem `json:"stack"`
	Tx          string      `json:"tx,omitempty"`
}

// Halted reports whether the VM finished in the HALT state.
func (r *InvokeResult) Halted() bool {
	return r != nil && r.State == VMStateHalt
}

// VM states.
const (
	VMStateHalt  = "HALT"
	VMStateFault = "FAULT"
)

// StackItem is a Neo VM stack item.
type StackItem struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// ApplicationLog is the getapplicationlog result.
type ApplicationLog struct {
	TxID       string      `json:"txid"`
	Executions []Execution `json:"executions"`
}

// Execution is a single execution in the application log.
type Execution struct {
	Trigger       string         `json:"trigger"`
	VMState       string         `json:"vmstate"`
	Exception     string         `json:"exception,omitempty"`
	GasConsumed   string         `json:"gasconsumed"`
	Stack         []StackItem    `json:"stack"`
	Notifications []Notification `json:"notifications"`
}

// Notification is a contract notification.
type Notification struct {
	Contract  string    `json:"contract"`
	EventName string    `json:"eventname"`
	State     StackItem `json:"state"`
}

// Signer is the JSON signer form accepted by invokefunction.
type Signer struct {
	Account string `json:"account"`
	Scopes  string `json:"scopes"`
}

// TxResult is the outcome of a broadcast transaction.
type TxResult struct {
	TxHash  string
	VMState string
	AppLog  *ApplicationLog
}
