package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// DefaultTxWaitTimeout is the default timeout for waiting for transaction execution.
const DefaultTxWaitTimeout = 2 * time.Minute

// DefaultPollInterval is the default interval for polling transaction status.
const DefaultPollInterval = 2 * time.Second

// =============================================================================
// Contract Invocation Methods
// =============================================================================

// InvokeFunction invokes a contract function (read-only).
func (c *Client) InvokeFunction(ctx context.Context, scriptHash string, method string, params []ContractParam) (*InvokeResult, error) {
	return c.invoke(ctx, []interface{}{scriptHash, method, nonNilParams(params)})
}

// InvokeFunctionWithSigners test-invokes a contract function as signer so the
// result carries the script and gas needed to build a real transaction.
func (c *Client) InvokeFunctionWithSigners(ctx context.Context, scriptHash string, method string, params []ContractParam, signer util.Uint160) (*InvokeResult, error) {
	signers := []Signer{{
		Account: "0x" + signer.StringLE(),
		Scopes:  "CalledByEntry",
	}}
	return c.invoke(ctx, []interface{}{scriptHash, method, nonNilParams(params), signers})
}

func (c *Client) invoke(ctx context.Context, args []interface{}) (*InvokeResult, error) {
	result, err := c.Call(ctx, "invokefunction", args)
	if err != nil {
		return nil, err
	}

	var invokeResult InvokeResult
	if err := json.Unmarshal(result, &invokeResult); err != nil {
		return nil, fmt.Errorf("unmarshal invoke result: %w", err)
	}
	return &invokeResult, nil
}

func nonNilParams(params []ContractParam) []ContractParam {
	if params == nil {
		return []ContractParam{}
	}
	return params
}

// CalculateNetworkFee asks the node for the network fee of a base64 encoded
// transaction carrying verification scripts.
func (c *Client) CalculateNetworkFee(ctx context.Context, txBase64 string) (int64, error) {
	result, err := c.Call(ctx, "calculatenetworkfee", []interface{}{txBase64})
	if err != nil {
		return 0, err
	}

	var response struct {
		NetworkFee json.RawMessage `json:"networkfee"`
	}
	if err := json.Unmarshal(result, &response); err != nil {
		return 0, fmt.Errorf("unmarshal network fee: %w", err)
	}
	return parseGas(response.NetworkFee)
}

// SendRawTransaction sends a signed base64 transaction and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, txBase64 string) (string, error) {
	result, err := c.Call(ctx, "sendrawtransaction", []interface{}{txBase64})
	if err != nil {
		return "", err
	}

	var response struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(result, &response); err != nil {
		return "", err
	}
	return response.Hash, nil
}

// WaitForApplicationLog polls for a transaction application log until it is available or context is done.
// A missing transaction is treated as transient and retried until the context deadline/timeout expires.
func (c *Client) WaitForApplicationLog(ctx context.Context, txHash string, pollInterval time.Duration) (*ApplicationLog, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			log, err := c.GetApplicationLog(ctx, txHash)
			if err != nil {
				if isNotFoundError(err) {
					continue
				}
				return nil, err
			}
			return log, nil
		}
	}
}

// parseGas accepts the fee as a JSON string or number in GAS fractions.
func parseGas(raw json.RawMessage) (int64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, fmt.Errorf("invalid gas value %s", string(raw))
		}
		return n, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid gas value %q: %w", s, err)
	}
	return n, nil
}
