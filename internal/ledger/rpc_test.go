package ledger

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/chain"
)

const (
	testAccountsHash     = "0x1111111111111111111111111111111111111111"
	testVerificationHash = "0x2222222222222222222222222222222222222222"
	testCreditsHash      = "0x3333333333333333333333333333333333333333"
)

type rpcHandler func(params []json.RawMessage) (interface{}, *chain.RPCError)

func newRPCBackend(t *testing.T, handlers map[string]rpcHandler) (*RPCBackend, func() []string) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int               `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		calls = append(calls, req.Method)
		mu.Unlock()

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if h, ok := handlers[req.Method]; !ok {
			resp["error"] = &chain.RPCError{Code: -32601, Message: "Method not found"}
		} else if result, rpcErr := h(req.Params); rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	client, err := chain.NewClient(chain.Config{RPCURL: srv.URL, NetworkID: 894710606, Timeout: 5 * time.Second})
	require.NoError(t, err)
	key, err := keys.NewPrivateKey()
	require.NoError(t, err)
	account, err := chain.AccountFromPrivateKey(hex.EncodeToString(key.Bytes()))
	require.NoError(t, err)

	backend, err := NewRPCBackend(client, chain.NewTxBuilder(client, account, client.NetworkID(), 10), nil, chain.ContractAddresses{
		Accounts:     testAccountsHash,
		Verification: testVerificationHash,
		Credits:      testCreditsHash,
	})
	require.NoError(t, err)
	return backend, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), calls...)
	}
}

func halted(stack ...chain.StackItem) rpcHandler {
	return func([]json.RawMessage) (interface{}, *chain.RPCError) {
		return chain.InvokeResult{
			State:       chain.VMStateHalt,
			Script:      base64.StdEncoding.EncodeToString([]byte{0x11, 0x40}),
			GasConsumed: "1000",
			Stack:       stack,
		}, nil
	}
}

func TestNewRPCBackendValidatesHashes(t *testing.T) {
	_, err := NewRPCBackend(nil, nil, nil, chain.ContractAddresses{Accounts: testAccountsHash})
	assert.Error(t, err)
}

func TestRPCQuery(t *testing.T) {
	backend, _ := newRPCBackend(t, map[string]rpcHandler{
		"invokefunction": func(params []json.RawMessage) (interface{}, *chain.RPCError) {
			var method string
			_ = json.Unmarshal(params[1], &method)
			if method == MethodGetCertificateByID {
				return chain.InvokeResult{State: chain.VMStateFault, Exception: "no such certificate"}, nil
			}
			return chain.InvokeResult{State: chain.VMStateHalt, Stack: []chain.StackItem{chain.NewIntegerItem(big.NewInt(42))}}, nil
		},
	})
	gw := newTestGateway(backend)

	total, err := gw.GetTotalCertificates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", total.String())

	_, err = backend.Query(context.Background(), credits(MethodGetCertificateByID, intArg(big.NewInt(1))))
	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "no such certificate", rej.Reason)
}

func TestRPCSubmit(t *testing.T) {
	backend, calls := newRPCBackend(t, map[string]rpcHandler{
		"invokefunction": halted(chain.NewBooleanItem(true)),
		"getblockcount": func([]json.RawMessage) (interface{}, *chain.RPCError) {
			return 500, nil
		},
		"calculatenetworkfee": func([]json.RawMessage) (interface{}, *chain.RPCError) {
			return map[string]string{"networkfee": "1230000"}, nil
		},
		"sendrawtransaction": func([]json.RawMessage) (interface{}, *chain.RPCError) {
			return map[string]string{"hash": "0xnode"}, nil
		},
	})

	txHash, err := backend.Submit(context.Background(), accounts(MethodUpdateLastActive, strArg("u1")))
	require.NoError(t, err)
	assert.Len(t, txHash, 66)
	assert.Equal(t, []string{"invokefunction", "getblockcount", "calculatenetworkfee", "sendrawtransaction"}, calls())
}

func TestRPCSubmitPreflightFault(t *testing.T) {
	backend, calls := newRPCBackend(t, map[string]rpcHandler{
		"invokefunction": func([]json.RawMessage) (interface{}, *chain.RPCError) {
			return chain.InvokeResult{State: chain.VMStateFault, Exception: "account already registered"}, nil
		},
	})

	txHash, err := backend.Submit(context.Background(), accounts(MethodRegisterAccount, strArg("u1")))
	assert.Empty(t, txHash)
	assert.True(t, IsRejected(err))
	assert.Equal(t, []string{"invokefunction"}, calls())
}

func TestRPCSubmitBroadcastRefused(t *testing.T) {
	backend, _ := newRPCBackend(t, map[string]rpcHandler{
		"invokefunction": halted(),
		"getblockcount": func([]json.RawMessage) (interface{}, *chain.RPCError) {
			return 500, nil
		},
		"calculatenetworkfee": func([]json.RawMessage) (interface{}, *chain.RPCError) {
			return map[string]string{"networkfee": "1"}, nil
		},
		"sendrawtransaction": func([]json.RawMessage) (interface{}, *chain.RPCError) {
			return nil, &chain.RPCError{Code: -500, Message: "insufficient funds"}
		},
	})

	txHash, err := backend.Submit(context.Background(), accounts(MethodUpdateLastActive, strArg("u1")))
	assert.Empty(t, txHash)
	assert.True(t, IsRejected(err))
}

func TestRPCLookup(t *testing.T) {
	issued := CreditsIssued{Producer: "p1", Verifier: "v1", CreditType: "carbon", Amount: big.NewInt(500)}
	backend, _ := newRPCBackend(t, map[string]rpcHandler{
		"getapplicationlog": func(params []json.RawMessage) (interface{}, *chain.RPCError) {
			var txHash string
			_ = json.Unmarshal(params[0], &txHash)
			if txHash != "0xaa" {
				return nil, &chain.RPCError{Code: -100, Message: "Unknown transaction"}
			}
			return chain.ApplicationLog{TxID: "0xaa", Executions: []chain.Execution{{
				Trigger: "Application",
				VMState: chain.VMStateHalt,
				Notifications: []chain.Notification{
					{Contract: "0xd2a4cff31913016155e38e474a2c06d08be276cf", EventName: "Transfer", State: chain.NewArrayItem()},
					{Contract: testCreditsHash, EventName: EventCreditsIssued, State: EncodePayload(issued)},
				},
			}}}, nil
		},
		"getrawtransaction": func([]json.RawMessage) (interface{}, *chain.RPCError) {
			return chain.Transaction{Hash: "0xaa", BlockHash: "0xbb", Confirmations: 3}, nil
		},
		"getblock": func([]json.RawMessage) (interface{}, *chain.RPCError) {
			return chain.Block{Hash: "0xbb", Index: 77}, nil
		},
	})

	_, err := backend.Lookup(context.Background(), "0xcc")
	assert.ErrorIs(t, err, ErrTxUnknown)

	fin, err := backend.Lookup(context.Background(), "0xaa")
	require.NoError(t, err)
	assert.False(t, fin.Faulted())
	assert.Equal(t, uint64(77), fin.BlockIndex)
	require.Len(t, fin.Events, 1)
	assert.Equal(t, ContractCredits, fin.Events[0].Contract)
	assert.Equal(t, issued.Fields(), fin.Events[0].Payload.Fields())
}

func TestRPCBlockEvents(t *testing.T) {
	backend, _ := newRPCBackend(t, map[string]rpcHandler{
		"getblockcount": func([]json.RawMessage) (interface{}, *chain.RPCError) {
			return 10, nil
		},
		"getblock": func([]json.RawMessage) (interface{}, *chain.RPCError) {
			return map[string]interface{}{
				"hash":  "0xbb",
				"index": 9,
				"tx":    []map[string]string{{"hash": "0x01"}, {"hash": "0x02"}},
			}, nil
		},
		"getapplicationlog": func(params []json.RawMessage) (interface{}, *chain.RPCError) {
			var txHash string
			_ = json.Unmarshal(params[0], &txHash)
			if txHash == "0x02" {
				return chain.ApplicationLog{TxID: txHash, Executions: []chain.Execution{{VMState: chain.VMStateFault}}}, nil
			}
			return chain.ApplicationLog{TxID: txHash, Executions: []chain.Execution{{
				VMState: chain.VMStateHalt,
				Notifications: []chain.Notification{{
					Contract:  testAccountsHash,
					EventName: EventAccountRegistered,
					State:     EncodePayload(AccountRegistered{AccountID: "u1", Role: "consumer", TxAddress: "NX"}),
				}},
			}}}, nil
		},
	})

	count, err := backend.BlockCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), count)

	events, err := backend.BlockEvents(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "0x01", events[0].TxHash)
	assert.Equal(t, uint64(9), events[0].Block)
}

func TestRPCStreamRequiresEndpoint(t *testing.T) {
	backend, _ := newRPCBackend(t, map[string]rpcHandler{})
	err := backend.StreamEvents(context.Background(), make(chan Event))
	assert.Error(t, err)
}
