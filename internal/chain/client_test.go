package chain

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer answers JSON-RPC calls from a method -> result table.
func rpcServer(t *testing.T, handlers map[string]func(params []json.RawMessage) (interface{}, *RPCError)) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int               `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls = append(calls, req.Method)

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		h, ok := handlers[req.Method]
		if !ok {
			resp["error"] = &RPCError{Code: -32601, Message: "Method not found"}
		} else if result, rpcErr := h(req.Params); rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{RPCURL: url, NetworkID: 894710606, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestCallReturnsRPCError(t *testing.T) {
	srv, _ := rpcServer(t, map[string]func([]json.RawMessage) (interface{}, *RPCError){
		"getapplicationlog": func([]json.RawMessage) (interface{}, *RPCError) {
			return nil, &RPCError{Code: -100, Message: "Unknown transaction"}
		},
	})
	c := newTestClient(t, srv.URL)

	_, err := c.GetApplicationLog(context.Background(), "0xabc")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestGetBlockCountAndTxHashes(t *testing.T) {
	srv, _ := rpcServer(t, map[string]func([]json.RawMessage) (interface{}, *RPCError){
		"getblockcount": func([]json.RawMessage) (interface{}, *RPCError) { return 42, nil },
		"getblock": func([]json.RawMessage) (interface{}, *RPCError) {
			return map[string]interface{}{
				"index": 41,
				"tx":    []map[string]string{{"hash": "0x01"}, {"hash": "0x02"}},
			}, nil
		},
	})
	c := newTestClient(t, srv.URL)

	count, err := c.GetBlockCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), count)

	hashes, err := c.BlockTxHashes(context.Background(), 41)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x01", "0x02"}, hashes)
}

func TestInvokeFunctionSendsTypedParams(t *testing.T) {
	srv, _ := rpcServer(t, map[string]func([]json.RawMessage) (interface{}, *RPCError){
		"invokefunction": func(params []json.RawMessage) (interface{}, *RPCError) {
			var method string
			_ = json.Unmarshal(params[1], &method)
			var args []ContractParam
			_ = json.Unmarshal(params[2], &args)
			if method != "getSupply" || len(args) != 3 || args[0].Type != ParamString {
				return nil, &RPCError{Code: -1, Message: "bad params"}
			}
			if len(params) != 4 {
				return nil, &RPCError{Code: -1, Message: "signers missing"}
			}
			return InvokeResult{
				State:       VMStateHalt,
				Script:      base64.StdEncoding.EncodeToString([]byte{0x01}),
				GasConsumed: "1000",
				Stack: []StackItem{NewArrayItem(
					NewIntegerItem(big.NewInt(500)),
					NewIntegerItem(big.NewInt(400)),
					NewIntegerItem(big.NewInt(100)),
				)},
			}, nil
		},
	})
	c := newTestClient(t, srv.URL)

	acc, err := keys.NewPrivateKey()
	require.NoError(t, err)
	res, err := c.InvokeFunctionWithSigners(context.Background(), "0x01", "getSupply",
		[]ContractParam{NewStringParam("p"), NewStringParam("v"), NewStringParam("carbon")},
		acc.GetScriptHash())
	require.NoError(t, err)
	require.True(t, res.Halted())

	values, err := ParseIntegers(res.Stack[0])
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, "500", values[0].String())
}

func TestBuildAndSignTx(t *testing.T) {
	srv, calls := rpcServer(t, map[string]func([]json.RawMessage) (interface{}, *RPCError){
		"getblockcount": func([]json.RawMessage) (interface{}, *RPCError) { return 1000, nil },
		"calculatenetworkfee": func([]json.RawMessage) (interface{}, *RPCError) {
			return map[string]string{"networkfee": "123456"}, nil
		},
		"sendrawtransaction": func([]json.RawMessage) (interface{}, *RPCError) {
			return map[string]string{"hash": "0xignored"}, nil
		},
	})
	c := newTestClient(t, srv.URL)

	key, err := keys.NewPrivateKey()
	require.NoError(t, err)
	account, err := AccountFromPrivateKey("0x" + hex.EncodeToString(key.Bytes()))
	require.NoError(t, err)

	builder := NewTxBuilder(c, account, c.NetworkID(), 50)
	tx, err := builder.BuildAndSignTx(context.Background(), &InvokeResult{
		State:       VMStateHalt,
		Script:      base64.StdEncoding.EncodeToString([]byte{0x11, 0x40}),
		GasConsumed: "997775",
	}, transaction.CalledByEntry)
	require.NoError(t, err)

	assert.Equal(t, int64(997775), tx.SystemFee)
	assert.Equal(t, int64(123456), tx.NetworkFee)
	assert.Equal(t, uint32(1050), tx.ValidUntilBlock)
	require.Len(t, tx.Scripts, 1)
	assert.NotEmpty(t, tx.Scripts[0].InvocationScript)
	assert.Equal(t, builder.Signer(), tx.Signers[0].Account)

	hash, err := builder.BroadcastTx(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, TxHashString(tx.Hash()), TxHashString(hash))
	assert.Equal(t, []string{"getblockcount", "calculatenetworkfee", "sendrawtransaction"}, *calls)
}

func TestBuildAndSignTxRejectsFault(t *testing.T) {
	key, err := keys.NewPrivateKey()
	require.NoError(t, err)
	account, err := AccountFromPrivateKey(hex.EncodeToString(key.Bytes()))
	require.NoError(t, err)

	builder := NewTxBuilder(nil, account, 0, 0)
	_, err = builder.BuildAndSignTx(context.Background(), &InvokeResult{State: VMStateFault}, transaction.CalledByEntry)
	assert.Error(t, err)
}

func TestWaitForApplicationLogRetriesUnknown(t *testing.T) {
	attempts := 0
	srv, _ := rpcServer(t, map[string]func([]json.RawMessage) (interface{}, *RPCError){
		"getapplicationlog": func([]json.RawMessage) (interface{}, *RPCError) {
			attempts++
			if attempts < 3 {
				return nil, &RPCError{Code: -100, Message: "Unknown transaction"}
			}
			return ApplicationLog{TxID: "0xaa", Executions: []Execution{{VMState: VMStateHalt}}}, nil
		},
	})
	c := newTestClient(t, srv.URL)

	log, err := c.WaitForApplicationLog(context.Background(), "0xaa", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, VMStateHalt, log.Executions[0].VMState)
	assert.Equal(t, 3, attempts)
}

func TestWaitForApplicationLogHonoursDeadline(t *testing.T) {
	srv, _ := rpcServer(t, map[string]func([]json.RawMessage) (interface{}, *RPCError){
		"getapplicationlog": func([]json.RawMessage) (interface{}, *RPCError) {
			return nil, &RPCError{Code: -100, Message: "Unknown transaction"}
		},
	})
	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.WaitForApplicationLog(ctx, "0xaa", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWSClientStreamsNotifications(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var sub RPCRequest
		require.NoError(t, conn.ReadJSON(&sub))
		_ = conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": sub.ID, "result": "sub-1"})
		_ = conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "notification_from_execution",
			"params": []interface{}{ExecutionNotification{
				Container: "0xtx",
				Contract:  "0xcredits",
				EventName: "CreditsIssued",
				State:     NewArrayItem(NewStringItem("p")),
			}},
		})
		// hold the connection until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	ws := NewWSClient(srv.URL)
	assert.True(t, strings.HasPrefix(ws.url, "ws://"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ws.Connect(ctx))
	require.NoError(t, ws.SubscribeNotifications("0xcredits"))

	out := make(chan ExecutionNotification, 1)
	done := make(chan error, 1)
	go func() { done <- ws.Stream(ctx, out) }()

	select {
	case n := <-out:
		assert.Equal(t, "CreditsIssued", n.EventName)
		assert.Equal(t, "0xtx", n.Container)
	case <-ctx.Done():
		t.Fatal("no notification received")
	}
	cancel()
	<-done
}
