package credits

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/httputil"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
)

func newTestService(t *testing.T) (*Service, *ledger.Gateway) {
	t.Helper()
	gw := ledger.NewGateway(ledger.NewSimulated(), ledger.GatewayConfig{PollInterval: time.Millisecond}, nil, nil)
	svc, err := New(Config{
		Ledger:    gw,
		Committer: reconcile.NewCommitter(projection.NewMemoryStore(), nil, nil),
		Logger:    logging.NewDiscard("credits"),
		Router:    mux.NewRouter(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = gw.SubmitAsset(ctx, "p1", "a1")
	require.NoError(t, err)
	_, err = gw.ApproveAsset(ctx, "v1", "a1", []string{"carbon"}, []*big.Int{big.NewInt(1000)})
	require.NoError(t, err)
	return svc, gw
}

func do(t *testing.T, svc *Service, method, path, body, user, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := req.Context()
	if user != "" {
		ctx = logging.WithUserID(ctx, user)
	}
	if role != "" {
		ctx = logging.WithRole(ctx, role)
	}
	rr := httptest.NewRecorder()
	svc.Router().ServeHTTP(rr, req.WithContext(ctx))
	return rr
}

func decodeOutcome(t *testing.T, rr *httptest.ResponseRecorder) (httputil.OutcomeResponse, Result) {
	t.Helper()
	var raw struct {
		httputil.OutcomeResponse
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	var res Result
	require.NoError(t, json.Unmarshal(raw.Result, &res))
	return raw.OutcomeResponse, res
}

const issueBody = `{"asset_token_id":"a1","producer":"p1","verifier":"v1","creditType":"carbon","amount":"500"}`

func TestHandleIssue(t *testing.T) {
	svc, _ := newTestService(t)

	rr := do(t, svc, "POST", "/credits/issue", issueBody, "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, svc, "POST", "/credits/issue", issueBody, "p1", "consumer")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, svc, "POST", "/credits/issue", `{"asset_token_id":"a1","producer":"p1","verifier":"v1","creditType":"carbon","amount":"1.5"}`, "p1", "producer")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, svc, "POST", "/credits/issue", issueBody, "p1", "producer")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	out, res := decodeOutcome(t, rr)
	assert.Equal(t, httputil.SyncConfirmed, out.Sync)
	assert.Equal(t, "500", res.Record.Amount.Int.String())

	rr = do(t, svc, "GET", "/supply/p1/v1/carbon", "", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sup SupplyView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sup))
	assert.Equal(t, "500", sup.Available.Int.String())
	assert.Contains(t, rr.Body.String(), `"issued":"500"`)
}

func TestHandleBuyAndReads(t *testing.T) {
	svc, _ := newTestService(t)
	rr := do(t, svc, "POST", "/credits/issue", issueBody, "p1", "producer")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, svc, "POST", "/credits/buy", `{"producer":"p1","verifier":"v1","creditType":"carbon","amount":600,"price":1}`, "b1", "consumer")
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)

	rr = do(t, svc, "POST", "/credits/buy", `{"producer":"p1","verifier":"v1","creditType":"carbon","amount":100,"price":3}`, "b1", "consumer")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	_, res := decodeOutcome(t, rr)
	require.NotNil(t, res.Certificate)
	require.NotNil(t, res.Provisional)

	rr = do(t, svc, "GET", "/certificates/"+res.Certificate.ID, "", "b1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var view CertificateView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, "b1", view.Recipient)
	assert.Equal(t, "100", view.Balance.Int.String())

	rr = do(t, svc, "GET", "/certificates/999", "", "b1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, svc, "GET", "/certificates/abc", "", "b1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, svc, "GET", "/accounts/b1/balance?producer=p1&verifier=v1&creditType=carbon", "", "b1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"balance":"100"`)

	rr = do(t, svc, "GET", "/accounts/b1/balance", "", "b1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, svc, "GET", "/accounts/b1/credits?kind=purchased", "", "b1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var h map[string][]CreditRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &h))
	assert.Len(t, h["purchased"], 1)

	rr = do(t, svc, "GET", "/credits/totals", "", "b1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var totals TotalsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &totals))
	assert.Equal(t, "2", totals.Certificates.Int.String())
	assert.Equal(t, "100", totals.Sold.Int.String())
}

func TestHandleTransferAndDonate(t *testing.T) {
	svc, _ := newTestService(t)
	do(t, svc, "POST", "/credits/issue", issueBody, "p1", "producer")
	do(t, svc, "POST", "/credits/buy", `{"producer":"p1","verifier":"v1","creditType":"carbon","amount":"100","price":"1"}`, "b1", "consumer")

	rr := do(t, svc, "POST", "/credits/transfer", `{"producer":"p1","verifier":"v1","creditType":"carbon","amount":"10"}`, "b1", "consumer")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, svc, "POST", "/credits/transfer", `{"recipient_id":"b2","producer":"p1","verifier":"v1","creditType":"carbon","amount":"10","price":"0"}`, "b1", "consumer")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, svc, "POST", "/credits/donate", `{"producer":"p1","verifier":"v1","creditType":"carbon","amount":"25"}`, "d1", "consumer")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, svc, "GET", "/supply/p1/v1/carbon", "", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sup SupplyView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sup))
	assert.Equal(t, "375", sup.Available.Int.String())
	assert.Equal(t, "25", sup.Donated.Int.String())
	assert.Equal(t, "100", sup.Sold.Int.String())
}

func TestHandleRegistryReads(t *testing.T) {
	svc, _ := newTestService(t)
	do(t, svc, "POST", "/credits/issue", issueBody, "p1", "producer")

	rr := do(t, svc, "GET", "/producers", "", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"producers":["p1"]}`, rr.Body.String())

	rr = do(t, svc, "GET", "/producers/p1/verifiers/v1", "", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"registered":true`)

	rr = do(t, svc, "GET", "/producers/p2", "", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"registered":false`)

	rr = do(t, svc, "GET", "/tokens/a1/owner", "", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"owner":"p1"`)

	rr = do(t, svc, "GET", "/tokens/a1/credit-types", "", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"credit_types":["carbon"]`)

	rr = do(t, svc, "GET", "/tokens/a1/supply-limits/carbon", "", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"limit":"1000"`)

	rr = do(t, svc, "GET", "/tokens/zz/owner", "", "u1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
