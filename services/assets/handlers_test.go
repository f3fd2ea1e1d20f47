package assets

import (
	"context"
	"encoding/json"
	"errors"
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

func newTestService(t *testing.T) (*Service, *projection.MemoryStore) {
	t.Helper()
	gw := ledger.NewGateway(ledger.NewSimulated(), ledger.GatewayConfig{PollInterval: time.Millisecond}, nil, nil)
	store := projection.NewMemoryStore()
	svc, err := New(Config{
		Ledger:    gw,
		Committer: reconcile.NewCommitter(store, nil, nil),
		Logger:    logging.NewDiscard("assets"),
		Router:    mux.NewRouter(),
	})
	require.NoError(t, err)
	return svc, store
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

func TestHandleSubmit_RequiresUserID(t *testing.T) {
	svc, _ := newTestService(t)
	rr := do(t, svc, "POST", "/assets", `{"asset_id":"a1"}`, "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleSubmit_ValidatesBody(t *testing.T) {
	svc, _ := newTestService(t)
	rr := do(t, svc, "POST", "/assets", `{}`, "u1", "producer")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, svc, "POST", "/assets", `{not json`, "u1", "producer")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleSubmitAndGet(t *testing.T) {
	svc, _ := newTestService(t)

	rr := do(t, svc, "POST", "/assets", `{"asset_id":"a1","name":"creek"}`, "u1", "producer")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	out, res := decodeOutcome(t, rr)
	assert.Equal(t, httputil.SyncConfirmed, out.Sync)
	assert.Equal(t, StateSubmitted, res.Asset.State)

	rr = do(t, svc, "GET", "/assets/a1", "", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var asset Asset
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &asset))
	assert.Equal(t, "creek", asset.Metadata.Name)

	rr = do(t, svc, "GET", "/assets/missing", "", "u1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, svc, "POST", "/assets", `{"asset_id":"a1"}`, "u1", "producer")
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)
}

func TestHandleSubmit_DriftIsAccepted(t *testing.T) {
	svc, store := newTestService(t)
	store.FailWrites(projection.Asset("a1"), errors.New("offline"), -1)

	rr := do(t, svc, "POST", "/assets", `{"asset_id":"a1"}`, "u1", "producer")
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	out, res := decodeOutcome(t, rr)
	assert.Equal(t, httputil.SyncPending, out.Sync)
	assert.Equal(t, "PROJECTION_DRIFT", out.Code)
	assert.NotEmpty(t, res.Receipt.TxHash)
}

func TestHandleResolve_RoleAndStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Lifecycle().Submit(ctx, "u1", "a1", nil)
	require.NoError(t, err)
	d, err := svc.Lifecycle().Dispute(ctx, "u1", "a1", "damaged sensor")
	require.NoError(t, err)
	path := "/disputes/" + d.Dispute.ID + "/resolve"

	rr := do(t, svc, "POST", path, `{"solution":"x","status":"resolved"}`, "u1", "producer")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, svc, "POST", path, `{"solution":"x","status":"whatever"}`, "v1", "verifier")
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)

	rr = do(t, svc, "POST", path, `{"solution":"recalibrated","status":"Resolved"}`, "v1", "verifier")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	_, res := decodeOutcome(t, rr)
	assert.Equal(t, ResolutionResolved, res.Dispute.Status)

	rr = do(t, svc, "POST", path, `{"solution":"recalibrated","status":"resolved"}`, "v1", "verifier")
	require.Equal(t, http.StatusOK, rr.Code)
	_, res = decodeOutcome(t, rr)
	assert.True(t, res.Replayed)

	rr = do(t, svc, "GET", "/disputes/"+d.Dispute.ID, "", "u1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleApprove(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Lifecycle().Submit(context.Background(), "u1", "a1", nil)
	require.NoError(t, err)

	rr := do(t, svc, "POST", "/assets/a1/approve", `{"credit_types":["carbon"],"supply_limits":["1000"]}`, "v1", "consumer")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, svc, "POST", "/assets/a1/approve", `{"credit_types":["carbon"],"supply_limits":["1.5"]}`, "v1", "verifier")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, svc, "POST", "/assets/a1/approve", `{"credit_types":["carbon","nitrogen"],"supply_limits":[1000]}`, "v1", "verifier")
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)

	rr = do(t, svc, "POST", "/assets/a1/approve", `{"credit_types":["carbon"],"supply_limits":[1000]}`, "v1", "verifier")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	_, res := decodeOutcome(t, rr)
	assert.Equal(t, StateApproved, res.Asset.State)

	rr = do(t, svc, "GET", "/accounts/v1/assets", "", "v1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var h History
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &h))
	assert.Len(t, h.Approvals, 1)
}
