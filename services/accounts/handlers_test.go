package accounts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/httputil"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/identity"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	gw := ledger.NewGateway(ledger.NewSimulated(), ledger.GatewayConfig{PollInterval: time.Millisecond}, nil, nil)
	svc, err := New(Config{
		Ledger:    gw,
		Identity:  identity.NewStaticVerifier("u1", "u2", "admin1"),
		Committer: reconcile.NewCommitter(projection.NewMemoryStore(), nil, nil),
		Logger:    logging.NewDiscard("accounts"),
		Router:    mux.NewRouter(),
	})
	require.NoError(t, err)
	return svc
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

func registerBody(role string) string {
	return `{"role":"` + role + `","tx_address":"` + testAddr + `"}`
}

func TestHandleRegister(t *testing.T) {
	svc := newTestService(t)

	rr := do(t, svc, "POST", "/accounts", registerBody("farmer"), "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, svc, "POST", "/accounts", registerBody("owner"), "u1", "")
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)

	rr = do(t, svc, "POST", "/accounts", `{"account_id":"u2","role":"consumer","tx_address":"`+testAddr+`"}`, "u1", "producer")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, svc, "POST", "/accounts", registerBody("farmer"), "u1", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out struct {
		httputil.OutcomeResponse
		Result Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, httputil.SyncConfirmed, out.Sync)
	assert.Equal(t, RoleProducer, out.Result.Registration.Role)
	require.NotNil(t, out.Result.Queue)

	rr = do(t, svc, "GET", "/accounts/u1", "", "u2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"role":"producer"`)
	assert.Contains(t, rr.Body.String(), `"registered":true`)

	rr = do(t, svc, "GET", "/accounts/u1/roles/farmer", "", "u2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"verified":true`)

	rr = do(t, svc, "GET", "/accounts/u1/registration", "", "u2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"tx_address":"`+testAddr+`"`)

	rr = do(t, svc, "GET", "/accounts/u2/registration", "", "u2", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleModeration(t *testing.T) {
	svc := newTestService(t)
	do(t, svc, "POST", "/accounts", registerBody("verifier"), "u1", "")

	rr := do(t, svc, "GET", "/verification/queue", "", "u2", "consumer")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, svc, "GET", "/verification/queue", "", "admin1", "admin")
	require.Equal(t, http.StatusOK, rr.Code)
	var q struct {
		Queue []QueueEntry `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &q))
	require.Len(t, q.Queue, 1)
	assert.Equal(t, "u1", q.Queue[0].UID)

	rr = do(t, svc, "DELETE", "/verification/queue/u1", "", "admin1", "Admin")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, svc, "DELETE", "/verification/queue/u1", "", "admin1", "admin")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, svc, "POST", "/accounts/u1/blacklist", `{"blacklisted":true}`, "u2", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, svc, "POST", "/accounts/u1/blacklist", `{"blacklisted":true}`, "admin1", "admin")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, svc, "GET", "/accounts/u1/standing", "", "u2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"not_blacklisted":false}`, rr.Body.String())

	rr = do(t, svc, "GET", "/accounts/u1/registered", "", "u2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"registered":true}`, rr.Body.String())
}

func TestHandleLastActive(t *testing.T) {
	svc := newTestService(t)
	do(t, svc, "POST", "/accounts", registerBody("consumer"), "u1", "")

	rr := do(t, svc, "POST", "/accounts/u1/last-active", "", "u2", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, svc, "POST", "/accounts/u1/last-active", "", "u1", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"last_active"`)

	rr = do(t, svc, "POST", "/accounts/u2/last-active", "", "u2", "")
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)
}
