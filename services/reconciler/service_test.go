package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
)

type fixture struct {
	svc   *Service
	store *projection.MemoryStore
	queue *reconcile.QueueReporter
	comm  *reconcile.Committer
}

func newFixture(t *testing.T, repairSpec, auditSpec string) *fixture {
	t.Helper()
	store := projection.NewMemoryStore()
	queue := reconcile.NewQueueReporter(projection.NewMemoryStore())
	gw := ledger.NewGateway(ledger.NewSimulated(), ledger.GatewayConfig{PollInterval: time.Millisecond}, nil, nil)

	svc, err := New(Config{
		Queue:          queue,
		Target:         store,
		Ledger:         gw,
		RepairSchedule: repairSpec,
		AuditSchedule:  auditSpec,
		Logger:         logging.NewDiscard("reconciler"),
		Router:         mux.NewRouter(),
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, queue: queue, comm: reconcile.NewCommitter(store, queue, nil)}
}

func (f *fixture) do(t *testing.T, method, path, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	ctx := logging.WithUserID(req.Context(), "admin1")
	if role != "" {
		ctx = logging.WithRole(ctx, role)
	}
	rr := httptest.NewRecorder()
	f.svc.Router().ServeHTTP(rr, req.WithContext(ctx))
	return rr
}

func TestNewRequiresLedger(t *testing.T) {
	_, err := New(Config{Queue: reconcile.NewQueueReporter(projection.NewMemoryStore()), Target: projection.NewMemoryStore()})
	assert.Error(t, err)
}

func TestNewRejectsBadSchedule(t *testing.T) {
	gw := ledger.NewGateway(ledger.NewSimulated(), ledger.GatewayConfig{}, nil, nil)
	_, err := New(Config{
		Queue:          reconcile.NewQueueReporter(projection.NewMemoryStore()),
		Target:         projection.NewMemoryStore(),
		Ledger:         gw,
		RepairSchedule: "not a schedule",
	})
	assert.Error(t, err)
}

func TestSchedulesJobs(t *testing.T) {
	f := newFixture(t, "@every 1m", "@every 15m")
	assert.Equal(t, 2, f.svc.Jobs())

	f = newFixture(t, "", "")
	assert.Zero(t, f.svc.Jobs())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.svc.Start(ctx))
	require.NoError(t, f.svc.Stop())
}

func TestRepairReplaysDrift(t *testing.T) {
	f := newFixture(t, "", "")
	ctx := context.Background()

	f.store.FailWrites(projection.Certificates(), errors.New("disk full"), 1)
	plan := reconcile.NewPlan("certificate", "7", &ledger.Receipt{TxHash: "0xabc", Method: "buyCredits"})
	plan.Set(projection.Certificate("7"), &projection.CertificateRecord{ID: "7", Recipient: "b1"})
	require.Error(t, f.comm.Commit(ctx, plan))

	rr := f.do(t, "GET", "/reconciliation/records?status=pending", "admin")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Records []reconcile.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Records, 1)
	id := list.Records[0].ID
	assert.Equal(t, reconcile.KindDrift, list.Records[0].Kind)

	rr = f.do(t, "POST", "/reconciliation/repair", "admin")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res reconcile.RepairResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Examined)
	assert.Equal(t, 1, res.Repaired)

	ok, err := projection.Exists(ctx, f.store, projection.Certificate("7"))
	require.NoError(t, err)
	assert.True(t, ok)

	rr = f.do(t, "GET", "/reconciliation/records/"+id, "admin")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"repaired"`)

	stats := f.svc.stats()
	assert.Equal(t, 1, stats["repair_passes"])
}

func TestAuditReportsInconsistency(t *testing.T) {
	f := newFixture(t, "", "")
	ctx := context.Background()

	found, err := f.svc.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, found)

	require.NoError(t, f.store.Set(ctx, projection.Certificate("1"), &projection.CertificateRecord{ID: "1"}))
	rr := f.do(t, "POST", "/reconciliation/audit", "admin")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"kind":"inconsistent"`)

	pending, err := f.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, reconcile.KindInconsistent, pending[0].Kind)
}

func TestRoutesRequireAdmin(t *testing.T) {
	f := newFixture(t, "", "")

	for _, tc := range []struct{ method, path string }{
		{"GET", "/reconciliation/records"},
		{"GET", "/reconciliation/records/x"},
		{"POST", "/reconciliation/repair"},
		{"POST", "/reconciliation/audit"},
	} {
		rr := f.do(t, tc.method, tc.path, "consumer")
		assert.Equal(t, http.StatusForbidden, rr.Code, tc.path)
	}

	rr := f.do(t, "GET", "/reconciliation/records?status=bogus", "admin")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, "GET", "/reconciliation/records/missing", "admin")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
