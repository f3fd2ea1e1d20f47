package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
)

type assetResult struct {
	ID string `json:"id"`
}

func TestWriteOutcome_Confirmed(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteOutcome(rr, httptest.NewRequest("POST", "/assets", nil), http.StatusCreated, assetResult{ID: "a1"}, nil)

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp struct {
		Result assetResult `json:"result"`
		Sync   string      `json:"sync"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "a1", resp.Result.ID)
	assert.Equal(t, SyncConfirmed, resp.Sync)
}

func TestWriteOutcome_DriftKeepsResult(t *testing.T) {
	req := httptest.NewRequest("POST", "/assets", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "trace-1"))
	rr := httptest.NewRecorder()

	drift := apperrors.ProjectionDrift("asset", "0xabc", errors.New("write failed"))
	WriteOutcome(rr, req, http.StatusCreated, assetResult{ID: "a1"}, drift)

	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp OutcomeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, SyncPending, resp.Sync)
	assert.Equal(t, string(apperrors.CodeProjectionDrift), resp.Code)
	assert.Equal(t, "0xabc", resp.Details["tx_hash"])
	assert.Equal(t, "trace-1", resp.TraceID)
	assert.Equal(t, map[string]interface{}{"id": "a1"}, resp.Result)
}

func TestWriteOutcome_OtherErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteOutcome(rr, httptest.NewRequest("POST", "/assets", nil), http.StatusCreated, nil,
		apperrors.LedgerRejected("submitAsset", errors.New("FAULT")))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), string(apperrors.CodeLedgerRejected))

	// drift without a result has nothing to report as pending
	rr = httptest.NewRecorder()
	WriteOutcome(rr, httptest.NewRequest("POST", "/assets", nil), http.StatusCreated, nil,
		apperrors.ProjectionDrift("asset", "0xabc", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.NotContains(t, rr.Body.String(), `"sync"`)
}

func TestRequireRole(t *testing.T) {
	req := httptest.NewRequest("GET", "/verification/queue", nil)
	req = req.WithContext(logging.WithRole(req.Context(), " Admin "))

	rr := httptest.NewRecorder()
	assert.True(t, RequireRole(rr, req, "verifier", "admin"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	assert.False(t, RequireRole(rr, httptest.NewRequest("GET", "/verification/queue", nil), "admin"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), `role \"\" may not`)
}
