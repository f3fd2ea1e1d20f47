package httputil

import (
	"net/http"
	"strings"

	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
)

// Sync states reported next to an orchestration result.
const (
	SyncConfirmed = "confirmed"
	SyncPending   = "pending"
)

// OutcomeResponse wraps the result of a ledger-backed operation.
type OutcomeResponse struct {
	Result  interface{}            `json:"result"`
	Sync    string                 `json:"sync"`
	Code    string                 `json:"code,omitempty"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// WriteOutcome writes the result of an operation that committed to the
// ledger. A ProjectionDrift error still carries the result: the body is
// written with 202 and "sync":"pending". Any other error goes through
// WriteServiceError.
func WriteOutcome(w http.ResponseWriter, r *http.Request, status int, result interface{}, err error) {
	if err == nil {
		WriteJSON(w, status, OutcomeResponse{Result: result, Sync: SyncConfirmed})
		return
	}
	if !apperrors.IsProjectionDrift(err) || result == nil {
		WriteServiceError(w, r, err)
		return
	}

	se := apperrors.GetServiceError(err)
	resp := OutcomeResponse{
		Result:  result,
		Sync:    SyncPending,
		Code:    string(se.Code),
		Message: se.Message,
		Details: se.Details,
	}
	if r != nil {
		resp.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, http.StatusAccepted, resp)
}

// RequireRole checks the caller's role from the request context against
// allowed, writing a 403 when it does not match.
func RequireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role := strings.ToLower(strings.TrimSpace(logging.GetRole(r.Context())))
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	WriteServiceError(w, r, apperrors.Forbidden("role "+quoteRole(role)+" may not perform this operation"))
	return false
}

func quoteRole(role string) string {
	if role == "" {
		return `""`
	}
	return role
}
