// Package errors defines the service error taxonomy shared by the ledger
// gateway, the orchestrators and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

const (
	// Orchestration taxonomy.
	CodePreconditionFailed     ErrorCode = "PRECONDITION_FAILED"
	CodeLedgerRejected         ErrorCode = "LEDGER_REJECTED"
	CodeLedgerTimeout          ErrorCode = "LEDGER_TIMEOUT"
	CodeProjectionDrift        ErrorCode = "PROJECTION_DRIFT"
	CodeProjectionInconsistent ErrorCode = "PROJECTION_INCONSISTENT"

	// Plumbing.
	CodeBadRequest        ErrorCode = "BAD_REQUEST"
	CodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUpstream          ErrorCode = "UPSTREAM_ERROR"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// ServiceError is the error type returned across package boundaries.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause so errors.Is(err, context.Canceled) and friends keep working.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches another *ServiceError by code, so the sentinels below can be used
// with errors.Is regardless of message or cause.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns the error with an extra detail attached.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrPreconditionFailed     = &ServiceError{Code: CodePreconditionFailed}
	ErrLedgerRejected         = &ServiceError{Code: CodeLedgerRejected}
	ErrLedgerTimeout          = &ServiceError{Code: CodeLedgerTimeout}
	ErrProjectionDrift        = &ServiceError{Code: CodeProjectionDrift}
	ErrProjectionInconsistent = &ServiceError{Code: CodeProjectionInconsistent}
	ErrNotFound               = &ServiceError{Code: CodeNotFound}
)

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Err:        err,
	}
}

// =============================================================================
// Orchestration constructors
// =============================================================================

// PreconditionFailed reports an invariant that blocked the operation before
// any ledger call was made.
func PreconditionFailed(message string) *ServiceError {
	return newError(CodePreconditionFailed, http.StatusPreconditionFailed, message, nil)
}

// PreconditionFailedCause is PreconditionFailed with a wrapped cause.
func PreconditionFailedCause(message string, err error) *ServiceError {
	return newError(CodePreconditionFailed, http.StatusPreconditionFailed, message, err)
}

// LedgerRejected reports a ledger call that was submitted and reverted.
func LedgerRejected(method string, err error) *ServiceError {
	return newError(CodeLedgerRejected, http.StatusUnprocessableEntity,
		fmt.Sprintf("ledger rejected %s", method), err).
		WithDetails("method", method)
}

// LedgerTimeout reports a transaction whose finality was not observed in time.
// The transaction may still land; txHash identifies it for a later re-check.
func LedgerTimeout(method, txHash string, err error) *ServiceError {
	return newError(CodeLedgerTimeout, http.StatusGatewayTimeout,
		fmt.Sprintf("finality not observed for %s", method), err).
		WithDetails("method", method).
		WithDetails("tx_hash", txHash)
}

// ProjectionDrift reports a projection write that failed after the ledger
// transaction succeeded. The ledger state is authoritative.
func ProjectionDrift(entityType, txHash string, err error) *ServiceError {
	return newError(CodeProjectionDrift, http.StatusAccepted,
		fmt.Sprintf("%s committed on ledger, projection pending sync", entityType), err).
		WithDetails("entity_type", entityType).
		WithDetails("tx_hash", txHash)
}

// ProjectionInconsistent reports a projection value that disagrees with the
// ledger for the same entity.
func ProjectionInconsistent(entityType, entityID, ledgerValue, projectionValue string) *ServiceError {
	return newError(CodeProjectionInconsistent, http.StatusConflict,
		fmt.Sprintf("%s %s projection disagrees with ledger", entityType, entityID), nil).
		WithDetails("entity_type", entityType).
		WithDetails("entity_id", entityID).
		WithDetails("ledger", ledgerValue).
		WithDetails("projection", projectionValue)
}

// =============================================================================
// Plumbing constructors
// =============================================================================

func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, nil)
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Unauthorized"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "Invalid or expired token", err)
}

func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

func NotFound(resource, id string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", resource), nil).
		WithDetails("id", id)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimitExceeded, http.StatusTooManyRequests, "Rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Upstream reports a failure of an external collaborator (identity, signer).
func Upstream(service string, err error) *ServiceError {
	return newError(CodeUpstream, http.StatusBadGateway, fmt.Sprintf("%s unavailable", service), err)
}

func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// =============================================================================
// Inspection
// =============================================================================

// GetServiceError returns the first *ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// CodeOf returns the code of err, or CodeInternal for non-service errors.
func CodeOf(err error) ErrorCode {
	if se := GetServiceError(err); se != nil {
		return se.Code
	}
	return CodeInternal
}

func IsPreconditionFailed(err error) bool { return errors.Is(err, ErrPreconditionFailed) }

func IsLedgerRejected(err error) bool { return errors.Is(err, ErrLedgerRejected) }

func IsLedgerTimeout(err error) bool { return errors.Is(err, ErrLedgerTimeout) }

func IsProjectionDrift(err error) bool { return errors.Is(err, ErrProjectionDrift) }

func IsProjectionInconsistent(err error) bool { return errors.Is(err, ErrProjectionInconsistent) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
