// Package identity answers whether an account's identity has been verified.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/httputil"
)

// Verifier is the identity collaborator.
type Verifier interface {
	IsEmailVerified(ctx context.Context, accountID string) (bool, error)
}

// =============================================================================
// HTTP Verifier
// =============================================================================

// HTTPVerifier asks the identity provider over HTTP:
//
//	GET {base}/users/{accountID}/verification -> {"email_verified": true}
//
// An unknown user (404) is reported as not verified.
type HTTPVerifier struct {
	client *httputil.ServiceClient
}

// HTTPConfig configures an HTTPVerifier.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewHTTPVerifier creates an HTTPVerifier.
func NewHTTPVerifier(cfg HTTPConfig) (*HTTPVerifier, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("identity base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("identity base url: %w", err)
	}
	return &HTTPVerifier{
		client: httputil.NewServiceClient(httputil.ServiceClientConfig{
			BaseURL:   cfg.BaseURL,
			ServiceID: "npcd",
			Token:     cfg.Token,
			Timeout:   cfg.Timeout,
		}),
	}, nil
}

type verificationResponse struct {
	EmailVerified bool `json:"email_verified"`
}

func (v *HTTPVerifier) IsEmailVerified(ctx context.Context, accountID string) (bool, error) {
	resp, err := v.client.Get(ctx, "/users/"+url.PathEscape(accountID)+"/verification")
	if err != nil {
		return false, apperrors.Upstream("identity", err)
	}

	var out verificationResponse
	if err := httputil.DecodeResponse(resp, &out); err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, apperrors.Upstream("identity", err)
	}
	return out.EmailVerified, nil
}

// =============================================================================
// Static Verifier
// =============================================================================

// StaticVerifier holds an in-process allow list. Used for local development
// and tests.
type StaticVerifier struct {
	mu       sync.RWMutex
	verified map[string]bool
}

// NewStaticVerifier creates a StaticVerifier that accepts accountIDs.
func NewStaticVerifier(accountIDs ...string) *StaticVerifier {
	v := &StaticVerifier{verified: make(map[string]bool)}
	for _, id := range accountIDs {
		v.verified[id] = true
	}
	return v
}

// Set marks accountID verified or not.
func (v *StaticVerifier) Set(accountID string, verified bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if verified {
		v.verified[accountID] = true
		return
	}
	delete(v.verified, accountID)
}

func (v *StaticVerifier) IsEmailVerified(_ context.Context, accountID string) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.verified[accountID], nil
}

var (
	_ Verifier = (*HTTPVerifier)(nil)
	_ Verifier = (*StaticVerifier)(nil)
)
