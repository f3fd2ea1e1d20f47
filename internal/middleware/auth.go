// Package middleware provides the HTTP middleware chain.
package middleware

import (
	"crypto/rsa"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	internalhttputil "github.com/NeptuneChain-Inc/NPC-Backend/internal/httputil"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
)

// Identity headers read by HeaderIdentity.
const (
	UserIDHeader = "X-User-ID"
	RoleHeader   = "X-User-Role"
)

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AuthOptions configures AuthMiddleware. Issuer and Audience are checked
// only when set.
type AuthOptions struct {
	PublicKey *rsa.PublicKey
	Issuer    string
	Audience  string
	SkipPaths []string
}

// AuthMiddleware provides JWT authentication
type AuthMiddleware struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
	logger    *logging.Logger
	skipPaths map[string]bool
}

// LoadPublicKey reads a PEM encoded RSA public key.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key, nil
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(opts AuthOptions, logger *logging.Logger) *AuthMiddleware {
	if logger == nil {
		logger = logging.NewDiscard("auth")
	}
	skip := make(map[string]bool, len(opts.SkipPaths))
	for _, path := range opts.SkipPaths {
		skip[path] = true
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}

	return &AuthMiddleware{
		publicKey: opts.PublicKey,
		parser:    jwt.NewParser(parserOpts...),
		logger:    logger,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized("Missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			m.respondError(w, r, errors.Unauthorized("Invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.UserID)
		if claims.Role != "" {
			ctx = logging.WithRole(ctx, claims.Role)
		}

		m.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"user_id": claims.UserID,
			"role":    claims.Role,
		}).Debug("Authentication successful")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := m.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.publicKey, nil
	})
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "missing user id")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.LogSecurityEvent(r.Context(), "authentication_failed", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
		"error":  err.Error(),
	})
}

// HeaderIdentity takes the acting user and role from the X-User-ID and
// X-User-Role headers. It stands in for AuthMiddleware in development.
func HeaderIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
			ctx = logging.WithUserID(ctx, id)
		}
		if role := strings.TrimSpace(r.Header.Get(RoleHeader)); role != "" {
			ctx = logging.WithRole(ctx, role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
