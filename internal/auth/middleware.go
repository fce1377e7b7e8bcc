// Package auth provides bearer token authentication for the admin API.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// errAllKeysFailed indicates no configured key verified the token
var errAllKeysFailed = errors.New("no configured key validated the token")

// RFC 6750 Section 3 error codes
const (
	// errorCodeInvalidRequest indicates the request is missing a required parameter,
	// includes an unsupported parameter or parameter value, or is otherwise malformed.
	errorCodeInvalidRequest = "invalid_request"

	// errorCodeInvalidToken indicates the access token provided is expired, revoked,
	// malformed, or invalid for other reasons.
	errorCodeInvalidToken = "invalid_token"
)

// defaultRealm is the default protection space identifier
const defaultRealm = "portal-sync"

type claimsKey struct{}

// ClaimsFromContext returns the claims of the authenticated request, if any
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(jwt.MapClaims)
	return claims, ok
}

// validationResult contains the outcome of token validation
type validationResult struct {
	// Key is the name of the key that verified the token
	Key string

	// Error is set if validation failed
	Error error

	// Errors contains the error of every key tried, for debugging
	Errors []keyError

	// Claims contains the validated claims (only set on success)
	Claims jwt.MapClaims
}

// keyError pairs a key name with its validation error
type keyError struct {
	Key   string
	Error error
}

// namedValidator pairs a validator with its key name
type namedValidator struct {
	Name      string
	Validator TokenValidator
}

// multiKeyMiddleware authenticates requests against several verification keys
type multiKeyMiddleware struct {
	validators []namedValidator
	realm      string
}

// newMultiKeyMiddleware creates the middleware from named validators
func newMultiKeyMiddleware(validators []namedValidator, realm string) (*multiKeyMiddleware, error) {
	if len(validators) == 0 {
		return nil, errors.New("at least one key must be configured")
	}
	if realm == "" {
		realm = defaultRealm
	}
	return &multiKeyMiddleware{validators: validators, realm: realm}, nil
}

// Middleware returns an HTTP middleware function that performs authentication.
func (m *multiKeyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r)
		if err != nil {
			slog.Warn("Token extraction failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, http.StatusUnauthorized, errorCodeInvalidRequest, "missing or malformed authorization header")
			return
		}

		result := m.validateToken(r.Context(), token)
		if result.Error != nil {
			slog.Warn("Token validation failed",
				"error", result.Error,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, http.StatusUnauthorized, errorCodeInvalidToken, "token validation failed")
			return
		}

		slog.Debug("Authentication successful",
			"key", result.Key,
			"subject", result.Claims["sub"],
			"remote_addr", r.RemoteAddr,
			"path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, result.Claims)))
	})
}

// validateToken tries the keys in order until one verifies the token
func (m *multiKeyMiddleware) validateToken(ctx context.Context, token string) validationResult {
	keyErrors := make([]keyError, 0, len(m.validators))

	for _, nv := range m.validators {
		claims, err := nv.Validator.ValidateToken(ctx, token)
		if err != nil {
			keyErrors = append(keyErrors, keyError{Key: nv.Name, Error: err})
			slog.Debug("Key failed to validate token", "key", nv.Name, "error", err)
			continue
		}

		return validationResult{
			Key:    nv.Name,
			Claims: claims,
			Errors: keyErrors,
		}
	}

	return validationResult{
		Error:  errAllKeysFailed,
		Errors: keyErrors,
	}
}

// extractBearerToken reads the token of an "Authorization: Bearer" header
func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("authorization header is missing")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("authorization header is not a bearer token")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("bearer token is empty")
	}
	return token, nil
}

// sanitizeHeaderValue removes characters that could enable header injection attacks.
// This includes newlines, carriage returns, and unescaped quotes.
func sanitizeHeaderValue(s string) string {
	if !strings.ContainsAny(s, "\r\n\"") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	// Escape quotes for use in quoted-string (RFC 7230)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// writeError writes a JSON error response with an RFC 6750 WWW-Authenticate header
func (m *multiKeyMiddleware) writeError(w http.ResponseWriter, status int, errCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="%s", error="%s", error_description="%s"`,
		sanitizeHeaderValue(m.realm), errCode, sanitizeHeaderValue(description)))
	w.WriteHeader(status)

	resp := struct {
		Error string `json:"error"`
	}{
		Error: description,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// WrapWithPublicPaths skips authMw for requests under one of paths
func WrapWithPublicPaths(
	authMw func(http.Handler) http.Handler,
	paths []string,
) func(http.Handler) http.Handler {
	public := newPublicPaths(paths)
	return func(next http.Handler) http.Handler {
		authenticated := authMw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.match(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			authenticated.ServeHTTP(w, r)
		})
	}
}
