package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/civicportal/portal-sync/internal/config"
)

// DefaultPublicPaths are never authenticated
var DefaultPublicPaths = []string{"/health", "/readiness", "/version"}

// NewAuthMiddleware creates authentication middleware based on config.
// A nil config or the anonymous mode lets every request through.
func NewAuthMiddleware(cfg *config.AuthConfig, factory ValidatorFactory) (func(http.Handler) http.Handler, error) {
	switch cfg.GetMode() {
	case config.AuthModeAnonymous:
		slog.Info("Admin API authentication disabled", "mode", config.AuthModeAnonymous)
		return anonymousMiddleware, nil
	case config.AuthModeJWT:
		return createJWTMiddleware(cfg, factory)
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

// createJWTMiddleware builds one validator per configured key
func createJWTMiddleware(cfg *config.AuthConfig, factory ValidatorFactory) (func(http.Handler) http.Handler, error) {
	if cfg.JWT == nil {
		return nil, fmt.Errorf("jwt configuration is required for jwt mode")
	}

	validators := make([]namedValidator, 0, len(cfg.JWT.Keys))
	for _, key := range cfg.JWT.Keys {
		v, err := factory(key, cfg.JWT.Issuer, cfg.JWT.Audience)
		if err != nil {
			return nil, fmt.Errorf("failed to create validator for key %q: %w", key.Name, err)
		}
		validators = append(validators, namedValidator{Name: key.Name, Validator: v})
	}

	m, err := newMultiKeyMiddleware(validators, cfg.Realm)
	if err != nil {
		return nil, fmt.Errorf("failed to create jwt middleware: %w", err)
	}

	slog.Info("Admin API authentication enabled", "mode", config.AuthModeJWT, "keys", len(validators))
	return m.Middleware, nil
}

// PublicPaths returns the default public paths plus the configured ones
func PublicPaths(cfg *config.AuthConfig) []string {
	paths := append([]string{}, DefaultPublicPaths...)
	if cfg != nil {
		paths = append(paths, cfg.PublicPaths...)
	}
	return paths
}

// anonymousMiddleware is a no-op middleware that passes requests through without authentication.
func anonymousMiddleware(next http.Handler) http.Handler {
	return next
}
