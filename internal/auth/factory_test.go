package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/civicportal/portal-sync/internal/auth/mocks"
	"github.com/civicportal/portal-sync/internal/config"
)

func TestNewAuthMiddleware(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockFactory := func(config.JWTKeyConfig, string, string) (TokenValidator, error) {
		return mocks.NewMockTokenValidator(ctrl), nil
	}
	failingFactory := func(config.JWTKeyConfig, string, string) (TokenValidator, error) {
		return nil, errors.New("bad key")
	}

	tests := []struct {
		name      string
		config    *config.AuthConfig
		factory   ValidatorFactory
		wantErr   string
		anonymous bool
	}{
		{
			name:      "nil config returns anonymous",
			factory:   DefaultValidatorFactory,
			anonymous: true,
		},
		{
			name:      "empty mode returns anonymous",
			config:    &config.AuthConfig{},
			factory:   DefaultValidatorFactory,
			anonymous: true,
		},
		{
			name:      "explicit anonymous mode",
			config:    &config.AuthConfig{Mode: config.AuthModeAnonymous},
			factory:   DefaultValidatorFactory,
			anonymous: true,
		},
		{
			name:    "unsupported mode returns error",
			config:  &config.AuthConfig{Mode: "custom"},
			factory: DefaultValidatorFactory,
			wantErr: "unsupported auth mode",
		},
		{
			name:    "jwt mode without settings",
			config:  &config.AuthConfig{Mode: config.AuthModeJWT},
			factory: mockFactory,
			wantErr: "jwt configuration is required",
		},
		{
			name:    "jwt mode without keys",
			config:  &config.AuthConfig{Mode: config.AuthModeJWT, JWT: &config.JWTConfig{}},
			factory: mockFactory,
			wantErr: "at least one key",
		},
		{
			name: "jwt mode with a broken key",
			config: &config.AuthConfig{Mode: config.AuthModeJWT, JWT: &config.JWTConfig{
				Keys: []config.JWTKeyConfig{{Name: "ops", Algorithm: "HS256", KeyFile: "/etc/key"}},
			}},
			factory: failingFactory,
			wantErr: `failed to create validator for key "ops"`,
		},
		{
			name: "jwt mode with keys",
			config: &config.AuthConfig{Mode: config.AuthModeJWT, JWT: &config.JWTConfig{
				Keys: []config.JWTKeyConfig{{Name: "ops", Algorithm: "HS256", KeyFile: "/etc/key"}},
			}},
			factory: mockFactory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mw, err := NewAuthMiddleware(tt.config, tt.factory)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, mw)

			rr := httptest.NewRecorder()
			mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tenants", nil))

			if tt.anonymous {
				assert.Equal(t, http.StatusOK, rr.Code)
			} else {
				assert.Equal(t, http.StatusUnauthorized, rr.Code)
			}
		})
	}
}

func TestNewAuthMiddleware_EndToEnd(t *testing.T) {
	t.Parallel()

	keyFile := writeKeyFile(t, []byte(testSecret))
	mw, err := NewAuthMiddleware(&config.AuthConfig{
		Mode: config.AuthModeJWT,
		JWT: &config.JWTConfig{
			Audience: "portal-sync",
			Keys:     []config.JWTKeyConfig{{Name: "ops", Algorithm: "HS256", KeyFile: keyFile}},
		},
	}, DefaultValidatorFactory)
	require.NoError(t, err)

	handler := WrapWithPublicPaths(mw, PublicPaths(nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			_, _ = w.Write([]byte(claims["sub"].(string)))
			return
		}
		_, _ = w.Write([]byte("public"))
	}))

	token := signHS256(t, jwt.MapClaims{"sub": "clerk", "aud": "portal-sync", "exp": time.Now().Add(time.Hour).Unix()})

	req := httptest.NewRequest(http.MethodGet, "/v1/tenants", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "clerk", rr.Body.String())

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tenants", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public", rr.Body.String())
}

func TestPublicPaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultPublicPaths, PublicPaths(nil))
	assert.Equal(t, []string{"/health", "/readiness", "/version", "/metrics"},
		PublicPaths(&config.AuthConfig{PublicPaths: []string{"/metrics"}}))

	// The defaults are not modified
	assert.Len(t, DefaultPublicPaths, 3)
}

func TestAnonymousMiddleware(t *testing.T) {
	t.Parallel()

	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	anonymousMiddleware(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tenants", nil))

	assert.True(t, called, "handler should be called")
	assert.Equal(t, http.StatusOK, rr.Code)
}
