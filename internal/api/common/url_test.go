package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAndValidateURLParam(t *testing.T) {
	t.Parallel()

	routerTests := []struct {
		name       string
		paramValue string
		wantValue  string
		wantErrMsg string
	}{
		{name: "plain key", paramValue: "springfield", wantValue: "springfield"},
		{name: "dashes and underscores", paramValue: "north_shore-2", wantValue: "north_shore-2"},
		{name: "url-encoded slash", paramValue: "north%2Fshore", wantValue: "north/shore"},
		{name: "url-encoded at symbol", paramValue: "city%40county", wantValue: "city@county"},
		{name: "empty", paramValue: "", wantErrMsg: "tenantKey cannot be empty"},
		{name: "encoded space only", paramValue: "%20", wantErrMsg: "tenantKey cannot be empty"},
		{name: "encoded tab only", paramValue: "%09", wantErrMsg: "tenantKey cannot be empty"},
		{name: "space in middle", paramValue: "north%20shore", wantErrMsg: "tenantKey cannot contain whitespace"},
		{name: "newline in middle", paramValue: "north%0Ashore", wantErrMsg: "tenantKey cannot contain whitespace"},
		{name: "space at end", paramValue: "north%20", wantErrMsg: "tenantKey cannot contain whitespace"},
	}

	for _, tt := range routerTests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			called := false
			router := chi.NewRouter()
			router.Get("/{tenantKey}", func(_ http.ResponseWriter, r *http.Request) {
				called = true
				value, err := GetAndValidateURLParam(r, "tenantKey")
				if tt.wantErrMsg != "" {
					require.Error(t, err)
					assert.Equal(t, tt.wantErrMsg, err.Error())
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.wantValue, value)
			})

			req, err := http.NewRequest(http.MethodGet, "/"+tt.paramValue, nil)
			require.NoError(t, err)
			router.ServeHTTP(httptest.NewRecorder(), req)

			if tt.paramValue != "" {
				assert.True(t, called)
			}
		})
	}

	// Chi never routes invalid encodings, so the context is built by hand
	directTests := []struct {
		name       string
		paramValue string
	}{
		{name: "incomplete escape", paramValue: "north%2"},
		{name: "invalid hex", paramValue: "north%ZZ"},
		{name: "trailing percent", paramValue: "north%"},
	}

	for _, tt := range directTests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("tenantKey", tt.paramValue)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			_, err := GetAndValidateURLParam(req, "tenantKey")
			require.Error(t, err)
			assert.Equal(t, "invalid URL encoding in tenantKey", err.Error())
		})
	}
}

func TestQueryLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		want    int
		wantErr bool
	}{
		{name: "absent", query: "", want: 50},
		{name: "explicit", query: "limit=10", want: 10},
		{name: "capped", query: "limit=5000", want: 500},
		{name: "zero", query: "limit=0", wantErr: true},
		{name: "negative", query: "limit=-1", wantErr: true},
		{name: "not a number", query: "limit=ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/logs?"+tt.query, nil)
			got, err := QueryLimit(req, 50, 500)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		want    bool
		wantErr bool
	}{
		{name: "absent", query: "", want: false},
		{name: "true", query: "failures=true", want: true},
		{name: "one", query: "failures=1", want: true},
		{name: "false", query: "failures=false", want: false},
		{name: "invalid", query: "failures=maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/logs?"+tt.query, nil)
			got, err := QueryBool(req, "failures")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
