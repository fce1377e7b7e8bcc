package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/model"
)

func TestClassifyGoogleError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		listing bool
		check   func(error) bool
	}{
		{
			name:  "server error is transient",
			err:   &googleapi.Error{Code: http.StatusServiceUnavailable},
			check: IsTransient,
		},
		{
			name:  "too many requests is transient",
			err:   &googleapi.Error{Code: http.StatusTooManyRequests},
			check: IsTransient,
		},
		{
			name: "rate limited forbidden is transient",
			err: &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{
				{Reason: "userRateLimitExceeded"},
			}},
			listing: true,
			check:   IsTransient,
		},
		{
			name:  "transport failure is transient",
			err:   fmt.Errorf("dial tcp: connection refused"),
			check: IsTransient,
		},
		{
			name:  "missing item is not found",
			err:   &googleapi.Error{Code: http.StatusNotFound},
			check: IsNotFound,
		},
		{
			name:    "missing container is a config error",
			err:     &googleapi.Error{Code: http.StatusNotFound},
			listing: true,
			check:   IsConfigError,
		},
		{
			name:    "forbidden container is a config error",
			err:     &googleapi.Error{Code: http.StatusForbidden},
			listing: true,
			check:   IsConfigError,
		},
		{
			name: "forbidden item is a plain failure",
			err:  &googleapi.Error{Code: http.StatusForbidden},
			check: func(err error) bool {
				return err != nil && !IsTransient(err) && !IsNotFound(err) && !IsConfigError(err)
			},
		},
		{
			name: "cancellation passes through",
			err:  fmt.Errorf("request: %w", context.Canceled),
			check: func(err error) bool {
				return errors.Is(err, context.Canceled) && !IsTransient(err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classifyGoogleError("list", "abc", tt.err, tt.listing)
			assert.True(t, tt.check(got), "unexpected classification: %T %v", got, got)
		})
	}

	assert.NoError(t, classifyGoogleError("list", "abc", nil, true))
}

func newDriveTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !strings.Contains(q.Get("q"), "'folder-1' in parents") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found"}}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if q.Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"nextPageToken":"p2","files":[
				{"id":"doc-1","name":"Minutes","mimeType":"application/vnd.google-apps.document",
				 "modifiedTime":"2024-03-01T10:00:00.000Z","webViewLink":"https://docs.example/doc-1"}
			]}`))
			return
		}
		_, _ = w.Write([]byte(`{"files":[
			{"id":"md-1","name":"notes.md","mimeType":"text/markdown","modifiedTime":"2024-03-02T10:00:00Z",
			 "size":"9","md5Checksum":"abc123"},
			{"id":"vid-1","name":"Meeting","mimeType":"video/mp4","modifiedTime":"2024-03-03T10:00:00Z",
			 "size":"1048576","thumbnailLink":"https://thumbs.example/vid-1"}
		]}`))
	})
	mux.HandleFunc("/drive/v3/files/doc-1/export", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mimeType") != MimePlain {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("Council minutes"))
	})
	mux.HandleFunc("/drive/v3/files/md-1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# Notes\n"))
	})
	mux.HandleFunc("/drive/v3/files/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found"}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDriveConnector(t *testing.T) {
	t.Parallel()

	srv := newDriveTestServer(t)
	ctx := context.Background()

	conn, err := NewDriveConnector(ctx, newLimiter(100), 1024,
		option.WithEndpoint(srv.URL+"/drive/v3/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	t.Run("list follows pages", func(t *testing.T) {
		t.Parallel()

		items, err := conn.List(ctx, "folder-1")
		require.NoError(t, err)
		require.Len(t, items, 3)

		SortItems(items)
		assert.Equal(t, "vid-1", items[0].ExternalID)
		assert.Equal(t, model.KindVideo, items[0].Kind)
		assert.Equal(t, "https://thumbs.example/vid-1", items[0].Links.Thumbnail)
		assert.Equal(t, "md-1", items[1].ExternalID)
		assert.Equal(t, int64(9), items[1].Size)
		assert.Equal(t, "abc123", items[1].Checksum)
		assert.Equal(t, "doc-1", items[2].ExternalID)
		assert.Equal(t, model.KindDocument, items[2].Kind)
		assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), items[2].LastModified)
	})

	t.Run("unknown folder is a config error", func(t *testing.T) {
		t.Parallel()

		_, err := conn.List(ctx, "folder-2")
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})

	t.Run("google docs are exported as text", func(t *testing.T) {
		t.Parallel()

		item, err := conn.Fetch(ctx, model.ItemRef{ExternalID: "doc-1", Kind: model.KindDocument, MimeType: MimeGoogleDoc})
		require.NoError(t, err)
		assert.Equal(t, "Council minutes", string(item.Content))
	})

	t.Run("text files are downloaded", func(t *testing.T) {
		t.Parallel()

		item, err := conn.Fetch(ctx, model.ItemRef{ExternalID: "md-1", Kind: model.KindMarkdown, MimeType: MimeMarkdown})
		require.NoError(t, err)
		assert.Equal(t, "# Notes\n", string(item.Content))
	})

	t.Run("media kinds are not downloaded", func(t *testing.T) {
		t.Parallel()

		item, err := conn.Fetch(ctx, model.ItemRef{ExternalID: "vid-1", Kind: model.KindVideo, MimeType: "video/mp4"})
		require.NoError(t, err)
		assert.Nil(t, item.Content)
	})

	t.Run("deleted file is not found", func(t *testing.T) {
		t.Parallel()

		_, err := conn.Fetch(ctx, model.ItemRef{ExternalID: "gone", Kind: model.KindText, MimeType: MimePlain})
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}

func TestDriveListQuery(t *testing.T) {
	t.Parallel()

	const suffix = " in parents and trashed = false and mimeType != 'application/vnd.google-apps.folder'"

	tests := []struct {
		name     string
		folderID string
		want     string
	}{
		{"plain id", "folder-1", `'folder-1'`},
		{"quote", "o'brien", `'o\'brien'`},
		{"backslash", `a\b`, `'a\\b'`},
		{"backslash before quote", `x\'`, `'x\\\''`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want+suffix, driveListQuery(tt.folderID))
		})
	}
}

func TestSheetsConnector(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v4/spreadsheets/sheet-1/values/Staff", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"Staff!A1:D4","majorDimension":"ROWS","values":[
			["ID","Name","Job Title","Email"],
			["s-1","Ann Lee","Clerk","ann@example.org"],
			["","Bo Park"],
			[]
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	conn, err := NewSheetsConnector(ctx, newLimiter(100),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	_, err = conn.Fetch(ctx, model.ItemRef{ExternalID: "s-1"})
	require.True(t, IsNotFound(err), "fetch before list has no snapshot")

	items, err := conn.List(ctx, "sheet-1!Staff")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "s-1", items[0].ExternalID)
	assert.Equal(t, "Ann Lee", items[0].Name)
	assert.Equal(t, model.KindRow, items[0].Kind)
	assert.Len(t, items[0].Checksum, 64)
	assert.Equal(t, "row-3", items[1].ExternalID)
	assert.Equal(t, "Bo Park", items[1].Name)

	item, err := conn.Fetch(ctx, items[1])
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"columns":["ID","Name","Job Title","Email"],"values":["","Bo Park","",""]}`,
		string(item.Content))
}

func TestRowsToItems(t *testing.T) {
	t.Parallel()

	t.Run("empty grid", func(t *testing.T) {
		t.Parallel()

		items, snapshot := rowsToItems(nil)
		assert.Empty(t, items)
		assert.Empty(t, snapshot)
	})

	t.Run("duplicate ids fall back to row numbers", func(t *testing.T) {
		t.Parallel()

		items, snapshot := rowsToItems([][]any{
			{"id", "title"},
			{"x", "First"},
			{"x", "Second"},
		})
		require.Len(t, items, 2)
		assert.Equal(t, "x", items[0].ExternalID)
		assert.Equal(t, "row-3", items[1].ExternalID)
		assert.Len(t, snapshot, 2)
	})

	t.Run("checksum follows content", func(t *testing.T) {
		t.Parallel()

		a, _ := rowsToItems([][]any{{"name"}, {"Ann"}})
		b, _ := rowsToItems([][]any{{"name"}, {"Ann"}})
		c, _ := rowsToItems([][]any{{"name"}, {"Anne"}})
		assert.Equal(t, a[0].Checksum, b[0].Checksum)
		assert.NotEqual(t, a[0].Checksum, c[0].Checksum)
	})
}

func TestParseSheetContainer(t *testing.T) {
	t.Parallel()

	id, rng := ParseSheetContainer("abc")
	assert.Equal(t, "abc", id)
	assert.Equal(t, DefaultSheetRange, rng)

	id, rng = ParseSheetContainer("abc!Events!A1:F")
	assert.Equal(t, "abc", id)
	assert.Equal(t, "Events!A1:F", rng)
}

func TestFactory_Create(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	factory := NewFactory(WithClientOptions(option.WithHTTPClient(http.DefaultClient)))

	tests := []struct {
		name       string
		cfg        *config.Config
		source     string
		wantConfig bool
	}{
		{
			name:   "local connector",
			cfg:    &config.Config{Sources: config.SourcesConfig{Local: &config.LocalConfig{Root: t.TempDir()}}},
			source: model.SourceLocal,
		},
		{
			name:       "local without root",
			cfg:        &config.Config{},
			source:     model.SourceLocal,
			wantConfig: true,
		},
		{
			name:   "drive with endpoint override",
			cfg:    &config.Config{Sources: config.SourcesConfig{Google: &config.GoogleConfig{Endpoint: "http://127.0.0.1:1"}}},
			source: model.SourceDrive,
		},
		{
			name:   "sheets with endpoint override",
			cfg:    &config.Config{Sources: config.SourcesConfig{Google: &config.GoogleConfig{Endpoint: "http://127.0.0.1:1"}}},
			source: model.SourceSheets,
		},
		{
			name:   "git connector",
			cfg:    &config.Config{Sources: config.SourcesConfig{Git: &config.GitConfig{Repository: "https://git.example/content.git"}}},
			source: model.SourceGit,
		},
		{
			name:       "git without repository",
			cfg:        &config.Config{},
			source:     model.SourceGit,
			wantConfig: true,
		},
		{
			name: "git with unreadable password file",
			cfg: &config.Config{Sources: config.SourcesConfig{Git: &config.GitConfig{
				Repository: "https://git.example/content.git",
				Auth:       &config.GitAuthConfig{Username: "clerk", PasswordFile: "/nonexistent/token"},
			}}},
			source:     model.SourceGit,
			wantConfig: true,
		},
		{
			name:       "unsupported source",
			cfg:        &config.Config{},
			source:     "dropbox",
			wantConfig: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn, err := factory.Create(ctx, tt.cfg, &model.Tenant{Key: "springfield"}, tt.source)
			if tt.wantConfig {
				require.Error(t, err)
				assert.True(t, IsConfigError(err))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, conn)
		})
	}
}

func TestGoogleClientOptions_TenantCredentialsWin(t *testing.T) {
	t.Parallel()

	google := &config.GoogleConfig{CredentialsFile: "/etc/shared.json"}

	assert.Len(t, googleClientOptions(google, &model.Tenant{CredentialsFile: "/etc/tenant.json"}, model.SourceDrive), 1)
	assert.Len(t, googleClientOptions(&config.GoogleConfig{Endpoint: "http://x"}, &model.Tenant{}, model.SourceDrive), 2,
		"endpoint without credentials disables authentication")
	assert.Empty(t, googleClientOptions(nil, nil, model.SourceSheets))
}
