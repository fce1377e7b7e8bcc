package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgsync "github.com/civicportal/portal-sync/internal/sync"
	"github.com/civicportal/portal-sync/internal/sync/coordinator"
	"github.com/civicportal/portal-sync/internal/versions"
)

// Commands bind flags on the global viper instance, so tests that build a
// root command do not run in parallel.

func TestNewRootCmd(t *testing.T) {
	root := NewRootCmd()
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "sync-once", "migrate", "status", "version"} {
		assert.Contains(t, names, want)
	}

	migrate, _, err := root.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	assert.Equal(t, "down", migrate.Name())
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--format", "json"})
	require.NoError(t, root.Execute())

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, versions.Version, info.Version)
}

func TestCommandsRequireConfig(t *testing.T) {
	for _, args := range [][]string{{"serve"}, {"sync-once"}, {"status"}, {"migrate", "up"}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			root := NewRootCmd()
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(args)
			err := root.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), `required flag(s) "config" not set`)
		})
	}
}

func TestSyncOnceCmd(t *testing.T) {
	contentRoot := t.TempDir()
	outputRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(contentRoot, "news"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(contentRoot, "news", "fair.md"),
		[]byte("# County Fair\n\nOpens Saturday.\n"), 0o600))

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`engine:
  outputRoot: %s
storage:
  type: memory
sources:
  local:
    root: %s
tenants:
  - key: springfield
    outputPath: springfield
    folders:
      - name: news
        source: local
        containerId: news
      - name: minutes
        source: local
        containerId: missing
`, outputRoot, contentRoot)), 0o600))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "folder failures are reported", args: []string{"sync-once", "--config", configPath}},
		{
			name:    "folder failures fail the command on request",
			args:    []string{"sync-once", "--config", configPath, "--fail-on-folder-errors"},
			wantErr: "1 tenant(s) had failed folders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			root := NewRootCmd()
			root.SetOut(&out)
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tt.args)

			err := root.Execute()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			assert.Contains(t, out.String(), "springfield")
			assert.Contains(t, out.String(), "config:")
			assert.FileExists(t, filepath.Join(outputRoot, "springfield", "news.html"))
		})
	}
}

func TestWriteCycleReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		report   *coordinator.CycleReport
		contains []string
	}{
		{
			name: "aborted",
			report: &coordinator.CycleReport{
				Aborted:  true,
				Err:      errors.New("store unavailable"),
				Duration: 1500 * time.Millisecond,
			},
			contains: []string{"Cycle aborted after 1.5s: store unavailable"},
		},
		{
			name: "folders",
			report: &coordinator.CycleReport{
				Duration: time.Second,
				Tenants: []coordinator.TenantReport{
					{
						Key:           "springfield",
						Folders:       2,
						FailedFolders: 1,
						Results: map[string]*pkgsync.Result{
							"news":    {Listed: 3, New: 1, Written: 1},
							"minutes": {},
						},
						Errors: map[string]*pkgsync.Error{
							"minutes": {Kind: pkgsync.ErrorKindSource, Message: "quota exceeded"},
						},
					},
					{Key: "shelbyville", Err: errors.New("failed to list folders")},
				},
			},
			contains: []string{"news", "ok", "source: quota exceeded", "failed to list folders", "2 tenant(s), 1 failed folder(s), 1s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, writeCycleReport(&buf, tt.report))
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{input: "yes\n", want: true},
		{input: "Y\n", want: true},
		{input: "no\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
		{input: "yes", want: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), &out, "Continue?"))
			assert.Equal(t, "Continue? (yes/no): ", out.String())
		})
	}
}
