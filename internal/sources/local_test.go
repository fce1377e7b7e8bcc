package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/model"
)

func writeFile(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func TestLocalConnector_List(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	modTime := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	writeFile(t, filepath.Join(root, "news", "budget.md"), "# Budget\n", modTime)
	writeFile(t, filepath.Join(root, "news", "agenda.pdf"), "%PDF", modTime.Add(time.Hour))
	writeFile(t, filepath.Join(root, "news", ".hidden.txt"), "skip", modTime)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "news", "archive"), 0750))

	conn := NewLocalConnector(root, 1024)
	items, err := conn.List(context.Background(), "news")
	require.NoError(t, err)
	require.Len(t, items, 2)

	SortItems(items)
	assert.Equal(t, "news/agenda.pdf", items[0].ExternalID)
	assert.Equal(t, model.KindPDF, items[0].Kind)
	assert.Equal(t, "news/budget.md", items[1].ExternalID)
	assert.Equal(t, model.KindMarkdown, items[1].Kind)
	assert.Equal(t, MimeMarkdown, items[1].MimeType)
	assert.Equal(t, int64(9), items[1].Size)
	assert.True(t, modTime.Equal(items[1].LastModified))
}

func TestLocalConnector_ListErrors(t *testing.T) {
	t.Parallel()

	conn := NewLocalConnector(t.TempDir(), 1024)

	tests := []struct {
		name      string
		container string
	}{
		{name: "missing directory", container: "missing"},
		{name: "path traversal", container: "../etc"},
		{name: "absolute path", container: "/etc"},
		{name: "empty container", container: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := conn.List(context.Background(), tt.container)
			require.Error(t, err)
			assert.True(t, IsConfigError(err), "expected ConfigError, got %v", err)
		})
	}
}

func TestLocalConnector_Fetch(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	now := time.Now()
	writeFile(t, filepath.Join(root, "docs", "notes.txt"), "hello", now)
	writeFile(t, filepath.Join(root, "docs", "big.txt"), "0123456789", now)
	writeFile(t, filepath.Join(root, "docs", "scan.pdf"), "%PDF-1.7", now)

	conn := NewLocalConnector(root, 8)
	ctx := context.Background()

	t.Run("text content is read", func(t *testing.T) {
		t.Parallel()

		item, err := conn.Fetch(ctx, model.ItemRef{ExternalID: "docs/notes.txt", Kind: model.KindText, MimeType: MimePlain})
		require.NoError(t, err)
		assert.Equal(t, "hello", string(item.Content))
	})

	t.Run("metadata-only kinds carry no content", func(t *testing.T) {
		t.Parallel()

		item, err := conn.Fetch(ctx, model.ItemRef{ExternalID: "docs/scan.pdf", Kind: model.KindPDF})
		require.NoError(t, err)
		assert.Nil(t, item.Content)
	})

	t.Run("content above the cap is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := conn.Fetch(ctx, model.ItemRef{ExternalID: "docs/big.txt", Kind: model.KindText})
		require.ErrorIs(t, err, ErrContentTooLarge)
	})

	t.Run("vanished file is not found", func(t *testing.T) {
		t.Parallel()

		_, err := conn.Fetch(ctx, model.ItemRef{ExternalID: "docs/gone.txt", Kind: model.KindText})
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}

type countingFactory struct {
	calls int
	conn  Connector
	err   error
}

func (f *countingFactory) Create(context.Context, *config.Config, *model.Tenant, string) (Connector, error) {
	f.calls++
	return f.conn, f.err
}

func TestConnectorSet_CachesPerSource(t *testing.T) {
	t.Parallel()

	factory := &countingFactory{conn: NewLocalConnector(t.TempDir(), 1024)}
	set := NewConnectorSet(factory, &config.Config{}, &model.Tenant{Key: "springfield"})

	first, err := set.Get(context.Background(), model.SourceLocal)
	require.NoError(t, err)
	second, err := set.Get(context.Background(), model.SourceLocal)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, factory.calls)

	broken := &countingFactory{err: &ConfigError{Reason: "no credentials"}}
	set = NewConnectorSet(broken, &config.Config{}, &model.Tenant{Key: "springfield"})
	_, err = set.Get(context.Background(), model.SourceDrive)
	assert.True(t, IsConfigError(err))
	_, err = set.Get(context.Background(), model.SourceDrive)
	assert.True(t, IsConfigError(err))
	assert.Equal(t, 1, broken.calls)
}
