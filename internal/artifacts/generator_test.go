package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicportal/portal-sync/internal/model"
)

type listerFunc func(ctx context.Context, tenantID uuid.UUID, folder string) ([]*model.Record, error)

func (f listerFunc) ActiveRecords(ctx context.Context, tenantID uuid.UUID, folder string) ([]*model.Record, error) {
	return f(ctx, tenantID, folder)
}

func staticLister(records ...*model.Record) ActiveRecordLister {
	return listerFunc(func(context.Context, uuid.UUID, string) ([]*model.Record, error) {
		return records, nil
	})
}

var (
	testTenant = &model.Tenant{ID: uuid.New(), Key: "springfield", OutputPath: "springfield"}
	newsFolder = &model.FolderConfig{Name: "news", Template: TemplateDocuments}
)

func TestGenerator_Generate(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	renderer := newTestRenderer(t)
	records := []*model.Record{
		{ExternalID: "b", Name: "b", Kind: model.KindText, Fragment: "<div>cached b</div>", FragmentTemplate: TemplateDocuments},
		{ExternalID: "a", Name: "a.pdf", Kind: model.KindPDF, Payload: []byte(`{"name":"a.pdf"}`)},
	}
	gen := NewGenerator(staticLister(records...), renderer)

	result, err := gen.Generate(context.Background(), root, testTenant, newsFolder)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, 2, result.Records)
	assert.Equal(t, filepath.Join(root, "springfield", "news.html"), result.Path)

	content, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, result.Bytes, len(content))
	body := string(content)
	assert.Regexp(t, `(?s)^<div class="grid">\n<div>cached b</div>\n<div class="card document-card".*a\.pdf.*</div>\n</div>$`, body)

	info, err := os.Stat(result.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(artifactFileMode), info.Mode().Perm())

	// Push the mtime into the past so an unwanted rewrite would be visible
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(result.Path, past, past))

	again, err := gen.Generate(context.Background(), root, testTenant, newsFolder)
	require.NoError(t, err)
	assert.False(t, again.Changed)

	info, err = os.Stat(result.Path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past))

	entries, err := os.ReadDir(filepath.Dir(result.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestGenerator_RerendersFragmentsOfAnotherTemplate(t *testing.T) {
	t.Parallel()

	renderer := newTestRenderer(t)
	rec := &model.Record{
		ExternalID: "a",
		Name:       "budget.pdf",
		Kind:       model.KindPDF,
		Payload:    []byte(`{"name":"budget.pdf","size":2048}`),
	}
	cached, err := renderer.Fragment(TemplateDocuments, rec)
	require.NoError(t, err)
	rec.Fragment = cached
	rec.FragmentTemplate = TemplateDocuments

	gen := NewGenerator(staticLister(rec), renderer)
	root := t.TempDir()

	result, err := gen.Generate(context.Background(), root, testTenant, newsFolder)
	require.NoError(t, err)
	content, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Contains(t, string(content), cached)

	tableFolder := &model.FolderConfig{Name: "news", Template: TemplateTable}
	result, err = gen.Generate(context.Background(), root, testTenant, tableFolder)
	require.NoError(t, err)
	assert.True(t, result.Changed)

	content, err = os.ReadFile(result.Path)
	require.NoError(t, err)
	body := string(content)
	assert.NotContains(t, body, "document-card")
	assert.Regexp(t, `(?s)<tbody>\n<tr><td><a href="#" target="_blank">budget\.pdf</a></td>.*</tr>\n</tbody>`, body)
}

func TestGenerator_EmptyFolder(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	gen := NewGenerator(staticLister(), newTestRenderer(t))

	result, err := gen.Generate(context.Background(), root, testTenant, newsFolder)
	require.NoError(t, err)

	content, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, EmptyState, string(content))
}

func TestGenerator_Errors(t *testing.T) {
	t.Parallel()

	renderer := newTestRenderer(t)

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		gen := NewGenerator(listerFunc(func(context.Context, uuid.UUID, string) ([]*model.Record, error) {
			return nil, boom
		}), renderer)
		_, err := gen.Generate(context.Background(), t.TempDir(), testTenant, newsFolder)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("output path escaping the root", func(t *testing.T) {
		t.Parallel()
		gen := NewGenerator(staticLister(), renderer)
		tenant := &model.Tenant{ID: uuid.New(), Key: "evil", OutputPath: "../elsewhere"}
		_, err := gen.Generate(context.Background(), t.TempDir(), tenant, newsFolder)
		assert.Error(t, err)
	})
}

func TestArtifactPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		output  string
		folder  string
		want    string
		wantErr bool
	}{
		{name: "nested output", output: "cities/springfield", folder: "news", want: filepath.Join("/out", "cities", "springfield", "news.html")},
		{name: "absolute output", output: "/etc", folder: "news", wantErr: true},
		{name: "parent folder", output: "springfield", folder: "../news", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ArtifactPath("/out", &model.Tenant{Key: "k", OutputPath: tt.output}, tt.folder)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteAtomic_ReplacesContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "out.html")

	changed, err := writeAtomic(path, []byte("one"))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = writeAtomic(path, []byte("two"))
	require.NoError(t, err)
	assert.True(t, changed)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(content))
}

func TestAcquireLock(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "output")

	lock, err := AcquireLock(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, LockFileName), lock.Path())

	_, err = AcquireLock(root)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release())

	again, err := AcquireLock(root)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}
