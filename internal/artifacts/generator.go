// Package artifacts renders the active records of a folder into the static HTML
// fragment consumed by the portal pages.
//
// Regeneration always replaces the whole artifact. Records are rendered newest
// change first, the output carries no timestamps, and an unchanged active set
// leaves the file on disk untouched.
package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/civicportal/portal-sync/internal/model"
)

// ActiveRecordLister loads the records to render, already ordered
type ActiveRecordLister interface {
	ActiveRecords(ctx context.Context, tenantID uuid.UUID, folder string) ([]*model.Record, error)
}

// Generator writes folder artifacts
type Generator interface {
	// Generate renders the folder's active records into <outputRoot>/<tenant output>/<folder>.html
	Generate(ctx context.Context, outputRoot string, tenant *model.Tenant, folder *model.FolderConfig) (*Result, error)
}

// Result describes one generated artifact
type Result struct {
	Path    string
	Records int
	Bytes   int
	Changed bool
}

type defaultGenerator struct {
	records  ActiveRecordLister
	renderer *Renderer
}

// NewGenerator creates a Generator reading records from the given lister
func NewGenerator(records ActiveRecordLister, renderer *Renderer) Generator {
	return &defaultGenerator{records: records, renderer: renderer}
}

// ArtifactPath returns the artifact location of a folder
func ArtifactPath(outputRoot string, tenant *model.Tenant, folder string) (string, error) {
	if !filepath.IsLocal(tenant.OutputPath) {
		return "", fmt.Errorf("tenant %s: output path %q must be relative to the output root", tenant.Key, tenant.OutputPath)
	}
	if !filepath.IsLocal(folder) {
		return "", fmt.Errorf("tenant %s: invalid folder name %q", tenant.Key, folder)
	}
	return filepath.Join(outputRoot, tenant.OutputPath, folder+".html"), nil
}

func (g *defaultGenerator) Generate(
	ctx context.Context, outputRoot string, tenant *model.Tenant, folder *model.FolderConfig,
) (*Result, error) {
	path, err := ArtifactPath(outputRoot, tenant, folder.Name)
	if err != nil {
		return nil, err
	}

	records, err := g.records.ActiveRecords(ctx, tenant.ID, folder.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load active records: %w", err)
	}

	body, err := g.Render(folder.Template, records)
	if err != nil {
		return nil, err
	}

	changed, err := writeAtomic(path, body)
	if err != nil {
		return nil, err
	}

	slog.Debug("Artifact generated",
		"tenant", tenant.Key,
		"folder", folder.Name,
		"path", path,
		"records", len(records),
		"changed", changed)

	return &Result{Path: path, Records: len(records), Bytes: len(body), Changed: changed}, nil
}

// Render produces the artifact bytes for an ordered record set. A cached fragment
// is reused only when it was rendered with the same template type; any other
// record is rendered again through the folder template.
func (g *defaultGenerator) Render(templateType string, records []*model.Record) ([]byte, error) {
	fragments := make([]string, 0, len(records))
	for _, rec := range records {
		fragment := rec.Fragment
		if fragment == "" || rec.FragmentTemplate != templateType {
			var err error
			fragment, err = g.renderer.Fragment(templateType, rec)
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", rec.ExternalID, err)
			}
		}
		fragments = append(fragments, fragment)
	}

	body, err := g.renderer.Wrap(templateType, records, fragments)
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}
