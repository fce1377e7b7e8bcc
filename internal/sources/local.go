package sources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/civicportal/portal-sync/internal/model"
)

// localConnector serves a directory on disk as a folder container
type localConnector struct {
	root     string
	maxBytes int64
}

// NewLocalConnector creates a connector resolving container IDs against root
func NewLocalConnector(root string, maxBytes int64) Connector {
	return &localConnector{
		root:     root,
		maxBytes: maxBytes,
	}
}

func (c *localConnector) dir(containerID string) (string, error) {
	cleaned := filepath.Clean(containerID)
	if containerID == "" || !filepath.IsLocal(cleaned) {
		return "", &ConfigError{ContainerID: containerID, Reason: "directory must be relative to the local source root"}
	}
	return filepath.Join(c.root, cleaned), nil
}

// List returns the regular, non-hidden files of the directory.
// The external ID is the path relative to the source root.
func (c *localConnector) List(ctx context.Context, containerID string) ([]model.ItemRef, error) {
	dir, err := c.dir(containerID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{ContainerID: containerID, Reason: "failed to read directory", Err: err}
	}

	items := make([]model.ItemRef, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Stat
			continue
		}

		name := entry.Name()
		mimeType := mimeForName(name)
		items = append(items, model.ItemRef{
			ExternalID:   filepath.ToSlash(filepath.Join(filepath.Clean(containerID), name)),
			Name:         name,
			Kind:         KindFor(mimeType, name),
			MimeType:     mimeType,
			LastModified: info.ModTime().UTC(),
			Size:         info.Size(),
		})
	}

	return items, nil
}

// Fetch reads the file when its kind carries content
func (c *localConnector) Fetch(_ context.Context, ref model.ItemRef) (*model.RawItem, error) {
	path, err := c.dir(filepath.FromSlash(ref.ExternalID))
	if err != nil {
		return nil, &NotFoundError{ExternalID: ref.ExternalID}
	}

	//nolint:gosec // Path is confined to the configured source root
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{ExternalID: ref.ExternalID}
		}
		return nil, fmt.Errorf("failed to open %s: %w", ref.ExternalID, err)
	}
	defer func() { _ = f.Close() }()

	item := &model.RawItem{Ref: ref}
	if !hasTextContent(ref) {
		return item, nil
	}

	content, err := readCapped(f, c.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref.ExternalID, err)
	}
	item.Content = content
	return item, nil
}
