package sources

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/civicportal/portal-sync/internal/git"
	"github.com/civicportal/portal-sync/internal/model"
)

// gitConnector serves directories of a git repository as folder containers.
// The repository is cloned into memory on first use and kept until Close, so
// every folder of a tenant reads the same revision during a cycle.
type gitConnector struct {
	client   git.Client
	clone    *git.CloneConfig
	maxBytes int64

	mu   sync.Mutex
	repo *git.RepositoryInfo
}

// NewGitConnector creates a connector for the repository described by clone
func NewGitConnector(client git.Client, clone *git.CloneConfig, maxBytes int64) Connector {
	return &gitConnector{
		client:   client,
		clone:    clone,
		maxBytes: maxBytes,
	}
}

// repository returns the clone, cloning on first use. Callers hold c.mu.
func (c *gitConnector) repository(ctx context.Context, containerID string) (*git.RepositoryInfo, error) {
	if c.repo != nil {
		return c.repo, nil
	}

	repo, err := c.client.Clone(ctx, c.clone)
	if err != nil {
		if isGitConfigError(err) {
			return nil, &ConfigError{ContainerID: containerID, Reason: "repository is not usable", Err: err}
		}
		return nil, err
	}
	c.repo = repo
	return repo, nil
}

func isGitConfigError(err error) bool {
	var noRef gogit.NoMatchingRefSpecError
	return errors.Is(err, transport.ErrRepositoryNotFound) ||
		errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.As(err, &noRef)
}

// List returns the regular, non-hidden files of the directory at the cloned revision.
// The external ID is the path from the repository root and the checksum is the blob hash.
func (c *gitConnector) List(ctx context.Context, containerID string) ([]model.ItemRef, error) {
	if containerID == "" || !filepath.IsLocal(filepath.FromSlash(containerID)) {
		return nil, &ConfigError{ContainerID: containerID, Reason: "directory must be relative to the repository root"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	repo, err := c.repository(ctx, containerID)
	if err != nil {
		return nil, err
	}

	files, err := c.client.ListFiles(repo, containerID)
	if err != nil {
		if errors.Is(err, git.ErrPathNotFound) {
			return nil, &ConfigError{ContainerID: containerID, Reason: "directory not found in repository", Err: err}
		}
		return nil, fmt.Errorf("failed to list %s: %w", containerID, err)
	}

	items := make([]model.ItemRef, 0, len(files))
	for _, f := range files {
		mimeType := mimeForName(f.Name)
		items = append(items, model.ItemRef{
			ExternalID: f.Path,
			Name:       f.Name,
			Kind:       KindFor(mimeType, f.Name),
			MimeType:   mimeType,
			Size:       f.Size,
			Checksum:   f.Hash,
		})
	}
	return items, nil
}

// Fetch reads the file from the clone when its kind carries content
func (c *gitConnector) Fetch(ctx context.Context, ref model.ItemRef) (*model.RawItem, error) {
	item := &model.RawItem{Ref: ref}
	if !hasTextContent(ref) {
		return item, nil
	}
	if ref.Size > c.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrContentTooLarge, c.maxBytes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	repo, err := c.repository(ctx, filepath.ToSlash(filepath.Dir(ref.ExternalID)))
	if err != nil {
		return nil, err
	}

	content, err := c.client.GetFileContent(repo, ref.ExternalID)
	if err != nil {
		if errors.Is(err, git.ErrPathNotFound) {
			return nil, &NotFoundError{ExternalID: ref.ExternalID}
		}
		return nil, fmt.Errorf("failed to read %s: %w", ref.ExternalID, err)
	}
	if int64(len(content)) > c.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrContentTooLarge, c.maxBytes)
	}
	item.Content = content
	return item, nil
}

// Close releases the in-memory clone
func (c *gitConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.repo == nil {
		return nil
	}
	err := c.client.Cleanup(context.Background(), c.repo)
	c.repo = nil
	return err
}
