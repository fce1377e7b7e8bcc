package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// Client defines the interface for Git operations
type Client interface {
	// Clone clones a repository into memory with the given configuration
	Clone(ctx context.Context, config *CloneConfig) (*RepositoryInfo, error)

	// ListFiles returns the regular, non-hidden files directly inside dir at the checked out revision.
	// An empty dir or "." is the repository root.
	ListFiles(repoInfo *RepositoryInfo, dir string) ([]FileEntry, error)

	// GetFileContent retrieves the content of a file at the checked out revision
	GetFileContent(repoInfo *RepositoryInfo, path string) ([]byte, error)

	// Cleanup releases the memory held by a cloned repository
	Cleanup(ctx context.Context, repoInfo *RepositoryInfo) error
}

// defaultGitClient implements Client using go-git
type defaultGitClient struct{}

// NewDefaultGitClient creates a new defaultGitClient
func NewDefaultGitClient() Client {
	return &defaultGitClient{}
}

// Clone clones a repository with the given configuration
func (*defaultGitClient) Clone(ctx context.Context, config *CloneConfig) (*RepositoryInfo, error) {
	if config == nil || config.URL == "" {
		return nil, fmt.Errorf("repository URL is required")
	}

	cloneOptions := &git.CloneOptions{
		URL: config.URL,
	}

	if config.Auth != nil && config.Auth.Username != "" {
		cloneOptions.Auth = &githttp.BasicAuth{
			Username: config.Auth.Username,
			Password: config.Auth.Password,
		}
		slog.Debug("Using Git HTTP Basic authentication", "username", config.Auth.Username)
	}

	// Commit clones need the history that contains the commit
	if config.Commit == "" {
		cloneOptions.Depth = 1
		if config.Branch != "" {
			cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(config.Branch)
			cloneOptions.SingleBranch = true
		} else if config.Tag != "" {
			cloneOptions.ReferenceName = plumbing.NewTagReferenceName(config.Tag)
			cloneOptions.SingleBranch = true
		}
	}

	// go-git wants separate filesystems for the storer and the checked out files
	worktreeFs := newLimitedFs(memfs.New(), defaultMaxFiles, defaultTotalFileSize)
	storerFs := newLimitedFs(memfs.New(), defaultMaxFiles, defaultTotalFileSize)
	storerCache := cache.NewObjectLRUDefault()
	storer := filesystem.NewStorage(storerFs, storerCache)

	repo, err := git.CloneContext(ctx, storer, worktreeFs, cloneOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}

	repoInfo := &RepositoryInfo{
		Repository:       repo,
		RemoteURL:        config.URL,
		storerFilesystem: storerFs,
		objectCache:      storerCache,
	}

	if config.Commit != "" {
		workTree, err := repo.Worktree()
		if err != nil {
			return nil, fmt.Errorf("failed to get worktree: %w", err)
		}

		err = workTree.Checkout(&git.CheckoutOptions{
			Hash: plumbing.NewHash(config.Commit),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to checkout commit %s: %w", config.Commit, err)
		}
	}

	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD reference: %w", err)
	}
	repoInfo.Head = ref.Hash()
	if ref.Name().IsBranch() {
		repoInfo.Branch = ref.Name().Short()
	}

	slog.Debug("Repository cloned", "url", config.URL, "head", repoInfo.Head.String())
	return repoInfo, nil
}

// headTree returns the tree of the checked out commit
func headTree(repoInfo *RepositoryInfo) (*object.Tree, error) {
	if repoInfo == nil || repoInfo.Repository == nil {
		return nil, fmt.Errorf("repository is nil")
	}

	commit, err := repoInfo.Repository.CommitObject(repoInfo.Head)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit object: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	return tree, nil
}

// ListFiles returns the regular files directly inside dir
func (*defaultGitClient) ListFiles(repoInfo *RepositoryInfo, dir string) ([]FileEntry, error) {
	tree, err := headTree(repoInfo)
	if err != nil {
		return nil, err
	}

	dir = strings.Trim(path.Clean("/"+dir), "/")
	if dir != "" {
		tree, err = tree.Tree(dir)
		if err != nil {
			if errors.Is(err, object.ErrDirectoryNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrPathNotFound, dir)
			}
			return nil, fmt.Errorf("failed to get directory %s: %w", dir, err)
		}
	}

	files := make([]FileEntry, 0, len(tree.Entries))
	for i := range tree.Entries {
		entry := &tree.Entries[i]
		if entry.Mode != filemode.Regular && entry.Mode != filemode.Executable {
			continue
		}
		if strings.HasPrefix(entry.Name, ".") {
			continue
		}

		file, err := tree.TreeEntryFile(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %s: %w", entry.Name, err)
		}
		files = append(files, FileEntry{
			Path: path.Join(dir, entry.Name),
			Name: entry.Name,
			Hash: entry.Hash.String(),
			Size: file.Size,
		})
	}
	return files, nil
}

// GetFileContent retrieves the content of a file from the repository
func (*defaultGitClient) GetFileContent(repoInfo *RepositoryInfo, filePath string) ([]byte, error) {
	tree, err := headTree(repoInfo)
	if err != nil {
		return nil, err
	}

	file, err := tree.File(strings.TrimPrefix(filePath, "/"))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, filePath)
		}
		return nil, fmt.Errorf("failed to get file %s: %w", filePath, err)
	}

	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	return []byte(content), nil
}

// Cleanup releases the caches and in-memory filesystems of a clone
func (*defaultGitClient) Cleanup(_ context.Context, repoInfo *RepositoryInfo) error {
	if repoInfo == nil || repoInfo.Repository == nil {
		return fmt.Errorf("repository is nil")
	}

	if repoInfo.objectCache != nil {
		repoInfo.objectCache.Clear()
	}

	worktree, err := repoInfo.Repository.Worktree()
	if err == nil && worktree.Filesystem != nil {
		_ = util.RemoveAll(worktree.Filesystem, "/")
	}

	if repoInfo.storerFilesystem != nil {
		_ = util.RemoveAll(repoInfo.storerFilesystem, "/")
	}

	repoInfo.objectCache = nil
	repoInfo.storerFilesystem = nil
	repoInfo.Repository = nil
	return nil
}
