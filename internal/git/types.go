// Package git clones content repositories into memory and reads files from
// their checked out revision.
package git

import (
	"errors"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
)

var (
	// ErrPathNotFound is returned when a directory or file does not exist at the checked out revision
	ErrPathNotFound = errors.New("path not found in repository")

	// ErrRepositoryTooLarge is returned when a clone exceeds the in-memory limits
	ErrRepositoryTooLarge = errors.New("repository exceeds clone limits")
)

// CloneConfig contains configuration for cloning a repository
type CloneConfig struct {
	// URL is the repository URL to clone
	URL string

	// Branch, Tag and Commit select the revision; at most one should be set
	Branch string
	Tag    string
	Commit string

	// Auth enables HTTP basic authentication (optional)
	Auth *AuthConfig
}

// AuthConfig holds HTTP basic credentials
type AuthConfig struct {
	Username string
	Password string
}

// RepositoryInfo describes a cloned repository
type RepositoryInfo struct {
	// Repository is the go-git repository instance
	Repository *git.Repository

	// Branch is the checked out branch name, empty for detached heads
	Branch string

	// RemoteURL is the remote repository URL
	RemoteURL string

	// Head is the checked out commit
	Head plumbing.Hash

	// storerFilesystem holds the in-memory object database; it is released by Cleanup
	storerFilesystem billy.Filesystem

	// objectCache holds decompressed objects; it is cleared by Cleanup
	objectCache cache.Object
}

// FileEntry is a regular file of a repository directory
type FileEntry struct {
	// Path is the slash-separated path from the repository root
	Path string

	// Name is the base name of the file
	Name string

	// Hash is the blob hash, which changes whenever the content does
	Hash string

	// Size is the blob size in bytes
	Size int64
}
