package git

import (
	"fmt"
	"os"
	"sync/atomic"

	billy "github.com/go-git/go-billy/v5"
)

// Clone limits per filesystem
const (
	defaultMaxFiles      = 10 * 1000
	defaultTotalFileSize = 100 * 1024 * 1024
)

// cloneBudget is shared by a filesystem and the files it creates
type cloneBudget struct {
	maxFiles int64
	maxBytes int64
	files    atomic.Int64
	bytes    atomic.Int64
}

// limitedFs wraps a billy filesystem and fails writes once the clone
// exceeds its file count or total size budget
type limitedFs struct {
	billy.Filesystem
	budget *cloneBudget
}

func newLimitedFs(fs billy.Filesystem, maxFiles, maxBytes int64) billy.Filesystem {
	return &limitedFs{
		Filesystem: fs,
		budget:     &cloneBudget{maxFiles: maxFiles, maxBytes: maxBytes},
	}
}

// Create creates a file, counting it against the file budget
func (l *limitedFs) Create(filename string) (billy.File, error) {
	return l.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

// OpenFile opens a file; files opened for creation count against the file budget
func (l *limitedFs) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&os.O_CREATE != 0 {
		if n := l.budget.files.Add(1); n > l.budget.maxFiles {
			return nil, fmt.Errorf("%w: more than %d files", ErrRepositoryTooLarge, l.budget.maxFiles)
		}
	}

	f, err := l.Filesystem.OpenFile(filename, flag, perm)
	if err != nil {
		return nil, err
	}
	return &limitedFile{File: f, budget: l.budget}, nil
}

// TempFile creates a temporary file, counting it against the file budget
func (l *limitedFs) TempFile(dir, prefix string) (billy.File, error) {
	if n := l.budget.files.Add(1); n > l.budget.maxFiles {
		return nil, fmt.Errorf("%w: more than %d files", ErrRepositoryTooLarge, l.budget.maxFiles)
	}
	f, err := l.Filesystem.TempFile(dir, prefix)
	if err != nil {
		return nil, err
	}
	return &limitedFile{File: f, budget: l.budget}, nil
}

// limitedFile counts written bytes against the size budget
type limitedFile struct {
	billy.File
	budget *cloneBudget
}

func (f *limitedFile) Write(p []byte) (int, error) {
	if n := f.budget.bytes.Add(int64(len(p))); n > f.budget.maxBytes {
		return 0, fmt.Errorf("%w: more than %d bytes", ErrRepositoryTooLarge, f.budget.maxBytes)
	}
	return f.File.Write(p)
}
