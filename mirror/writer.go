// Package mirror persists fetched resources under their URL-derived paths.
package mirror

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/lukemcguire/linksync/urlutil"
)

const (
	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o644
)

// Resource is a fetched response body waiting to be written.
type Resource struct {
	SourceURL   string
	Body        []byte
	ContentType string
}

// WriteError reports a local persistence failure for one resource.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Writer materializes resources on a filesystem. All paths are relative to
// the filesystem root, so callers usually hand in a base-path filesystem
// scoped to one link's mirror directory.
type Writer struct {
	fs afero.Fs
}

// NewWriter creates a Writer over the given filesystem.
func NewWriter(fsys afero.Fs) *Writer {
	return &Writer{fs: fsys}
}

// NewDirWriter creates a Writer rooted at dir on the OS filesystem.
func NewDirWriter(dir string) *Writer {
	return NewWriter(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// Persist writes res to its mapped path, creating parent directories as
// needed and overwriting any existing file. It returns the relative path
// written. Safe for concurrent use.
func (w *Writer) Persist(res Resource) (string, error) {
	target, err := urlutil.LocalPath(res.SourceURL)
	if err != nil {
		return "", err
	}

	// A URL like /docs may be fetched after /docs/x created the directory.
	if info, statErr := w.fs.Stat(target); statErr == nil && info.IsDir() {
		target = filepath.Join(target, urlutil.IndexFile)
	}

	if err := w.ensureDir(filepath.Dir(target)); err != nil {
		return target, &WriteError{Path: target, Err: err}
	}

	if err := afero.WriteFile(w.fs, target, res.Body, filePerm); err != nil {
		return target, &WriteError{Path: target, Err: err}
	}
	return target, nil
}

// ensureDir creates dir and its parents. Losing a creation race to another
// writer is success.
func (w *Writer) ensureDir(dir string) error {
	err := w.fs.MkdirAll(dir, dirPerm)
	if err == nil || errors.Is(err, fs.ErrExist) {
		if info, statErr := w.fs.Stat(dir); statErr == nil && !info.IsDir() {
			return fmt.Errorf("create directory %s: path is a file", dir)
		}
		return nil
	}
	return fmt.Errorf("create directory %s: %w", dir, err)
}
