package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/stencil/internal/checksum"
	"github.com/starford/stencil/internal/models"
)

// ErrOutsideRoot is returned when a path resolves outside the tree root.
var ErrOutsideRoot = errors.New("path escapes storage root")

const tmpPrefix = ".stencil-tmp-"

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// EnsureFS creates root (and parents) if needed and returns an FS over it.
func EnsureFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return NewFS(root)
}

// Root returns the absolute tree root.
func (f *FS) Root() string {
	return f.root
}

// Resolve maps a relative path against the root and rejects any result
// that escapes it (directory traversal).
func (f *FS) Resolve(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	rel = filepath.FromSlash(rel)
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("storage: absolute path %q: %w", rel, ErrOutsideRoot)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, filepath.Clean(rel)))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if abs != f.root && !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: %q: %w", rel, ErrOutsideRoot)
	}
	return abs, nil
}

// List walks dir (relative to root) and returns metadata for every regular
// file, skipping in-flight temp files. Paths are slash-separated.
func (f *FS) List(dir string) ([]models.FileMetadata, error) {
	base, err := f.Resolve(dir)
	if err != nil {
		return nil, err
	}
	var out []models.FileMetadata
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !d.Type().IsRegular() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		out = append(out, models.FileMetadata{
			Path:      filepath.ToSlash(rel),
			Size:      info.Size(),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.Resolve(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: cannot write to root")
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("storage: chmod: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a file or a whole directory tree. Deleting the root itself
// is refused.
func (f *FS) Delete(path string) error {
	abs, err := f.Resolve(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: refusing to delete root")
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// Rename moves a file or directory tree within the root. The destination's
// parent directories are created; an existing destination directory is an
// error.
func (f *FS) Rename(from, to string) error {
	src, err := f.Resolve(from)
	if err != nil {
		return err
	}
	dst, err := f.Resolve(to)
	if err != nil {
		return err
	}
	if src == f.root || dst == f.root {
		return fmt.Errorf("storage: cannot rename root")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("storage: rename %s: %w", from, err)
	}
	return nil
}
