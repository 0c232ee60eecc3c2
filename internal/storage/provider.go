// Package storage defines a root-confined file tree used for build working
// directories and the template catalog.
package storage

import "github.com/starford/stencil/internal/models"

// Provider is the interface for file operations relative to a tree root.
type Provider interface {
	// Root returns the absolute path of the tree root.
	Root() string
	// Resolve maps a relative path to an absolute one, rejecting escapes.
	Resolve(path string) (string, error)
	// List returns metadata for every regular file under dir, in lexical order.
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Rename moves a file or directory tree to a new path inside the root.
	Rename(from, to string) error
	// Delete removes the file or directory tree at path.
	Delete(path string) error
}
