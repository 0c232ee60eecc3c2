// Package models defines the domain types shared across Stencil packages.
package models

import "time"

// FileMetadata is a lightweight description of one file in a storage tree.
type FileMetadata struct {
	Path      string    `json:"path"` // slash-separated, relative to the tree root
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
