package pipeline

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/starford/stencil/internal/storage"
)

// zipEpoch is stamped on every entry so identical trees zip to identical
// bytes.
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// ZipDir archives every file under root with slash-separated relative
// names in lexical order.
func ZipDir(root string) ([]byte, error) {
	fs, err := storage.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("pipeline: zip: %w", err)
	}
	files, err := fs.List("")
	if err != nil {
		return nil, fmt.Errorf("pipeline: zip: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		data, err := fs.Read(f.Path)
		if err != nil {
			return nil, fmt.Errorf("pipeline: zip: %w", err)
		}
		hdr := &zip.FileHeader{Name: f.Path, Method: zip.Deflate, Modified: zipEpoch}
		hdr.SetMode(0o644)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("pipeline: zip entry %s: %w", f.Path, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("pipeline: zip entry %s: %w", f.Path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("pipeline: zip close: %w", err)
	}
	return buf.Bytes(), nil
}
