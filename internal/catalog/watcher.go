package catalog

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const syncDebounce = 200 * time.Millisecond

// ChangeCallback is called after a watcher-driven sync that changed the
// index.
type ChangeCallback func(Changes)

// Watch starts an fsnotify watcher on the catalog root and re-syncs the
// index after out-of-band edits until ctx is cancelled. Bursts of events
// (an import writes many files) collapse into one sync.
//
// New directories created at runtime are automatically added to the watch
// list.
func Watch(ctx context.Context, idx *Index, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := idx.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var syncTimer *time.Timer
	var syncCh <-chan time.Time
	scheduleSync := func() {
		if syncTimer == nil {
			syncTimer = time.NewTimer(syncDebounce)
			syncCh = syncTimer.C
		} else {
			syncTimer.Reset(syncDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if syncTimer != nil {
				syncTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-syncCh:
			changes, err := idx.Sync(ctx)
			if err != nil {
				logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
				continue
			}
			if !changes.Empty() && cb != nil {
				cb(changes)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(ev.Name), ".") {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleSync()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
