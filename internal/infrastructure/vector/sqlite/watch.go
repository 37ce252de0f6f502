package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/kirillkom/complaints-rag/internal/infrastructure/storage/localfs"
)

// Watch calls onSwap with the new build id whenever another process repoints
// CURRENT. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, onSwap func(ctx context.Context, buildID string)) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	layout := localfs.Existing(s.dir)
	last, _ := layout.Current()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != localfs.CurrentFile || event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			id, err := layout.Current()
			if err != nil || id == last {
				continue
			}
			last = id
			slog.Info("index_pointer_changed", "dir", s.dir, "build_id", id)
			onSwap(ctx, id)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("index_watch_error", "dir", s.dir, "error", err)
		}
	}
}
