package securestore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn whenever the file backing key is created, rewritten,
// renamed or removed, including by other processes. It returns once the
// watcher is installed; watching stops when ctx is done. The callback also
// fires for this store's own writes, so it should be idempotent.
func (s *Store) Watch(ctx context.Context, key string, fn func(context.Context)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("securestore: watch: %w", err)
	}
	// Watch the directory: atomic writes replace the file, which would drop a
	// watch placed on the file itself.
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("securestore: watch %s: %w", s.dir, err)
	}

	target := filepath.Clean(s.path(key))
	go func() {
		defer func() {
			_ = w.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				s.log.DebugContext(ctx, "session store file changed", slog.String("op", ev.Op.String()))
				fn(ctx)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.DebugContext(ctx, "session store watch error", slog.String("err", err.Error()))
			}
		}
	}()
	return nil
}
