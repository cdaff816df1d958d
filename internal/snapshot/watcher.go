package snapshot

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Watcher reports writes to snapshot files under a directory so a refresh can
// run before the next tick.
type Watcher struct {
	fsw     *fsnotify.Watcher
	dir     string
	pattern string
	changes chan string
}

// NewWatcher watches dir. Only paths (relative to dir) matching the
// doublestar pattern are reported; an empty pattern means "*.json".
func NewWatcher(dir, pattern string) (*Watcher, error) {
	if pattern == "" {
		pattern = "*.json"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{
		fsw:     fsw,
		dir:     abs,
		pattern: pattern,
		changes: make(chan string, 16),
	}, nil
}

// Changes delivers the relative path of each matching write or create.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Matches reports whether a path under the watched dir passes the pattern.
func (w *Watcher) Matches(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// Start forwards events until ctx is cancelled. It closes Changes on return.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.changes)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !w.Matches(ev.Name) {
				continue
			}
			rel, _ := filepath.Rel(w.dir, ev.Name)
			select {
			case w.changes <- rel:
			default:
				// A refresh is already pending.
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("snapshot watcher error", "dir", w.dir, "err", err)
		}
	}
}
