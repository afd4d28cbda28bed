package bunker

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher notifies on external changes to the bunker file while engaged,
// so the lifecycle controller can decide whether to re-engage against
// the new contents or flag drift. Watching the containing directory
// rather than the file itself survives editors that write-then-rename
// instead of writing in place.
type Watcher struct {
	fw   *fsnotify.Watcher
	path string
}

// NewWatcher starts watching path's directory. Events for other files in
// the same directory are filtered out before being delivered.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("bunker: starting watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("bunker: watching %s: %w", dir, err)
	}
	return &Watcher{fw: fw, path: path}, nil
}

// Events returns a channel of fsnotify events affecting exactly the
// bunker file. The channel closes when Close is called.
func (w *Watcher) Events() <-chan fsnotify.Event {
	out := make(chan fsnotify.Event)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-w.fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == filepath.Clean(w.path) {
					out <- ev
				}
			case _, ok := <-w.fw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fw.Close()
}
