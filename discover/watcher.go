package discover

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher emits document paths when files under a directory are
// written or created. Events are debounced so a file being copied in
// surfaces once, after writes settle.
type Watcher struct {
	Events <-chan string

	fw       *fsnotify.Watcher
	debounce time.Duration
	out      chan string
	done     chan struct{}
	once     sync.Once
}

// NewWatcher watches dir for supported document changes. debounce
// controls how long a path must stay quiet before it is emitted;
// zero means 2 seconds.
func NewWatcher(dir string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		fw:       fw,
		debounce: debounce,
		out:      make(chan string, 16),
		done:     make(chan struct{}),
	}
	w.Events = w.out
	go w.loop()
	slog.Info("discover: watching directory", "dir", dir, "debounce", debounce)
	return w, nil
}

func (w *Watcher) loop() {
	// pending maps a path to its debounce deadline.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	defer close(w.out)

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !SupportedExt(ev.Name) {
				continue
			}
			pending[ev.Name] = time.Now().Add(w.debounce)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("discover: watch error", "error", err)

		case now := <-ticker.C:
			for path, deadline := range pending {
				if now.After(deadline) {
					delete(pending, path)
					select {
					case w.out <- path:
					case <-w.done:
						return
					}
				}
			}
		}
	}
}

// Close releases the underlying filesystem watcher and closes Events.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}
