// Package filewatch reloads local documents when they change on disk.
package filewatch

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// DefaultDelay absorbs the burst of events editors emit while saving.
const DefaultDelay = 500 * time.Millisecond

// Watcher calls a handler once per burst of writes to a watched file.
type Watcher struct {
	fs    *fsnotify.Watcher
	delay time.Duration

	mu       sync.Mutex
	handlers map[string]func() // absolute path → debounced handler
	dirs     map[string]bool
	done     chan struct{}
	closed   bool
}

func New(delay time.Duration) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultDelay
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		fs:       fw,
		delay:    delay,
		handlers: make(map[string]func()),
		dirs:     make(map[string]bool),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch registers onChange for path. The parent directory is watched so
// that editors replacing the file by rename are seen too.
func (w *Watcher) Watch(path string, onChange func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("bad path %q: %w", path, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("watcher closed")
	}
	dir := filepath.Dir(abs)
	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch dir %q: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	debounced := debounce.New(w.delay)
	w.handlers[abs] = func() { debounced(onChange) }
	return nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			w.mu.Lock()
			h := w.handlers[abs]
			w.mu.Unlock()
			if h != nil {
				h()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("filewatch: error: %v", err)
		}
	}
}

// Close stops watching. Pending debounced calls may still fire once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	err := w.fs.Close()
	<-w.done
	return err
}
