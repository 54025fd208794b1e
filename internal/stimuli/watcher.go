package stimuli

import (
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"pairlab/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads a stimulus file into a Store whenever it changes on disk.
// The parent directory is watched so editors that replace the file by rename
// are picked up. A file that fails to parse leaves the previous set in place.
type Watcher struct {
	path     string
	store    *Store
	logger   *logging.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
	onReload func(Set, error)

	mu     sync.Mutex
	timer  *time.Timer
	done   chan struct{}
	closed bool
}

type WatcherOptions struct {
	Debounce time.Duration
	Logger   *logging.Logger
	// OnReload observes every reload attempt; tests use it to synchronize.
	OnReload func(Set, error)
}

func Watch(path string, store *Store, options WatcherOptions) (*Watcher, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := source.Add(filepath.Dir(absolute)); err != nil {
		_ = source.Close()
		return nil, err
	}

	debounce := options.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	watcher := &Watcher{
		path:     absolute,
		store:    store,
		logger:   options.Logger.Category("stimuli"),
		debounce: debounce,
		watcher:  source,
		onReload: options.OnReload,
		done:     make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("stimuli watch error", map[string]string{
				"path":  w.path,
				"error": err.Error(),
			})
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.timer = nil
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}

	set, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("stimuli reload failed; keeping previous set", map[string]string{
			"path":  w.path,
			"error": err.Error(),
		})
	} else {
		w.store.Replace(set)
		w.logger.Info("stimuli reloaded", map[string]string{
			"path":    w.path,
			"name":    set.Name,
			"targets": strconv.Itoa(len(set.Targets)),
		})
	}
	if w.onReload != nil {
		w.onReload(set, err)
	}
}
