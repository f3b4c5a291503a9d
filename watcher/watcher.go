package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"anycoder/logger"
	"anycoder/types"
	"anycoder/utils"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 150 * time.Millisecond

type Config struct {
	Debounce   time.Duration // quiet period before a write is reported
	BufferSize int           // capacity of the events channel
}

// Watcher reports create, modify and remove events for every file below a
// root directory. Directories created after Start are watched as they appear.
// Writes are debounced per path so a burst of saves becomes one modify event.
type Watcher struct {
	root   string
	config Config
	fsw    *fsnotify.Watcher
	events chan types.FileEvent

	// fire carries expired debounce timers back to the run loop, which is
	// the only sender on events
	fire    chan firing
	pending map[string]pendingWrite
	gen     uint64
	done    chan struct{}
}

// pendingWrite is the debounce timer of one path. gen identifies the timer
// so a fire queued before a reset can be told apart from the current one.
type pendingWrite struct {
	timer *time.Timer
	gen   uint64
}

type firing struct {
	path string
	gen  uint64
}

// New creates a watcher for root and registers all directories below it
func New(root string, config Config) (*Watcher, error) {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 64
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		root:    abs,
		config:  config,
		fsw:     fsw,
		events:  make(chan types.FileEvent, config.BufferSize),
		fire:    make(chan firing, config.BufferSize),
		pending: make(map[string]pendingWrite),
		done:    make(chan struct{}),
	}

	if err := w.addRecursive(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the absolute watched directory
func (w *Watcher) Root() string { return w.root }

// Events returns the channel of debounced events. It is closed when Run returns.
func (w *Watcher) Events() <-chan types.FileEvent { return w.events }

// Run delivers events until ctx is done or the underlying watcher fails
func (w *Watcher) Run(ctx context.Context) error {
	defer w.shutdown()
	logger.Info("watching files at %s", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logger.Warn("watcher: event overflow, some changes were missed")
				continue
			}
			logger.Error("watcher: %v", err)

		case f := <-w.fire:
			w.fired(ctx, f)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if w.ignored(ev.Name) {
		return
	}
	logger.Debug("watcher: %s", ev)

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				logger.Warn("watcher: %v", err)
			}
			return
		}
		w.emit(ctx, types.FileEvent{Path: ev.Name, Kind: types.EventCreate})
		// editors that save by renaming a temp file only produce a create
		w.debounce(ev.Name)

	case ev.Has(fsnotify.Write):
		w.debounce(ev.Name)

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if p, ok := w.pending[ev.Name]; ok {
			p.timer.Stop()
			delete(w.pending, ev.Name)
		}
		w.emit(ctx, types.FileEvent{Path: ev.Name, Kind: types.EventRemove})
	}
}

func (w *Watcher) debounce(path string) {
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}
	w.gen++
	f := firing{path: path, gen: w.gen}
	timer := time.AfterFunc(w.config.Debounce, func() {
		select {
		case w.fire <- f:
		case <-w.done:
		}
	})
	w.pending[path] = pendingWrite{timer: timer, gen: f.gen}
}

// fired reports a modify for an expired timer unless a later write to the
// same path replaced it or the path was removed meanwhile.
func (w *Watcher) fired(ctx context.Context, f firing) {
	p, ok := w.pending[f.path]
	if !ok || p.gen != f.gen {
		return
	}
	delete(w.pending, f.path)
	w.emit(ctx, types.FileEvent{Path: f.path, Kind: types.EventModify})
}

func (w *Watcher) emit(ctx context.Context, ev types.FileEvent) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// the directory may be gone again by the time we walk it
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		logger.Debug("watcher: added %s", utils.RelPath(w.root, path))
		return nil
	})
}

// ignored checks path relative to the root, so a root that itself lives
// below e.g. a build directory is still watched.
func (w *Watcher) ignored(path string) bool {
	rel := utils.RelPath(w.root, path)
	if rel == "." {
		return false
	}
	return utils.IsIgnored(rel)
}

func (w *Watcher) shutdown() {
	close(w.done)
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.fsw.Close()
	close(w.events)
}
