package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"anycoder/coder"
	"anycoder/logger"
	"anycoder/metrics"
	"anycoder/patch"
	"anycoder/text"
	"anycoder/types"
	"anycoder/utils"

	"github.com/pmezard/go-difflib/difflib"
)

// Autocompleter produces the patched buffer for a cursor marker.
// Implemented by coder.Coder.
type Autocompleter interface {
	Autocomplete(ctx context.Context, original, path string, cursor int) (*coder.Result, error)
}

// Notifier is told when the engine rewrote a file on disk
type Notifier interface {
	FileChanged(path string)
}

// Recorder stores the outcome of every autocomplete.
// Implemented by metrics.History.
type Recorder interface {
	Record(entry metrics.Entry) error
}

var errSuperseded = errors.New("superseded by a newer change")

type EngineConfig struct {
	Root              string        // watched root, used to shorten paths in logs
	CompletionTimeout time.Duration // 0 = no engine-side limit
}

// Engine reacts to file events: a saved file containing the cursor marker is
// sent through the autocompleter and rewritten with the result.
type Engine struct {
	coder    Autocompleter
	store    *FileStateStore
	inflight *Registry
	config   EngineConfig
	now      func() time.Time

	mu       sync.RWMutex
	notifier Notifier
	history  Recorder

	mainCtx    context.Context
	mainCancel context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stopOnce   sync.Once
}

func NewEngine(c Autocompleter, config EngineConfig) *Engine {
	return &Engine{
		coder:    c,
		store:    NewFileStateStore(),
		inflight: NewRegistry(),
		config:   config,
		now:      time.Now,
	}
}

func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

func (e *Engine) SetHistory(h Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = h
}

// Start consumes events until ctx is done, events is closed or Stop is
// called. Each event is handled on its own goroutine.
func (e *Engine) Start(ctx context.Context, events <-chan types.FileEvent) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.mainCtx, e.mainCancel = context.WithCancel(ctx)
	e.wg.Add(1)
	e.mu.Unlock()

	go e.eventLoop(e.mainCtx, events)
	logger.Info("engine started")
}

// Stop cancels in-flight autocompletes and waits for running handlers
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		logger.Info("stopping engine...")

		e.mu.Lock()
		e.stopped = true
		if e.mainCancel != nil {
			e.mainCancel()
		}
		e.mu.Unlock()

		e.inflight.CancelAll()
		e.wg.Wait()
		logger.Info("engine stopped")
	})
}

func (e *Engine) eventLoop(ctx context.Context, events <-chan types.FileEvent) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				defer func() {
					if r := recover(); r != nil {
						logger.Error("panic handling %s: %v", event, r)
					}
				}()
				if err := e.HandleEvent(ctx, event); err != nil {
					logger.Warn("%s: %v", event, err)
				}
			}()
		}
	}
}

// HandleEvent dispatches a single file event
func (e *Engine) HandleEvent(ctx context.Context, event types.FileEvent) error {
	switch event.Kind {
	case types.EventCreate:
		e.HandleCreate(event.Path)
		return nil
	case types.EventRemove:
		e.HandleRemove(event.Path)
		return nil
	case types.EventModify:
		return e.HandleModify(ctx, event.Path)
	default:
		return fmt.Errorf("unknown event kind %d", event.Kind)
	}
}

func (e *Engine) HandleCreate(path string) {
	logger.Info("watcher:create %s", utils.RelPath(e.config.Root, path))
}

func (e *Engine) HandleRemove(path string) {
	logger.Info("watcher:remove %s", utils.RelPath(e.config.Root, path))
	unlock := e.store.Lock(path)
	defer unlock()
	e.store.Delete(path)
}

// HandleModify compares the file with the last content seen for it and, when
// it changed and contains the cursor marker, runs an autocomplete and writes
// the result back. On failure the file is left untouched. The file is read
// under the path lock so a handler never stores content older than what a
// concurrent handler already saw.
func (e *Engine) HandleModify(ctx context.Context, path string) error {
	defer logger.Trace("engine.HandleModify")()

	rel := utils.RelPath(e.config.Root, path)
	logger.Info("watcher:modify %s", rel)

	unlock := e.store.Lock(path)
	data, err := os.ReadFile(path)
	if err != nil {
		unlock()
		return fmt.Errorf("failed to read file: %w", err)
	}
	content := string(data)

	prev, seen := e.store.Get(path)
	if seen && prev.Content == content {
		unlock()
		return nil
	}
	logChange(rel, prev.Content, seen, content)
	e.store.Set(path, content)
	unlock()

	cursor := text.RuneIndex(content, text.CursorMarker)
	if cursor < 0 {
		logger.Debug("no %s found in %s", text.CursorMarker, rel)
		return nil
	}

	return e.autocomplete(ctx, path, content, cursor)
}

func (e *Engine) autocomplete(ctx context.Context, path, content string, cursor int) error {
	rel := utils.RelPath(e.config.Root, path)
	line, _ := text.OffsetToPoint(content, cursor)
	logger.Info("autocomplete %s at %d:%d", rel, line+1, text.DisplayColumn(content, cursor)+1)

	opCtx, token := e.inflight.Begin(ctx, path)
	defer e.inflight.Done(path, token)
	if e.config.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(opCtx, e.config.CompletionTimeout)
		defer cancel()
	}

	started := e.now()
	result, err := e.coder.Autocomplete(opCtx, content, path, cursor)
	if err == nil {
		err = e.commit(path, token, content, result.Content)
	}

	entry := metrics.Entry{
		Path:      path,
		StartedAt: started,
		Duration:  e.now().Sub(started),
		Outcome:   classifyOutcome(result, err),
	}
	if err == nil {
		entry.Edits = len(result.Edits)
	}
	e.record(entry)

	if err != nil {
		logger.Warn("failed to autocomplete %s: %v", rel, err)
		return nil
	}

	logger.Info("autocompleted %s with %d edit(s) in %v", rel, entry.Edits, entry.Duration)
	e.mu.RLock()
	notifier := e.notifier
	e.mu.RUnlock()
	if notifier != nil {
		notifier.FileChanged(path)
	}
	return nil
}

// commit writes updated to path if the operation is still current and the
// file still holds the content the autocomplete was computed from.
func (e *Engine) commit(path string, token uint64, original, updated string) error {
	unlock := e.store.Lock(path)
	defer unlock()

	if !e.inflight.IsCurrent(path, token) {
		return errSuperseded
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	current, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if string(current) != original {
		return errSuperseded
	}

	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	e.store.Set(path, updated)
	return nil
}

func (e *Engine) record(entry metrics.Entry) {
	e.mu.RLock()
	history := e.history
	e.mu.RUnlock()
	if history == nil {
		return
	}
	if err := history.Record(entry); err != nil {
		logger.Warn("failed to record history: %v", err)
	}
}

func classifyOutcome(result *coder.Result, err error) metrics.Outcome {
	var parseErr *patch.ParseError
	var boundsErr *text.BoundsError

	switch {
	case err == nil && result.Patch != nil && !result.Patch.Anchored:
		return metrics.OutcomeDegraded
	case err == nil:
		return metrics.OutcomeApplied
	case errors.Is(err, context.Canceled), errors.Is(err, errSuperseded):
		return metrics.OutcomeCanceled
	case errors.As(err, &parseErr):
		return metrics.OutcomeParseError
	case errors.As(err, &boundsErr):
		return metrics.OutcomeBoundsError
	case errors.Is(err, coder.ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTransportError
	default:
		return metrics.OutcomeError
	}
}

func logChange(rel, old string, seen bool, new string) {
	if !seen {
		logger.Info("file %s added (%d chars)", rel, text.RuneLen(new))
		return
	}
	logger.Info("file %s updated", rel)
	if !logger.Enabled(logger.LogLevelDebug) {
		return
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(new),
		FromFile: rel,
		ToFile:   rel,
		Context:  1,
	})
	if err != nil {
		logger.Debug("failed to diff %s: %v", rel, err)
		return
	}
	logger.Debug("change:\n%s", diff)
}
