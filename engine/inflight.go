package engine

import (
	"context"
	"sync"
)

type operation struct {
	token  uint64
	cancel context.CancelFunc
}

// Registry tracks the in-flight autocomplete per path. Beginning a new
// operation for a path cancels the one before it, and only the latest
// operation is current.
type Registry struct {
	mu   sync.Mutex
	ops  map[string]operation
	next uint64
}

func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]operation)}
}

// Begin starts an operation for path and returns its context and token
func (r *Registry) Begin(parent context.Context, path string) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.ops[path]; ok {
		prev.cancel()
	}
	r.next++
	r.ops[path] = operation{token: r.next, cancel: cancel}
	return ctx, r.next
}

// Done releases the operation. Superseded tokens were already cancelled by
// the Begin that replaced them.
func (r *Registry) Done(path string, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if op, ok := r.ops[path]; ok && op.token == token {
		op.cancel()
		delete(r.ops, path)
	}
}

// IsCurrent reports whether token is still the latest operation for path
func (r *Registry) IsCurrent(path string, token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[path]
	return ok && op.token == token
}

// CancelAll cancels every in-flight operation
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, op := range r.ops {
		op.cancel()
		delete(r.ops, path)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}
