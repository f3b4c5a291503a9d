package engine

import (
	"context"
	"testing"

	"anycoder/assert"
)

func TestRegistry_BeginCancelsPrevious(t *testing.T) {
	r := NewRegistry()

	ctx1, token1 := r.Begin(context.Background(), "a.go")
	ctx2, token2 := r.Begin(context.Background(), "a.go")

	assert.NotEqual(t, token1, token2, "distinct tokens")
	assert.ErrorIs(t, ctx1.Err(), context.Canceled, "first operation cancelled")
	assert.NoError(t, ctx2.Err(), "second operation running")
	assert.False(t, r.IsCurrent("a.go", token1), "first is stale")
	assert.True(t, r.IsCurrent("a.go", token2), "second is current")
}

func TestRegistry_PathsAreIndependent(t *testing.T) {
	r := NewRegistry()

	ctxA, tokenA := r.Begin(context.Background(), "a.go")
	_, tokenB := r.Begin(context.Background(), "b.go")

	assert.NoError(t, ctxA.Err(), "a not cancelled by b")
	assert.True(t, r.IsCurrent("a.go", tokenA), "a current")
	assert.True(t, r.IsCurrent("b.go", tokenB), "b current")
	assert.Equal(t, 2, r.Len(), "two in flight")
}

func TestRegistry_Done(t *testing.T) {
	r := NewRegistry()

	_, stale := r.Begin(context.Background(), "a.go")
	ctx, current := r.Begin(context.Background(), "a.go")

	r.Done("a.go", stale)
	assert.True(t, r.IsCurrent("a.go", current), "stale Done keeps current operation")
	assert.NoError(t, ctx.Err(), "current context untouched")

	r.Done("a.go", current)
	assert.False(t, r.IsCurrent("a.go", current), "released")
	assert.ErrorIs(t, ctx.Err(), context.Canceled, "context released")
	assert.Equal(t, 0, r.Len(), "empty registry")
}

func TestRegistry_CancelAll(t *testing.T) {
	r := NewRegistry()
	ctxA, _ := r.Begin(context.Background(), "a.go")
	ctxB, _ := r.Begin(context.Background(), "b.go")

	r.CancelAll()

	assert.ErrorIs(t, ctxA.Err(), context.Canceled, "a cancelled")
	assert.ErrorIs(t, ctxB.Err(), context.Canceled, "b cancelled")
	assert.Equal(t, 0, r.Len(), "empty registry")
}

func TestRegistry_ParentCancellation(t *testing.T) {
	r := NewRegistry()
	parent, cancel := context.WithCancel(context.Background())

	ctx, _ := r.Begin(parent, "a.go")
	cancel()

	assert.ErrorIs(t, ctx.Err(), context.Canceled, "parent cancellation propagates")
}
