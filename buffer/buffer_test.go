package buffer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"anycoder/assert"
	"anycoder/coder"
	"anycoder/types"
)

// mockEditor implements Editor for testing
type mockEditor struct {
	mu        sync.Mutex
	path      string
	content   string
	readErr   error
	reloadErr error
	replaced  []string
	notified  []string
	reloads   int
}

func (e *mockEditor) Read(bufnr int) (string, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path, e.content, e.readErr
}

func (e *mockEditor) Replace(bufnr int, content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replaced = append(e.replaced, content)
	e.content = content
	return nil
}

func (e *mockEditor) Reload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reloads++
	return e.reloadErr
}

func (e *mockEditor) Notify(msg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notified = append(e.notified, msg)
	return nil
}

// mockCoder implements Autocompleter for testing
type mockCoder struct {
	cursor int
	err    error
}

func (c *mockCoder) Autocomplete(ctx context.Context, original, path string, cursor int) (*coder.Result, error) {
	c.cursor = cursor
	if c.err != nil {
		return nil, c.err
	}
	return &coder.Result{
		Content: strings.Replace(original, "??", "i", 1),
		Edits:   []types.TextEdit{{Start: cursor, End: cursor, Text: "i"}},
	}, nil
}

func TestComplete_ReplacesBuffer(t *testing.T) {
	editor := &mockEditor{path: "/src/main.rs", content: "for ?? in 0..10 {\n}"}
	mc := &mockCoder{}
	c := NewCompleter(editor, mc, 0)

	n, err := c.Complete(context.Background(), 0)

	assert.NoError(t, err, "Complete")
	assert.Equal(t, 1, n, "edit count")
	assert.Equal(t, 4, mc.cursor, "cursor")
	assert.Equal(t, []string{"for i in 0..10 {\n}"}, editor.replaced, "buffer replaced")
	assert.Equal(t, 0, len(editor.notified), "no notification")
}

func TestComplete_NoMarker(t *testing.T) {
	editor := &mockEditor{path: "a.go", content: "package a"}
	c := NewCompleter(editor, &mockCoder{}, 0)

	_, err := c.Complete(context.Background(), 3)

	assert.ErrorIs(t, err, ErrNoMarker, "ErrNoMarker")
	assert.Equal(t, 0, len(editor.replaced), "buffer untouched")
	assert.Equal(t, 1, len(editor.notified), "user notified")
}

func TestComplete_CoderError(t *testing.T) {
	coderErr := errors.New("invalid patch format: missing <|SEARCH|>")
	editor := &mockEditor{path: "a.go", content: "x := ??"}
	c := NewCompleter(editor, &mockCoder{err: coderErr}, 0)

	_, err := c.Complete(context.Background(), 0)

	assert.ErrorIs(t, err, coderErr, "coder error returned")
	assert.Equal(t, 0, len(editor.replaced), "buffer untouched")
	assert.Contains(t, editor.notified[0], "missing <|SEARCH|>", "notification carries the error")
}

func TestComplete_ReadError(t *testing.T) {
	editor := &mockEditor{readErr: errors.New("invalid buffer id")}
	c := NewCompleter(editor, &mockCoder{}, 0)

	_, err := c.Complete(context.Background(), 42)

	assert.Error(t, err, "read error")
}

func TestHub_FileChanged(t *testing.T) {
	a := &mockEditor{}
	b := &mockEditor{reloadErr: errors.New("closed")}
	hub := NewHub()
	hub.Add(a)
	hub.Add(b)

	hub.FileChanged("main.go")

	assert.Equal(t, 1, a.reloads, "a reloaded")
	assert.Equal(t, 1, b.reloads, "b reloaded despite error")

	hub.Remove(b)
	hub.FileChanged("main.go")

	assert.Equal(t, 1, hub.Len(), "one editor left")
	assert.Equal(t, 2, a.reloads, "a reloaded again")
	assert.Equal(t, 1, b.reloads, "removed editor not reloaded")
}

func TestLinesRoundTrip(t *testing.T) {
	tests := []string{
		"",
		"single",
		"a\nb\nc",
		"trailing\n",
		"значение\n🎉",
	}

	for _, content := range tests {
		assert.Equal(t, content, joinLines(splitLines(content)), "round trip")
	}
	assert.Equal(t, 3, len(splitLines("a\nb\nc")), "line count")
}
