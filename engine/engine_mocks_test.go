package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"anycoder/coder"
	"anycoder/metrics"
	"anycoder/text"
	"anycoder/types"
)

// --- Mock implementations ---

type autocompleteCall struct {
	original string
	path     string
	cursor   int
}

// mockCoder implements Autocompleter for testing
type mockCoder struct {
	mu    sync.Mutex
	calls []autocompleteCall
	fn    func(ctx context.Context, original, path string, cursor int) (*coder.Result, error)
}

// newReplacingCoder returns a mock that replaces the cursor marker with insert
func newReplacingCoder(insert string) *mockCoder {
	return &mockCoder{
		fn: func(ctx context.Context, original, path string, cursor int) (*coder.Result, error) {
			return &coder.Result{
				Content: strings.Replace(original, text.CursorMarker, insert, 1),
				Patch:   &types.Patch{Start: cursor, Anchored: true},
				Edits:   []types.TextEdit{{Start: cursor, End: cursor, Text: insert}},
			}, nil
		},
	}
}

func (m *mockCoder) Autocomplete(ctx context.Context, original, path string, cursor int) (*coder.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, autocompleteCall{original: original, path: path, cursor: cursor})
	fn := m.fn
	m.mu.Unlock()
	return fn(ctx, original, path, cursor)
}

func (m *mockCoder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockNotifier implements Notifier for testing
type mockNotifier struct {
	mu    sync.Mutex
	paths []string
}

func (n *mockNotifier) FileChanged(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *mockNotifier) changed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

// mockRecorder implements Recorder for testing
type mockRecorder struct {
	mu      sync.Mutex
	entries []metrics.Entry
}

func (r *mockRecorder) Record(entry metrics.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *mockRecorder) recorded() []metrics.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]metrics.Entry(nil), r.entries...)
}

// mockChatClient implements coder.ChatClient with a canned response
type mockChatClient struct {
	response string
}

func (c *mockChatClient) Chat(ctx context.Context, messages []types.Message) (string, error) {
	return c.response, nil
}

func createTestEngine(t *testing.T, c Autocompleter) (*Engine, *mockNotifier, *mockRecorder) {
	t.Helper()
	eng := NewEngine(c, EngineConfig{Root: t.TempDir()})
	notifier := &mockNotifier{}
	recorder := &mockRecorder{}
	eng.SetNotifier(notifier)
	eng.SetHistory(recorder)
	return eng, notifier, recorder
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func tempFile(t *testing.T, eng *Engine, name, content string) string {
	t.Helper()
	path := filepath.Join(eng.config.Root, name)
	writeFile(t, path, content)
	return path
}
