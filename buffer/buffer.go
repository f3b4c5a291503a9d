package buffer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"anycoder/coder"
	"anycoder/logger"
	"anycoder/text"

	"github.com/neovim/go-client/nvim"
)

// HandlerName is the RPC method Neovim calls to autocomplete a buffer
const HandlerName = "anycoder_complete"

// ErrNoMarker is returned when the buffer holds no cursor marker
var ErrNoMarker = fmt.Errorf("no %s in buffer", text.CursorMarker)

// Editor reads and writes whole buffers of a connected editor.
// Implemented by NvimBuffer.
type Editor interface {
	Read(bufnr int) (path, content string, err error)
	Replace(bufnr int, content string) error
	Reload() error
	Notify(msg string) error
}

// Autocompleter is implemented by coder.Coder
type Autocompleter interface {
	Autocomplete(ctx context.Context, original, path string, cursor int) (*coder.Result, error)
}

// NvimBuffer talks to one Neovim instance
type NvimBuffer struct {
	client *nvim.Nvim
}

func New(client *nvim.Nvim) *NvimBuffer {
	return &NvimBuffer{client: client}
}

// Read returns the name and content of buffer bufnr (0 is the current buffer)
func (b *NvimBuffer) Read(bufnr int) (string, string, error) {
	defer logger.Trace("buffer.Read")()

	batch := b.client.NewBatch()
	var path string
	var lines [][]byte
	batch.BufferName(nvim.Buffer(bufnr), &path)
	batch.BufferLines(nvim.Buffer(bufnr), 0, -1, false, &lines)
	if err := batch.Execute(); err != nil {
		return "", "", fmt.Errorf("failed to read buffer %d: %w", bufnr, err)
	}
	return path, joinLines(lines), nil
}

// Replace sets every line of buffer bufnr to content
func (b *NvimBuffer) Replace(bufnr int, content string) error {
	if err := b.client.SetBufferLines(nvim.Buffer(bufnr), 0, -1, false, splitLines(content)); err != nil {
		return fmt.Errorf("failed to replace buffer %d: %w", bufnr, err)
	}
	return nil
}

// Reload makes Neovim re-read buffers whose files changed on disk
func (b *NvimBuffer) Reload() error {
	return b.client.Command("checktime")
}

// Notify shows msg to the user as a warning
func (b *NvimBuffer) Notify(msg string) error {
	return b.client.ExecLua("vim.notify(..., vim.log.levels.WARN)", nil, msg)
}

// Register installs the autocomplete handler on the connection
func (b *NvimBuffer) Register(c *Completer) error {
	return b.client.RegisterHandler(HandlerName, func(_ *nvim.Nvim, bufnr int) (int, error) {
		return c.Complete(context.Background(), bufnr)
	})
}

// Completer runs autocompletes on editor buffers instead of files
type Completer struct {
	editor  Editor
	coder   Autocompleter
	timeout time.Duration
}

func NewCompleter(editor Editor, c Autocompleter, timeout time.Duration) *Completer {
	return &Completer{editor: editor, coder: c, timeout: timeout}
}

// Complete autocompletes buffer bufnr at its cursor marker and returns the
// number of edits applied. Failures are also shown in the editor.
func (c *Completer) Complete(ctx context.Context, bufnr int) (int, error) {
	defer logger.Trace("buffer.Complete")()

	n, err := c.complete(ctx, bufnr)
	if err != nil {
		logger.Warn("buffer %d: %v", bufnr, err)
		if notifyErr := c.editor.Notify("anycoder: " + err.Error()); notifyErr != nil {
			logger.Debug("failed to notify editor: %v", notifyErr)
		}
	}
	return n, err
}

func (c *Completer) complete(ctx context.Context, bufnr int) (int, error) {
	path, content, err := c.editor.Read(bufnr)
	if err != nil {
		return 0, err
	}

	cursor := text.RuneIndex(content, text.CursorMarker)
	if cursor < 0 {
		return 0, ErrNoMarker
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result, err := c.coder.Autocomplete(ctx, content, path, cursor)
	if err != nil {
		return 0, err
	}
	if err := c.editor.Replace(bufnr, result.Content); err != nil {
		return 0, err
	}
	logger.Info("autocompleted buffer %d (%s) with %d edit(s)", bufnr, path, len(result.Edits))
	return len(result.Edits), nil
}

// Hub fans file change notifications out to every connected editor
type Hub struct {
	mu      sync.Mutex
	editors map[Editor]struct{}
}

func NewHub() *Hub {
	return &Hub{editors: make(map[Editor]struct{})}
}

func (h *Hub) Add(e Editor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.editors[e] = struct{}{}
}

func (h *Hub) Remove(e Editor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.editors, e)
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.editors)
}

// FileChanged asks every editor to reload changed buffers
func (h *Hub) FileChanged(path string) {
	h.mu.Lock()
	editors := make([]Editor, 0, len(h.editors))
	for e := range h.editors {
		editors = append(editors, e)
	}
	h.mu.Unlock()

	var errs []error
	for _, e := range editors {
		if err := e.Reload(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("failed to reload %s in editor: %v", path, err)
	}
}

func joinLines(lines [][]byte) string {
	s := make([]string, len(lines))
	for i, line := range lines {
		s[i] = string(line)
	}
	return strings.Join(s, "\n")
}

func splitLines(content string) [][]byte {
	parts := strings.Split(content, "\n")
	lines := make([][]byte, len(parts))
	for i, part := range parts {
		lines[i] = []byte(part)
	}
	return lines
}
