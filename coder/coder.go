package coder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"anycoder/logger"
	"anycoder/patch"
	"anycoder/text"
	"anycoder/types"
)

// ChatClient performs a single chat round trip with the model. Retries and
// backoff are the client's concern.
type ChatClient interface {
	Chat(ctx context.Context, messages []types.Message) (string, error)
}

// ErrTransport marks failures of the model call itself
var ErrTransport = errors.New("model call failed")

type Config struct {
	// AnchorMode selects how responses without a cursor token are handled
	AnchorMode types.AnchorMode
	// ContextLines is the radius of the small context window (0 = default)
	ContextLines int
}

// Result is the outcome of a successful autocomplete.
type Result struct {
	Content string
	Patch   *types.Patch
	Edits   []types.TextEdit // buffer-absolute
}

// Coder turns a buffer with a cursor marker into an edited buffer by asking
// the model for a patch around the cursor.
type Coder struct {
	client ChatClient
	config Config
}

func New(client ChatClient, config Config) *Coder {
	if config.ContextLines <= 0 {
		config.ContextLines = text.NarrowContextLines
	}
	if config.AnchorMode == "" {
		config.AnchorMode = types.AnchorStrict
	}
	return &Coder{client: client, config: config}
}

// Autocomplete asks the model for a patch at cursor (a codepoint offset of
// the cursor marker in original) and returns the patched buffer. Nothing is
// returned unless every stage succeeds.
func (c *Coder) Autocomplete(ctx context.Context, original, path string, cursor int) (*Result, error) {
	defer logger.Trace("coder.Autocomplete")()

	small, err := text.BuildContext(original, cursor, c.config.ContextLines)
	if err != nil {
		return nil, fmt.Errorf("small context: %w", err)
	}
	logger.Debug("small context (base %d):\n%s", small.BaseOffset, small.Text)

	big, err := text.BuildContext(original, cursor, text.WholeFile)
	if err != nil {
		return nil, fmt.Errorf("big context: %w", err)
	}

	messages := c.buildMessages(path, original, big, small)

	response, err := c.client.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	logger.Debug("model response:\n%s", response)

	p, err := patch.Parse(response, cursor, c.config.AnchorMode)
	if err != nil {
		return nil, err
	}
	if err := patch.Locate(p, strings.ReplaceAll(original, text.CursorMarker, "")); err != nil {
		return nil, err
	}
	if !p.Anchored {
		logger.Warn("degraded anchor for %s: response has no %s, assuming patch starts at cursor %d",
			path, text.CursorToken, cursor)
	}
	logger.Debug("patch: start=%d search=%q replace=%q", p.Start, p.Search, p.Replace)

	edits := text.ShiftEdits(text.ComputeTextEdits(p.Search, p.Replace), p.Start)
	logger.Debug("edits: %+v", edits)

	updated, err := text.ApplyTextEdits(original, edits)
	if err != nil {
		return nil, err
	}

	return &Result{Content: updated, Patch: p, Edits: edits}, nil
}

func (c *Coder) buildMessages(path, original string, big, small types.ContextWindow) []types.Message {
	system := SystemPrompt
	if lang := detectLanguage(path, original); lang != "" {
		system += fmt.Sprintf("\n\nThe file is written in %s.", lang)
	}

	return []types.Message{
		{Role: types.RoleSystem, Content: system},
		{Role: types.RoleUser, Content: "big context:\n" + big.Text},
		{Role: types.RoleUser, Content: "small context:\n" + small.Text},
		{Role: types.RoleUser, Content: Reminder},
	}
}
