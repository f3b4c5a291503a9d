package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"anycoder/logger"
	"anycoder/types"

	"github.com/andybalholm/brotli"
)

// ErrEmptyResponse is returned when the API answers without any choice
var ErrEmptyResponse = errors.New("empty response from model")

// ChatRequest matches the OpenAI Chat Completions API format
type ChatRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

// ChatResponse matches the OpenAI Chat Completions API response format
type ChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// StatusError is a non-200 answer from the API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether the request may succeed if sent again
func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

const (
	DefaultURL            = "https://openrouter.ai/api/v1"
	DefaultModel          = "mistralai/codestral-2501"
	DefaultCompletionPath = "/chat/completions"
)

// Client is an OpenAI-compatible chat client
type Client struct {
	HTTPClient *http.Client
	URL        string
	AuthToken  string
	config     types.ProviderConfig
	// backoff is the wait before the first retry, doubled for each following one
	backoff time.Duration
}

// NewClient creates a chat client from the provider configuration
func NewClient(config types.ProviderConfig) *Client {
	if config.ProviderURL == "" {
		config.ProviderURL = DefaultURL
	}
	if config.ProviderModel == "" {
		config.ProviderModel = DefaultModel
	}
	if config.CompletionPath == "" {
		config.CompletionPath = DefaultCompletionPath
	}

	timeout := time.Duration(0)
	if config.CompletionTimeout > 0 {
		timeout = time.Duration(config.CompletionTimeout) * time.Millisecond
	}

	url := config.CompletionPath
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = strings.TrimRight(config.ProviderURL, "/") + "/" + strings.TrimLeft(config.CompletionPath, "/")
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		URL:        url,
		AuthToken:  config.APIKey,
		config:     config,
		backoff:    500 * time.Millisecond,
	}
}

// Chat sends the messages and returns the content of the first choice.
// Transport failures, 408, 429 and 5xx answers are retried up to
// MaxRetries times with exponential backoff.
func (c *Client) Chat(ctx context.Context, messages []types.Message) (string, error) {
	defer logger.Trace("openai.Chat")()

	req := &ChatRequest{
		Model:       c.config.ProviderModel,
		Messages:    messages,
		Temperature: c.config.ProviderTemperature,
		MaxTokens:   c.config.ProviderMaxTokens,
	}

	var resp *ChatResponse
	var err error
	wait := c.backoff
	for attempt := 0; ; attempt++ {
		resp, err = c.DoChat(ctx, req)
		if err == nil || attempt >= c.config.MaxRetries || !shouldRetry(ctx, err) {
			break
		}
		logger.Warn("openai: attempt %d failed, retrying in %v: %v", attempt+1, wait, err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	logger.Debug("openai: model=%s finish=%s tokens=%d/%d",
		resp.Model, resp.Choices[0].FinishReason, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

// DoChat sends a single non-streaming chat completion request
func (c *Client) DoChat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	req.Stream = false

	body, err := c.encodeRequest(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.CompressRequests {
		httpReq.Header.Set("Content-Encoding", "br")
	}
	if c.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(data, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &chatResp, nil
}

// encodeRequest marshals the request without HTML escaping (code is full of
// '<' and '&') and brotli-compresses it when configured.
func (c *Client) encodeRequest(req *ChatRequest) (io.Reader, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if !c.config.CompressRequests {
		return &buf, nil
	}

	var compressed bytes.Buffer
	w := brotli.NewWriterLevel(&compressed, 1)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to compress request: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close brotli writer: %w", err)
	}
	return &compressed, nil
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
