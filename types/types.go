package types

// TextEdit replaces the half-open range [Start, End) of the original buffer
// with Text. Offsets are codepoint (rune) indices, never byte offsets.
type TextEdit struct {
	Start int
	End   int
	Text  string
}

// Len returns the number of codepoints the edit removes.
func (e TextEdit) Len() int { return e.End - e.Start }

// Patch is an anchored search/replace pair parsed from a model response.
type Patch struct {
	Start   int    // codepoint offset in the original buffer where Search begins
	Search  string // pre-edit fragment, cursor token stripped
	Replace string // proposed fragment, all markers stripped
	// Anchored is false when the response carried no cursor token and Start
	// was taken from the cursor offset as a best-effort guess.
	Anchored bool
}

// ContextWindow is a slice of a buffer plus the codepoint offset of its first
// character in that buffer.
type ContextWindow struct {
	Text       string
	BaseOffset int
}

// Role of a chat message
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is a single role-tagged chat message sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AnchorMode controls how the patch parser treats a response whose search
// fragment carries no cursor token.
type AnchorMode string

const (
	// AnchorStrict rejects such responses with a parse error.
	AnchorStrict AnchorMode = "strict"
	// AnchorBestEffort anchors the search fragment at the cursor offset and
	// marks the patch as not anchored.
	AnchorBestEffort AnchorMode = "best-effort"
)

// ParseAnchorMode maps a config string to an AnchorMode, defaulting to strict.
func ParseAnchorMode(s string) AnchorMode {
	switch AnchorMode(s) {
	case AnchorBestEffort, "besteffort", "tolerant":
		return AnchorBestEffort
	default:
		return AnchorStrict
	}
}

// EventKind is the kind of file-system change delivered by the watcher.
type EventKind int

const (
	EventCreate EventKind = iota
	EventModify
	EventRemove
)

// String returns the string representation of an EventKind for logging
func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// FileEvent is a debounced change notification for a single path.
type FileEvent struct {
	Path string
	Kind EventKind
}

func (e FileEvent) String() string {
	return e.Kind.String() + " " + e.Path
}

// ProviderConfig holds configuration for the model-call client
type ProviderConfig struct {
	ProviderURL         string  // Base URL of an OpenAI-compatible API (e.g., "https://openrouter.ai/api/v1")
	APIKey              string  // Resolved API key for authenticated requests
	ProviderModel       string  // Model name
	ProviderTemperature float64 // Sampling temperature
	ProviderMaxTokens   int     // Max tokens to generate (0 = provider default)
	CompletionPath      string  // API endpoint path (e.g., "/chat/completions")
	CompletionTimeout   int     // Timeout for completion requests in milliseconds
	MaxRetries          int     // Retries after the first attempt for retryable failures
	CompressRequests    bool    // Brotli-compress request bodies
}
