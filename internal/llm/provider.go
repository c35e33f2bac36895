// Package llm provides the conversational engine: chat providers (local
// Ollama, OpenAI-compatible) behind a single Provider interface, and the
// Session type that owns dialogue state and the tool-call loop.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// TimeoutGenerate bounds every model call; a slow engine fails rather than
// hangs the caller.
const TimeoutGenerate = 60 * time.Second

// Distinguished failure modes. The coordinator branches on these: overflow
// is recovered once via summarize-and-retry, generation errors propagate
// unretried, backend-unavailable becomes a user-facing message.
var (
	ErrContextOverflow    = errors.New("context window exceeded")
	ErrGeneration         = errors.New("generation failed")
	ErrBackendUnavailable = errors.New("conversational engine unavailable")
)

// Provider is a low-level chat completion backend.
type Provider interface {
	// Name returns the provider identifier (e.g. "ollama", "openai").
	Name() string
	// Generate sends a completion request and returns the response. Errors
	// are classified: ErrContextOverflow, ErrGeneration, or
	// ErrBackendUnavailable wrapped with detail.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// StreamGenerate streams progressively complete snapshots of the
	// response content. The channel is closed on completion or error; a
	// terminal Partial carries Err when the stream failed.
	StreamGenerate(ctx context.Context, req *Request) (<-chan Partial, error)
}

// Request is a chat completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Tools       []ToolDef
}

// Message is a chat message. ToolCallID links a tool-role message to the
// assistant tool call it answers.
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolDef describes a callable tool to the model.
type ToolDef struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Response is a completed generation.
type Response struct {
	Content      string
	FinishReason string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// Partial is one snapshot of an in-progress streamed response. Content is
// the accumulated text so far; Done marks the final snapshot; Err is set
// on a terminal failure.
type Partial struct {
	Content string
	Done    bool
	Err     error
}
