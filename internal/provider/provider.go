package provider

import (
	"context"
	"errors"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

const (
	// DefaultMaxTokens applies to plain completions.
	DefaultMaxTokens = 500
	// ToolMaxTokens applies when tool schemas are sent; a single
	// update_core_memory call can carry ~500 tokens of content.
	ToolMaxTokens = 4096
)

type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"` // tool name on tool results
}

type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"arguments"`
}

type ToolDef struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// Request is one chat-completion call. A zero MaxTokens picks
// ToolMaxTokens or DefaultMaxTokens depending on Tools.
type Request struct {
	Messages    []Message
	Tools       []ToolDef
	MaxTokens   int
	Temperature float64
}

func (r Request) EffectiveMaxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	if len(r.Tools) > 0 {
		return ToolMaxTokens
	}
	return DefaultMaxTokens
}

// Validate checks the request shape before anything goes on the wire.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: no messages", ErrInvalidRequest)
	}
	if r.Messages[0].Role != RoleSystem {
		return fmt.Errorf("%w: first message must be a system message", ErrInvalidRequest)
	}
	return nil
}

type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// StreamChunk is one element of a streamed completion. The final chunk has
// Done set and carries the accumulated Response, or Err.
type StreamChunk struct {
	Delta    string
	Done     bool
	Response *Response
	Err      error
}

type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)
	Name() string
	ModelName() string
	Models(ctx context.Context) ([]string, error)
}

// Drain consumes a stream, forwarding deltas to onDelta, and returns the
// accumulated response. A stream that closes early because ctx ended
// reports ctx's error.
func Drain(ctx context.Context, ch <-chan StreamChunk, onDelta func(string)) (*Response, error) {
	var final *Response
	for chunk := range ch {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		if chunk.Delta != "" && onDelta != nil {
			onDelta(chunk.Delta)
		}
		if chunk.Done {
			final = chunk.Response
		}
	}
	if final == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, &NetworkError{Op: "stream", Err: errors.New("stream ended without a final chunk")}
	}
	return final, nil
}
