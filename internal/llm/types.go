// Package llm abstracts chat completion over the two provider backends named
// in spec §6: a local Ollama instance and OpenRouter, both speaking the
// OpenAI-compatible chat completions wire format.
package llm

import "context"

// Message is a single turn in a chat request. Role is "system", "user",
// "assistant", or "tool".
type Message struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCallResponse `json:"tool_calls,omitempty"`
}

// ToolCallResponse is a tool invocation requested by the model.
type ToolCallResponse struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ToolSpec describes a tool available to the model for this request.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ChatRequest is provider-agnostic input to a Chat call.
type ChatRequest struct {
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// ChatResponse is the OpenAI-compatible structured response shape named by
// chat_messages_stream in spec §4.8.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCallResponse
	StopReason   string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
}

// TokenSink receives partial output as it streams in.
type TokenSink func(chunk string)

// Provider is implemented by each backend adapter.
type Provider interface {
	// Name identifies the provider for logging and the ChatResponse.Provider field.
	Name() string
	// Chat performs a single non-streaming completion.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// ChatStream performs a completion, pushing partial text into sink as it
	// arrives. The final ChatResponse is returned once the stream ends.
	ChatStream(ctx context.Context, req ChatRequest, sink TokenSink) (*ChatResponse, error)
}
