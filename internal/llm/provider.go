// Package llm implements the Structured-LLM Client: a wrapper around an
// OpenAI-compatible chat-completions endpoint that returns values
// conforming to a caller-declared JSON Schema, tolerating the loosely
// typed output real models produce. Grounded on the teacher's
// internal/providers package (provider.go's LLMClient interface,
// openrouter.go/openrouter_http.go's HTTP client, ratelimit.go's token
// bucket, and structured_output.go's extraction/validation pipeline),
// generalized from OpenRouter specifically to any bearer-token
// chat-completions endpoint per this system's single configured LLM.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Client is the chat-completion interface the pipelines depend on.
type Client interface {
	// Chat sends a single-turn or multi-message chat completion request.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)
	// Name identifies the client for logging and LLMCall records.
	Name() string
}

// Message is one turn in a chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests structured output conforming to JSONSchema.
type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// ChatRequest is a request to the configured LLM endpoint.
type ChatRequest struct {
	Messages       []Message       `json:"messages"`
	Model          string          `json:"model,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// RequestID correlates this call to its LLMCall record; generated if empty.
	RequestID string `json:"-"`
}

// ChatResult is the complete response from an LLM call.
type ChatResult struct {
	Content    string          `json:"content"`
	ParsedJSON json.RawMessage `json:"parsed_json,omitempty"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	Provider      string        `json:"provider"`
	ModelUsed     string        `json:"model_used"`
	ExecutionTime time.Duration `json:"execution_time"`

	RequestID string `json:"request_id"`
	Attempts  int    `json:"attempts"`

	Success      bool   `json:"success"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
