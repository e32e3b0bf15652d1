// Package llmcall records every Structured-LLM Client call for
// traceability: prompt key, response, token usage, and success/failure,
// so a failed book can be diagnosed from its call history alone.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/avantbook/distill/internal/llm"
)

// Call is a recorded LLM API call.
type Call struct {
	ID string `json:"id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	BookID string `json:"book_id,omitempty"`
	Stage  string `json:"stage,omitempty"`

	PromptKey string `json:"prompt_key"`
	PromptCID string `json:"prompt_cid,omitempty"`

	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	Response string `json:"response"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecordOptions carries the call's context: which book and pipeline
// stage it belongs to, and which prompt produced it.
type RecordOptions struct {
	BookID string
	Stage  string

	PromptKey string
	PromptCID string

	Temperature *float64
}

// FromChatResult builds a Call from an llm.ChatResult. Returns nil if
// result is nil.
func FromChatResult(result *llm.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := &Call{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		LatencyMs:    int(result.ExecutionTime.Milliseconds()),
		BookID:       opts.BookID,
		Stage:        opts.Stage,
		PromptKey:    opts.PromptKey,
		PromptCID:    opts.PromptCID,
		Provider:     result.Provider,
		Model:        result.ModelUsed,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		Response:     result.Content,
		Success:      result.Success,
		Temperature:  opts.Temperature,
	}

	if !result.Success {
		call.Error = result.ErrorMessage
	}

	return call
}

// ToMap converts the Call into the document shape Store.InsertMany expects.
func (c *Call) ToMap() map[string]any {
	m := map[string]any{
		"timestamp":     c.Timestamp,
		"latency_ms":    c.LatencyMs,
		"prompt_key":    c.PromptKey,
		"provider":      c.Provider,
		"model":         c.Model,
		"input_tokens":  c.InputTokens,
		"output_tokens": c.OutputTokens,
		"response":      c.Response,
		"success":       c.Success,
	}

	if c.BookID != "" {
		m["book_id"] = c.BookID
	}
	if c.Stage != "" {
		m["stage"] = c.Stage
	}
	if c.PromptCID != "" {
		m["prompt_cid"] = c.PromptCID
	}
	if c.Temperature != nil {
		m["temperature"] = *c.Temperature
	}
	if c.Error != "" {
		m["error"] = c.Error
	}

	return m
}
