package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// MockClientName identifies MockClient in LLMCall records.
const MockClientName = "mock"

// MockClient is a Client for pipeline and stage tests, grounded on the
// teacher's internal/providers/mock.go, dropping OCR and tool-call
// support this system's LLM contract never needs.
type MockClient struct {
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // fail after N requests, 0 = never
	ResponseText string
	ResponseJSON json.RawMessage

	// Queued lets a test script a distinct result per call, consumed
	// in order before falling back to ResponseText/ResponseJSON.
	Queued []ChatResult

	requestCount atomic.Int64
}

// NewMockClient creates a mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string { return MockClientName }

var _ Client = (*MockClient)(nil)

// Chat returns a scripted or default result, simulating Latency and
// honoring ShouldFail/FailAfter for failure-path tests.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	if c.ShouldFail {
		result.Success = false
		result.ErrorType = "mock_failure"
		result.ErrorMessage = "mock client configured to fail"
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("llm: %s", result.ErrorMessage)
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		result.Success = false
		result.ErrorType = "mock_failure"
		result.ErrorMessage = fmt.Sprintf("mock client failed after %d requests", c.FailAfter)
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("llm: %s", result.ErrorMessage)
	}

	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		result.Success = false
		result.ErrorType = "context_cancelled"
		result.ErrorMessage = ctx.Err().Error()
		result.ExecutionTime = time.Since(start)
		return result, ctx.Err()
	}

	if int(count) <= len(c.Queued) {
		queued := c.Queued[count-1]
		queued.RequestID = result.RequestID
		queued.Attempts = 1
		queued.ExecutionTime = time.Since(start)
		if queued.Provider == "" {
			queued.Provider = MockClientName
		}
		if !queued.Success && queued.ErrorMessage != "" {
			return &queued, fmt.Errorf("llm: %s", queued.ErrorMessage)
		}
		return &queued, nil
	}

	result.Success = true
	result.Content = c.ResponseText
	result.ExecutionTime = time.Since(start)

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(m.Content) / 4
	}
	completionTokens := len(c.ResponseText) / 4
	result.PromptTokens = promptTokens
	result.CompletionTokens = completionTokens
	result.TotalTokens = promptTokens + completionTokens

	if req.ResponseFormat != nil && len(c.ResponseJSON) > 0 {
		result.ParsedJSON = c.ResponseJSON
		result.Content = string(c.ResponseJSON)
	}

	return result, nil
}

// RequestCount returns the number of Chat calls made so far.
func (c *MockClient) RequestCount() int64 { return c.requestCount.Load() }

// Reset zeroes the request counter, for reuse across subtests.
func (c *MockClient) Reset() { c.requestCount.Store(0) }
