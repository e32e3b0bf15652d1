package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/avantbook/distill/internal/coerce"
)

// HTTPConfig configures an HTTPClient against an OpenAI-compatible
// chat-completions endpoint (§6's "LLM endpoint contract").
type HTTPConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration

	RPS        float64
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// HTTPClient implements Client over raw HTTP, the way the teacher's
// OpenRouterClient does, generalized to whatever OpenAI-compatible
// endpoint internal/config.LLMConfig points at.
type HTTPClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client

	limiter    *RateLimiter
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewHTTPClient builds an HTTPClient from cfg, applying the teacher's defaults.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RPS == 0 {
		cfg.RPS = 150.0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &HTTPClient{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		defaultModel: cfg.DefaultModel,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		limiter:      NewRateLimiter(int(cfg.RPS * 60)),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		logger:       cfg.Logger,
	}
}

// Name returns the client identifier used in LLMCall records.
func (c *HTTPClient) Name() string { return "llm-http" }

var _ Client = (*HTTPClient)(nil)

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code,omitempty"`
	} `json:"error,omitempty"`
}

// Chat sends req to the endpoint, retrying transient failures (network
// errors, 429, 5xx) with retry-go's exponential backoff - the inner,
// single-call retry; the stage's per-item error isolation in
// internal/concurrency.ParallelMap is the outer recovery layer (§5).
func (c *HTTPClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	body := chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ResponseFormat != nil {
		sanitized, err := sanitizeSchemaForModel(model, req.ResponseFormat.JSONSchema)
		if err != nil {
			return nil, err
		}
		body.ResponseFormat = &ResponseFormat{Type: req.ResponseFormat.Type, JSONSchema: sanitized}
	}

	result := &ChatResult{RequestID: requestID, Provider: c.Name()}

	var resp *chatCompletionResponse
	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}

			r, status, err := c.doRequest(ctx, body)
			if err != nil {
				return err
			}
			if status == http.StatusTooManyRequests {
				c.limiter.Record429(0)
				return fmt.Errorf("llm: rate limited (status %d)", status)
			}
			if status >= 500 {
				return fmt.Errorf("llm: endpoint error (status %d)", status)
			}
			if status != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("llm: endpoint error (status %d): %s", status, r.errString()))
			}
			if r.Error != nil {
				return retry.Unrecoverable(fmt.Errorf("llm: endpoint error: %s", r.Error.Message))
			}
			if len(r.Choices) == 0 {
				return fmt.Errorf("llm: empty choices in response")
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)

	result.Attempts = attempts
	result.ExecutionTime = time.Since(start)

	if err != nil {
		result.Success = false
		result.ErrorType = "transport"
		result.ErrorMessage = err.Error()
		return result, fmt.Errorf("llm: chat request failed: %w", err)
	}

	result.Success = true
	result.Content = resp.Choices[0].Message.Content
	result.ModelUsed = resp.Model
	result.PromptTokens = resp.Usage.PromptTokens
	result.CompletionTokens = resp.Usage.CompletionTokens
	result.TotalTokens = resp.Usage.TotalTokens

	if req.ResponseFormat != nil && result.Content != "" {
		parsed, perr := parseStructuredJSON(result.Content)
		if perr != nil {
			result.Success = false
			result.ErrorType = "schema_validation"
			result.ErrorMessage = perr.Error()
			return result, fmt.Errorf("llm: %w", perr)
		}

		coerced, verr := c.coerceAndValidate(req.ResponseFormat.JSONSchema, parsed)
		if verr != nil {
			result.Success = false
			result.ErrorType = "schema_validation"
			result.ErrorMessage = verr.Error()
			return result, fmt.Errorf("llm: %w", verr)
		}
		result.ParsedJSON = coerced
	}

	return result, nil
}

// coerceAndValidate runs parsed through the Schema Coercion Layer before
// validating it against schemaRaw (§4.1 step 4). A validation failure on
// the first pass retries coercion once more in enum-fuzzy-match mode
// (§4.2); only if that also fails does the caller see a SchemaValidation
// error carrying the raw reply for diagnostics.
func (c *HTTPClient) coerceAndValidate(schemaRaw, parsed json.RawMessage) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt < maxStructuredRepairAttempts; attempt++ {
		fuzzy := attempt > 0
		coerced, subs, err := coerce.Coerce(schemaRaw, parsed, fuzzy)
		if err != nil {
			lastErr = err
			continue
		}
		if err := validateStructuredJSON(schemaRaw, coerced); err != nil {
			lastErr = err
			continue
		}
		for _, s := range subs {
			c.logger.Debug("llm: coerced structured output field",
				"path", s.Path, "original", s.Original, "coerced", s.Coerced, "reason", s.Reason, "fuzzy", fuzzy)
		}
		return coerced, nil
	}
	return nil, lastErr
}

func (r *chatCompletionResponse) errString() string {
	if r == nil || r.Error == nil {
		return ""
	}
	return r.Error.Message
}

func (c *HTTPClient) doRequest(ctx context.Context, body chatCompletionRequest) (*chatCompletionResponse, int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("llm: read response: %w", err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		if resp.StatusCode == http.StatusOK {
			return nil, resp.StatusCode, fmt.Errorf("llm: unmarshal response: %w (body: %s)", err, string(respBody))
		}
		return &chatCompletionResponse{}, resp.StatusCode, nil
	}
	return &parsed, resp.StatusCode, nil
}
