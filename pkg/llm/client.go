package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/adiwardana/pandu/pkg/config"
	"github.com/adiwardana/pandu/pkg/errdefs"
	"github.com/adiwardana/pandu/pkg/httpclient"
	"github.com/adiwardana/pandu/pkg/metrics"
	"github.com/adiwardana/pandu/pkg/ratelimit"
)

// ToolUseFailedError reports that the provider rejected a response as
// a malformed tool invocation. FailedGeneration preserves the raw text
// the model produced, for the reasoner's recovery turn.
type ToolUseFailedError struct {
	Message          string
	FailedGeneration string
}

func (e *ToolUseFailedError) Error() string {
	return fmt.Sprintf("tool use failed: %s", e.Message)
}

// Client talks to one OpenAI-compatible chat endpoint. Statistics and
// the rate-limiter window are shared across goroutines and guarded by
// a single mutex.
type Client struct {
	http    *httpclient.Client
	limiter *ratelimit.Limiter
	baseURL string
	apiKey  string
	model   string

	mu        sync.Mutex
	taskUsage Usage
	total     Usage
	requests  int
}

func NewClient(cfg *config.LLMConfig) *Client {
	return &Client{
		http: httpclient.New(
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(time.Duration(cfg.RetryDelaySeconds*float64(time.Second))),
			httpclient.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
		),
		limiter: ratelimit.NewPerMinute(cfg.RateLimitRPM),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

type chatRequest struct {
	Model       string     `json:"model"`
	Messages    []Message  `json:"messages"`
	Tools       []wireTool `json:"tools,omitempty"`
	Temperature float64    `json:"temperature"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
	ToolChoice  string     `json:"tool_choice,omitempty"`
}

type wireTool struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type apiError struct {
	Error struct {
		Message          string `json:"message"`
		Type             string `json:"type"`
		Code             string `json:"code"`
		FailedGeneration string `json:"failed_generation"`
	} `json:"error"`
}

// Chat performs one chat turn. It waits on the rate limiter, sends
// the request through the retrying transport and updates the token
// counters from the provider's usage field.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, opts Options) (*Response, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, errdefs.Wrap(errdefs.KindCancelled, err, "rate limiter wait interrupted")
	}

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	for _, t := range tools {
		reqBody.Tools = append(reqBody.Tools, wireTool{Type: "function", Function: t})
	}
	if opts.ToolChoice != "" && len(tools) > 0 {
		reqBody.ToolChoice = opts.ToolChoice
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindLLMPermanent, err, "encode chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindLLMPermanent, err, "build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("transient_error").Inc()
		if ctx.Err() != nil {
			return nil, errdefs.Wrap(errdefs.KindCancelled, err, "chat call cancelled")
		}
		return nil, errdefs.Wrap(errdefs.KindLLMTransient, err, "chat endpoint unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindLLMTransient, err, "read chat response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errdefs.Wrap(errdefs.KindLLMPermanent, err, "decode chat response")
	}
	if len(parsed.Choices) == 0 {
		return nil, errdefs.New(errdefs.KindLLMPermanent, "chat response has no choices")
	}

	c.record(parsed.Usage)
	metrics.LLMRequests.WithLabelValues("ok").Inc()
	metrics.LLMTokens.WithLabelValues("prompt").Add(float64(parsed.Usage.PromptTokens))
	metrics.LLMTokens.WithLabelValues("completion").Add(float64(parsed.Usage.CompletionTokens))

	choice := parsed.Choices[0]
	slog.Debug("chat turn complete",
		"finish_reason", choice.FinishReason,
		"tool_calls", len(choice.Message.ToolCalls),
		"total_tokens", parsed.Usage.TotalTokens)

	return &Response{
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		Usage:        parsed.Usage,
		FinishReason: choice.FinishReason,
	}, nil
}

func (c *Client) decodeError(status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)

	if ae.Error.Code == "tool_use_failed" || ae.Error.FailedGeneration != "" {
		metrics.LLMRequests.WithLabelValues("tool_use_failed").Inc()
		return &ToolUseFailedError{
			Message:          ae.Error.Message,
			FailedGeneration: ae.Error.FailedGeneration,
		}
	}

	msg := ae.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		metrics.LLMRequests.WithLabelValues("permanent_error").Inc()
		return errdefs.New(errdefs.KindLLMPermanent, "authentication failed: %s", msg).
			WithDetail("status", status)
	case status == http.StatusTooManyRequests || status >= 500:
		// The transport already retried; what reaches here is final.
		metrics.LLMRequests.WithLabelValues("transient_error").Inc()
		return errdefs.New(errdefs.KindLLMTransient, "chat endpoint error: %s", msg).
			WithDetail("status", status)
	default:
		metrics.LLMRequests.WithLabelValues("permanent_error").Inc()
		return errdefs.New(errdefs.KindLLMPermanent, "chat request rejected: %s", msg).
			WithDetail("status", status)
	}
}

func (c *Client) record(u Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taskUsage.PromptTokens += u.PromptTokens
	c.taskUsage.CompletionTokens += u.CompletionTokens
	c.taskUsage.TotalTokens += u.TotalTokens
	c.total.PromptTokens += u.PromptTokens
	c.total.CompletionTokens += u.CompletionTokens
	c.total.TotalTokens += u.TotalTokens
	c.requests++
}

// ResetTaskUsage zeroes the per-task counters. Called at the start of
// every Reasoner.Run.
func (c *Client) ResetTaskUsage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taskUsage = Usage{}
}

// TaskUsage returns the tokens consumed since the last reset.
func (c *Client) TaskUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.taskUsage
}

// TotalUsage returns process-lifetime token counters and request count.
func (c *Client) TotalUsage() (Usage, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total, c.requests
}
