package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/lamim/campaignforge/internal/config"
	"github.com/lamim/campaignforge/internal/metrics"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests
	DefaultHTTPTimeout = 120 * time.Second
	// DefaultMaxRetries is the default maximum number of retry attempts
	DefaultMaxRetries = 3
	// DefaultBaseRetryDelay is the base delay for exponential backoff
	DefaultBaseRetryDelay = 2 * time.Second
	// DefaultMaxBackoffDuration caps a single backoff sleep
	DefaultMaxBackoffDuration = 120 * time.Second
	// RateLimitBackoffMultiplier is the multiplier for rate limit backoff (3^n)
	RateLimitBackoffMultiplier = 3
)

// Client handles HTTP requests to OpenAI-compatible API endpoints
type Client struct {
	httpClient           *http.Client
	rateLimiterPool      *RateLimiterPool
	logger               *slog.Logger
	collector            *metrics.Collector
	providerRateLimits   map[string]int
	providerBurstPercent int
	maxRetries           int
	baseRetryDelay       time.Duration
}

// NewClient creates a new API client. Per-request timeouts come from each
// model's config, so the underlying http.Client carries none.
func NewClient(logger *slog.Logger, collector *metrics.Collector) *Client {
	return &Client{
		httpClient:      &http.Client{},
		rateLimiterPool: NewRateLimiterPool(),
		logger:          logger,
		collector:       collector,
		maxRetries:      DefaultMaxRetries,
		baseRetryDelay:  DefaultBaseRetryDelay,
	}
}

// SetProviderRateLimits configures provider-wide rate limits shared by all
// models on the same provider.
func (c *Client) SetProviderRateLimits(limits map[string]int, burstPercent int) {
	c.providerRateLimits = limits
	c.providerBurstPercent = burstPercent
}

// Complete sends a chat completion and returns the assistant message content,
// dispatching to the streaming path when the model is configured for it.
func (c *Client) Complete(ctx context.Context, modelCfg config.ModelConfig, apiKey string, messages []Message) (string, error) {
	var resp *ChatCompletionResponse
	var err error
	if modelCfg.UseStreaming {
		resp, err = c.ChatCompletionStreaming(ctx, modelCfg, apiKey, messages)
	} else {
		resp, err = c.ChatCompletion(ctx, modelCfg, apiKey, messages)
	}
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatCompletion sends a chat completion request to the specified model
func (c *Client) ChatCompletion(
	ctx context.Context,
	modelCfg config.ModelConfig,
	apiKey string,
	messages []Message,
) (*ChatCompletionResponse, error) {
	ctx, cancel := c.applyTimeout(ctx, modelCfg)
	defer cancel()

	if err := c.waitRateLimit(ctx, modelCfg); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	req := ChatCompletionRequest{
		Model:       modelCfg.ModelName,
		Messages:    messages,
		Temperature: modelCfg.Temperature,
		TopP:        modelCfg.TopP,
		MaxTokens:   modelCfg.MaxOutputTokens,
		N:           1,
	}
	if modelCfg.UseJSONMode {
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	var resp *ChatCompletionResponse
	err := c.withRetries(ctx, modelCfg, func() error {
		var reqErr error
		resp, reqErr = c.doRequest(ctx, modelCfg, apiKey, req)
		return reqErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// applyTimeout wraps ctx with the model's HTTP timeout. A zero timeout means
// no limit, for very long generations.
func (c *Client) applyTimeout(ctx context.Context, modelCfg config.ModelConfig) (context.Context, context.CancelFunc) {
	if modelCfg.HTTPTimeoutSeconds > 0 {
		return context.WithTimeout(ctx, time.Duration(modelCfg.HTTPTimeoutSeconds)*time.Second)
	}
	if modelCfg.HTTPTimeoutSeconds == 0 {
		return context.WithTimeout(ctx, DefaultHTTPTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) waitRateLimit(ctx context.Context, modelCfg config.ModelConfig) error {
	modelID := fmt.Sprintf("%s:%s", modelCfg.BaseURL, modelCfg.ModelName)

	providerName := config.GetProviderName(modelCfg.BaseURL)
	providerRPM := 0
	if c.providerRateLimits != nil {
		if rpm, ok := c.providerRateLimits[providerName]; ok {
			providerRPM = rpm
		}
	}

	waitStart := time.Now()
	err := c.rateLimiterPool.Wait(ctx, modelID, modelCfg.RateLimitPerMinute, providerName, providerRPM, c.providerBurstPercent)
	if c.collector != nil {
		c.collector.RecordRateLimiterWait(modelCfg.ModelName, time.Since(waitStart))
	}
	return err
}

// withRetries runs fn with exponential backoff and jitter. Rate limit errors
// back off harder (3^n) than transient failures (2^n).
func (c *Client) withRetries(ctx context.Context, modelCfg config.ModelConfig, fn func() error) error {
	maxAttempts := modelCfg.MaxRetries
	if maxAttempts == 0 {
		maxAttempts = c.maxRetries
	}

	var lastErr error
	for attempt := 0; maxAttempts < 0 || attempt <= maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseRetryDelay
			if apiErr, ok := lastErr.(*APIError); ok && apiErr.StatusCode == http.StatusTooManyRequests {
				backoff = time.Duration(math.Pow(RateLimitBackoffMultiplier, float64(attempt))) * c.baseRetryDelay
			}

			maxBackoff := DefaultMaxBackoffDuration
			if modelCfg.MaxBackoffSeconds > 0 {
				maxBackoff = time.Duration(modelCfg.MaxBackoffSeconds) * time.Second
			}
			if backoff > maxBackoff {
				backoff = maxBackoff
			}

			jitter := time.Duration(float64(backoff) * 0.1 * (2*float64(time.Now().UnixNano()%100)/100 - 1))
			sleepDuration := backoff + jitter

			c.logger.Warn("Retrying API request",
				"attempt", attempt,
				"max_retries", maxAttempts,
				"backoff", sleepDuration,
				"model", modelCfg.ModelName,
				"is_rate_limit", c.isRateLimitError(lastErr))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleepDuration):
			}
		}

		start := time.Now()
		err := fn()
		if c.collector != nil {
			c.collector.RecordAPIRequest(modelCfg.ModelName, time.Since(start), err == nil)
		}
		if err == nil {
			return nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doRequest(
	ctx context.Context,
	modelCfg config.ModelConfig,
	apiKey string,
	req ChatCompletionRequest,
) (*ChatCompletionResponse, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := json.NewEncoder(buf).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, modelCfg.BaseURL, "chat/completions", apiKey, buf.Bytes())
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{
			Message:    fmt.Sprintf("request failed: %v", err),
			StatusCode: 0,
			Retryable:  true,
		}
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(httpResp.StatusCode, respBody)
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned in response")
	}

	return &resp, nil
}

func (c *Client) newRequest(ctx context.Context, baseURL, path, apiKey string, body []byte) (*http.Request, error) {
	endpoint := baseURL
	if endpoint[len(endpoint)-1] != '/' {
		endpoint += "/"
	}
	endpoint += path

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	} else {
		c.logger.Debug("API request without key", "endpoint", endpoint)
	}
	return httpReq, nil
}

func (c *Client) errorFromResponse(statusCode int, body []byte) error {
	retryable := c.isStatusCodeRetryable(statusCode)

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &APIError{
			Message:    errResp.Error.Message,
			StatusCode: statusCode,
			Type:       errResp.Error.Type,
			Code:       errResp.Error.Code,
			Retryable:  retryable,
		}
	}

	return &APIError{
		Message:    fmt.Sprintf("API request failed with status %d: %s", statusCode, string(body)),
		StatusCode: statusCode,
		Retryable:  retryable,
	}
}

func (c *Client) isRetryable(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Retryable
	}
	return false
}

func (c *Client) isRateLimitError(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func (c *Client) isStatusCodeRetryable(statusCode int) bool {
	// Retry on rate limits and server errors
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}

// APIError represents an error returned by the API
type APIError struct {
	Message    string
	StatusCode int
	Type       string
	Code       string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %s", e.Message)
}
