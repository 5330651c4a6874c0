package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lamim/campaignforge/internal/config"
)

// StreamDelta represents the delta content in a streaming response chunk
type StreamDelta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// StreamChoice represents a choice in a streaming response chunk
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

// StreamResponse represents a single chunk in the streaming response
type StreamResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

// ChatCompletionStreaming sends a chat completion request with streaming
// enabled and accumulates the deltas into a standard response. Long-form
// content generation uses this to keep gateways from timing out idle
// connections.
func (c *Client) ChatCompletionStreaming(
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

	// The stream flag is not part of ChatCompletionRequest, so round-trip
	// through a map to add it
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	reqMap := make(map[string]interface{})
	if err := json.Unmarshal(reqBytes, &reqMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to map: %w", err)
	}
	reqMap["stream"] = true

	var resp *ChatCompletionResponse
	err = c.withRetries(ctx, modelCfg, func() error {
		var reqErr error
		resp, reqErr = c.doStreamingRequest(ctx, modelCfg.BaseURL, apiKey, reqMap)
		return reqErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) doStreamingRequest(
	ctx context.Context,
	baseURL string,
	apiKey string,
	reqMap map[string]interface{},
) (*ChatCompletionResponse, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := json.NewEncoder(buf).Encode(reqMap); err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, baseURL, "chat/completions", apiKey, buf.Bytes())
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{
			Message:    fmt.Sprintf("request failed: %v", err),
			StatusCode: 0,
			Retryable:  true,
		}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return nil, c.errorFromResponse(httpResp.StatusCode, bodyBytes)
	}

	var responseContent strings.Builder
	var reasoningContent strings.Builder
	var responseID string
	var responseModel string
	var responseCreated int64
	var finishReason string

	scanner := bufio.NewScanner(httpResp.Body)
	// Narrative chunks can exceed the default 64KB token limit
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if len(strings.TrimSpace(line)) == 0 {
			continue
		}

		// SSE format: "data: {...}"
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			break
		}

		var chunk StreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Warn("Failed to parse stream chunk", "error", err, "data", data)
			continue
		}

		if responseID == "" {
			responseID = chunk.ID
			responseModel = chunk.Model
			responseCreated = chunk.Created
		}

		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta

			if delta.Content != "" {
				responseContent.WriteString(delta.Content)
			}
			if delta.ReasoningContent != "" {
				reasoningContent.WriteString(delta.ReasoningContent)
			}
			if chunk.Choices[0].FinishReason != nil && *chunk.Choices[0].FinishReason != "" {
				finishReason = *chunk.Choices[0].FinishReason
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream reading error: %w", err)
	}

	if responseContent.Len() == 0 {
		return nil, fmt.Errorf("no content returned in stream")
	}

	return &ChatCompletionResponse{
		ID:      responseID,
		Object:  "chat.completion",
		Created: responseCreated,
		Model:   responseModel,
		Choices: []Choice{
			{
				Index: 0,
				Message: Message{
					Role:             "assistant",
					Content:          responseContent.String(),
					ReasoningContent: reasoningContent.String(),
				},
				FinishReason: finishReason,
			},
		},
		// Token counts are not reported in streaming mode
	}, nil
}
