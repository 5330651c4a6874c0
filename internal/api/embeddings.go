package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lamim/campaignforge/internal/config"
)

// Embeddings requests embedding vectors for the given inputs, returned in
// input order.
func (c *Client) Embeddings(
	ctx context.Context,
	modelCfg config.ModelConfig,
	apiKey string,
	inputs []string,
) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	ctx, cancel := c.applyTimeout(ctx, modelCfg)
	defer cancel()

	if err := c.waitRateLimit(ctx, modelCfg); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	req := EmbeddingRequest{
		Model: modelCfg.ModelName,
		Input: inputs,
	}

	var resp *EmbeddingResponse
	err := c.withRetries(ctx, modelCfg, func() error {
		var reqErr error
		resp, reqErr = c.doEmbeddingRequest(ctx, modelCfg.BaseURL, apiKey, req)
		return reqErr
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d inputs, got %d vectors", len(inputs), len(resp.Data))
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (c *Client) doEmbeddingRequest(
	ctx context.Context,
	baseURL string,
	apiKey string,
	req EmbeddingRequest,
) (*EmbeddingResponse, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := json.NewEncoder(buf).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, baseURL, "embeddings", apiKey, buf.Bytes())
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
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(httpResp.StatusCode, respBody)
	}

	var resp EmbeddingResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned in response")
	}

	return &resp, nil
}
