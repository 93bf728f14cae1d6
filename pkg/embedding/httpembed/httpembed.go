// Package httpembed calls out to an external embedding microservice over
// plain HTTP/JSON. It mirrors the teacher's pattern of injecting a network
// client behind the same interface as a local default implementation
// (pkg/agent's GRPCLLMClient alongside a local LLM client) without carrying
// a gRPC/protobuf dependency this environment cannot regenerate stubs for.
package httpembed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client calls a remote embedding endpoint expected to accept
// {"text": "..."} and respond {"vector": [...]}.
type Client struct {
	baseURL    string
	dim        int
	httpClient *http.Client
}

// New constructs a Client. baseURL is the embedding service's root (e.g.
// "http://embeddings.internal:9000"); dim is the provider's fixed output
// dimension, reported by Dim() and checked against the length of every
// response vector.
func New(baseURL string, dim int) *Client {
	return &Client{
		baseURL: baseURL,
		dim:     dim,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Dim implements embedding.Provider.
func (c *Client) Dim() int {
	return c.dim
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Vector []float32 `json:"vector"`
}

// Embed implements embedding.Provider.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Vector) != c.dim {
		return nil, fmt.Errorf("embedding service returned dim %d, want %d", len(out.Vector), c.dim)
	}
	return out.Vector, nil
}
