// Package remote embeds text through an OpenAI-compatible /embeddings
// endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dslachut/hawat/core"
	"github.com/dslachut/hawat/memory"
)

var _ memory.Embedder = (*Client)(nil)

// Config configures the remote embedder.
type Config struct {
	// BaseURL is the API root, e.g. https://api.openai.com/v1.
	BaseURL string
	APIKey  string
	Model   string

	// Dimensions is the expected vector size (default: 384). Responses of
	// another size are rejected.
	Dimensions int

	// Timeout bounds one request. Default: 30s.
	Timeout time.Duration
}

// Client is an OpenAI-compatible embeddings client.
type Client struct {
	url        string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

// New creates an embeddings client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("Model is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = core.EmbeddingDimensions
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		url:        buildEmbeddingURL(strings.TrimSuffix(cfg.BaseURL, "/")),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// buildEmbeddingURL appends /embeddings unless the URL already ends with it.
func buildEmbeddingURL(baseURL string) string {
	if strings.HasSuffix(baseURL, "/embeddings") {
		return baseURL
	}
	return baseURL + "/embeddings"
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed sends one text and returns its vector. Blank text returns nil
// without a request. No retry is attempted.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(msg))
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	embedding := out.Data[0].Embedding
	if len(embedding) != c.dimensions {
		return nil, fmt.Errorf("dimension mismatch: got %d, expected %d", len(embedding), c.dimensions)
	}
	return embedding, nil
}

// Dimensions returns the expected vector size.
func (c *Client) Dimensions() int {
	return c.dimensions
}
