// Package ollama implements the generative backend client for a local
// Ollama inference server.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jstall/pennywise/internal/common"
	"github.com/jstall/pennywise/internal/service"
)

// Default request timeouts. Embeddings and availability probes are quick;
// full generation against a local model is not.
const (
	embedTimeout    = 10 * time.Second
	generateTimeout = 60 * time.Second
	probeTimeout    = 3 * time.Second
	pullTimeout     = 10 * time.Minute
)

// Config holds Ollama client configuration.
type Config struct {
	BaseURL        string
	GenerateModel  string
	EmbeddingModel string
	MaxConns       int
}

// Client talks to a local Ollama server. The transport is capped at a
// small number of concurrent sockets so batch categorization cannot
// overwhelm the inference server; idle connections are recycled.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	generateModel  string
	embeddingModel string
}

// NewClient creates an Ollama client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	generateModel := cfg.GenerateModel
	if generateModel == "" {
		generateModel = "llama3.2"
	}

	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = "nomic-embed-text"
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 5
	}

	return &Client{
		baseURL:        baseURL,
		generateModel:  generateModel,
		embeddingModel: embeddingModel,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxConnsPerHost:     maxConns,
				MaxIdleConns:        maxConns,
				MaxIdleConnsPerHost: maxConns,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// EmbeddingModel returns the configured embedding model name.
func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}

// Generate runs a completion request and returns the raw response text.
func (c *Client) Generate(ctx context.Context, prompt string, opts service.GenerateOptions) (string, error) {
	temperature := opts.Temperature
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}

	requestBody := map[string]any{
		"model":  c.generateModel,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	body, err := c.post(ctx, "/api/generate", requestBody)
	if err != nil {
		return "", err
	}

	var response struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse generate response: %w", err)
	}

	return response.Response, nil
}

// Embed returns the embedding vector for text. A 404 for the model maps to
// common.ErrModelNotFound so callers can distinguish a missing model from a
// transient failure.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	requestBody := map[string]any{
		"model":  c.embeddingModel,
		"prompt": text,
	}

	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	body, err := c.post(ctx, "/api/embeddings", requestBody)
	if err != nil {
		return nil, err
	}

	var response struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}

	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	return response.Embedding, nil
}

// IsAvailable probes the server's model listing endpoint.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// Pull asks the server to download a model.
func (c *Client) Pull(ctx context.Context, modelName string) error {
	requestBody := map[string]any{
		"name":   modelName,
		"stream": false,
	}

	ctx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	if _, err := c.post(ctx, "/api/pull", requestBody); err != nil {
		return fmt.Errorf("failed to pull model %s: %w", modelName, err)
	}
	return nil
}

// post sends a JSON request and returns the response body, mapping error
// statuses to the common error taxonomy.
func (c *Client) post(ctx context.Context, path string, requestBody any) ([]byte, error) {
	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(jsonBody)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", common.ErrModelNotFound, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
