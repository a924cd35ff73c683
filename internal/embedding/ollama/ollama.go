// Package ollama embeds text with a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"strings"

	"energyrag/internal/config"
	"energyrag/internal/domain"
	"energyrag/internal/httpjson"
)

const DefaultBaseURL = "http://localhost:11434"

// Client calls the batch /api/embed endpoint.
type Client struct {
	baseURL    string
	model      string
	dimensions int
	http       *httpjson.Client
}

func NewClient(cfg config.EmbeddingConfig) (*Client, error) {
	if cfg.Model == "" {
		return nil, &domain.ConfigError{Field: "embeddings.model", Reason: "is required for ollama"}
	}
	if cfg.Dimensions <= 0 {
		return nil, &domain.ConfigError{Field: "embeddings.dimensions", Reason: "must be set for " + cfg.Model}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		http:       httpjson.New("ollama", cfg.Timeout(), cfg.RequestsPerSecond),
	}, nil
}

// New adapts NewClient to the embedding registry.
func New(cfg config.EmbeddingConfig) (domain.Embedder, error) { return NewClient(cfg) }

func (c *Client) Name() string    { return "ollama" }
func (c *Client) ModelID() string { return c.model }
func (c *Client) Dimensions() int { return c.dimensions }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out embedResponse
	if err := c.http.Post(ctx, c.baseURL+"/api/embed", "embed", embedRequest{Model: c.model, Input: texts}, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, &domain.ProviderError{
			Provider: "ollama",
			Op:       "embed",
			Err:      fmt.Errorf("got %d embeddings for %d inputs", len(out.Embeddings), len(texts)),
		}
	}
	return out.Embeddings, nil
}
