// Package openai embeds text through the OpenAI embeddings API or any
// OpenAI-compatible /embeddings endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"energyrag/internal/config"
	"energyrag/internal/domain"
	"energyrag/internal/httpjson"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
)

// Client wraps an openai-go client for one embedding model.
type Client struct {
	model      string
	dimensions int
	client     openai.Client
	limiter    *rate.Limiter
}

// NewClient creates a new embeddings client from a config entry. The API key
// is read from the environment variable named by APIKeyEnv.
func NewClient(cfg config.EmbeddingConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		return nil, &domain.ConfigError{Field: "embeddings.dimensions", Reason: "must be set for " + cfg.Model}
	}
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/") + "/"),
		option.WithMaxRetries(0),
	}
	if cfg.APIKeyEnv != "" {
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, &domain.ConfigError{Field: "embeddings.api_key_env", Reason: fmt.Sprintf("missing API key in env %s", cfg.APIKeyEnv)}
		}
		opts = append(opts, option.WithAPIKey(key))
	}
	if t := cfg.Timeout(); t > 0 {
		opts = append(opts, option.WithRequestTimeout(t))
	}
	c := &Client{
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     openai.NewClient(opts...),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(math.Ceil(cfg.RequestsPerSecond)))
	}
	return c, nil
}

// New adapts NewClient to the embedding registry.
func New(cfg config.EmbeddingConfig) (domain.Embedder, error) { return NewClient(cfg) }

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

func (c *Client) ModelID() string { return c.model }

// Dimensions returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimensions() int { return c.dimensions }

// Embed sends one batch request. Results are reordered by their index field
// and must match the configured dimensionality.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          c.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	data := resp.Data
	if len(data) != len(texts) {
		return nil, &domain.ProviderError{
			Provider: "openai",
			Op:       "embed",
			Err:      fmt.Errorf("got %d embeddings for %d inputs", len(data), len(texts)),
		}
	}
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vecs := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) != c.dimensions {
			return nil, &domain.DimensionError{Expected: c.dimensions, Got: len(d.Embedding), Where: "openai " + c.model}
		}
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (c *Client) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return domain.NewTransportError("openai", "embed", err)
	}
	pe := domain.NewStatusError("openai", "embed", apiErr.StatusCode, apiErr.Message)
	if apiErr.Response != nil {
		pe.RetryAfter = httpjson.RetryAfter(apiErr.Response.Header.Get("Retry-After"))
	}
	return pe
}
