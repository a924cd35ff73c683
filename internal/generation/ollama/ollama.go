// Package ollama generates answers with a local Ollama chat model.
package ollama

import (
	"context"
	"errors"
	"strings"

	"energyrag/internal/config"
	"energyrag/internal/domain"
	"energyrag/internal/generation"
	"energyrag/internal/httpjson"
)

const DefaultBaseURL = "http://localhost:11434"

type Generator struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	http        *httpjson.Client
}

func New(cfg config.LLMConfig) (domain.Generator, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Generator{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxTokens:   generation.MaxTokens(cfg),
		temperature: cfg.Temperature,
		http:        httpjson.New("ollama", cfg.Timeout(), cfg.RequestsPerSecond),
	}, nil
}

func (g *Generator) Name() string    { return "ollama" }
func (g *Generator) ModelID() string { return g.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format"`
	Options  map[string]any `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Generate asks for JSON-formatted output in a single non-streamed reply.
func (g *Generator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	req := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Format: "json",
		Options: map[string]any{
			"temperature": g.temperature,
			"num_predict": g.maxTokens,
		},
	}
	var resp chatResponse
	if err := g.http.Post(ctx, g.baseURL+"/api/chat", "generate", req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", &domain.ProviderError{Provider: "ollama", Op: "generate", Err: errors.New("empty reply")}
	}
	return resp.Message.Content, nil
}
