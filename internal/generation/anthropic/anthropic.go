// Package anthropic generates answers through the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"energyrag/internal/config"
	"energyrag/internal/domain"
	"energyrag/internal/generation"
	"energyrag/internal/httpjson"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

type Generator struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	http        *httpjson.Client
}

func New(cfg config.LLMConfig) (domain.Generator, error) {
	key, err := generation.APIKey(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	h := httpjson.New("anthropic", cfg.Timeout(), cfg.RequestsPerSecond)
	h.SetHeader("x-api-key", key)
	h.SetHeader("anthropic-version", apiVersion)
	return &Generator{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxTokens:   generation.MaxTokens(cfg),
		temperature: cfg.Temperature,
		http:        h,
	}, nil
}

func (g *Generator) Name() string    { return "anthropic" }
func (g *Generator) ModelID() string { return g.model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (g *Generator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	req := messagesRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		System:      p.System,
		Messages:    []message{{Role: "user", Content: p.User}},
		Temperature: g.temperature,
	}
	var resp messagesResponse
	if err := g.http.Post(ctx, g.baseURL+"/v1/messages", "generate", req, &resp); err != nil {
		return "", err
	}
	if resp.StopReason == "refusal" {
		return "", &domain.ContentPolicyError{Provider: "anthropic", Message: "the model declined to answer"}
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", &domain.ProviderError{Provider: "anthropic", Op: "generate", Err: errors.New("no text content returned")}
	}
	return b.String(), nil
}
