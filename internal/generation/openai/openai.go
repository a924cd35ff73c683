// Package openai generates answers through the OpenAI chat completions API.
// The same client serves OpenAI-compatible hosts such as Groq.
package openai

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"energyrag/internal/config"
	"energyrag/internal/domain"
	"energyrag/internal/generation"
	"energyrag/internal/httpjson"
)

const GroqBaseURL = "https://api.groq.com/openai/v1"

// Generator wraps an openai-go client.
type Generator struct {
	name        string
	model       string
	maxTokens   int
	temperature float64
	client      openai.Client
	limiter     *rate.Limiter
}

// New builds an OpenAI generator.
func New(cfg config.LLMConfig) (domain.Generator, error) { return newGenerator("openai", cfg) }

// NewGroq builds a generator for Groq's OpenAI-compatible endpoint.
func NewGroq(cfg config.LLMConfig) (domain.Generator, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = GroqBaseURL
	}
	return newGenerator("groq", cfg)
}

func newGenerator(name string, cfg config.LLMConfig) (*Generator, error) {
	key, err := generation.APIKey(cfg)
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		// retries are owned by the pipeline's retry policy
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	if t := cfg.Timeout(); t > 0 {
		opts = append(opts, option.WithRequestTimeout(t))
	}
	g := &Generator{
		name:        name,
		model:       cfg.Model,
		maxTokens:   generation.MaxTokens(cfg),
		temperature: cfg.Temperature,
		client:      openai.NewClient(opts...),
	}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(math.Ceil(cfg.RequestsPerSecond)))
	}
	return g, nil
}

func (g *Generator) Name() string    { return g.name }
func (g *Generator) ModelID() string { return g.model }

// Generate sends the prompt as a system and a user message.
func (g *Generator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.User),
		},
		MaxTokens:   openai.Int(int64(g.maxTokens)),
		Temperature: openai.Float(g.temperature),
	})
	if err != nil {
		return "", g.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", &domain.ProviderError{Provider: g.name, Op: "generate", Err: errors.New("no choices returned")}
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", &domain.ContentPolicyError{Provider: g.name, Message: "response blocked by content filter"}
	}
	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		return "", &domain.ContentPolicyError{Provider: g.name, Message: refusal}
	}
	return choice.Message.Content, nil
}

func (g *Generator) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return domain.NewTransportError(g.name, "generate", err)
	}
	if apiErr.Code == "content_filter" || apiErr.Code == "content_policy_violation" {
		return &domain.ContentPolicyError{Provider: g.name, Message: apiErr.Message}
	}
	pe := domain.NewStatusError(g.name, "generate", apiErr.StatusCode, apiErr.Message)
	if apiErr.Response != nil {
		pe.RetryAfter = httpjson.RetryAfter(apiErr.Response.Header.Get("Retry-After"))
	}
	return pe
}
