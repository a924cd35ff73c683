// Package gemini generates answers through the Gemini generateContent API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"energyrag/internal/config"
	"energyrag/internal/domain"
	"energyrag/internal/generation"
	"energyrag/internal/httpjson"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// blockedFinish lists finish reasons that mean the reply was withheld.
var blockedFinish = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
}

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
	h := httpjson.New("gemini", cfg.Timeout(), cfg.RequestsPerSecond)
	h.SetHeader("x-goog-api-key", key)
	return &Generator{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxTokens:   generation.MaxTokens(cfg),
		temperature: cfg.Temperature,
		http:        h,
	}, nil
}

func (g *Generator) Name() string    { return "gemini" }
func (g *Generator) ModelID() string { return g.model }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *Generator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: p.User}}}},
		GenerationConfig: generationConfig{
			Temperature:      g.temperature,
			MaxOutputTokens:  g.maxTokens,
			ResponseMimeType: "application/json",
		},
	}
	if p.System != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: p.System}}}
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))

	var resp generateResponse
	if err := g.http.Post(ctx, endpoint, "generate", req, &resp); err != nil {
		return "", err
	}
	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		return "", &domain.ContentPolicyError{Provider: "gemini", Message: "prompt blocked: " + reason}
	}
	if len(resp.Candidates) == 0 {
		return "", &domain.ProviderError{Provider: "gemini", Op: "generate", Err: errors.New("no candidates returned")}
	}
	cand := resp.Candidates[0]
	if blockedFinish[cand.FinishReason] {
		return "", &domain.ContentPolicyError{Provider: "gemini", Message: "response blocked: " + cand.FinishReason}
	}
	var b strings.Builder
	for _, pt := range cand.Content.Parts {
		b.WriteString(pt.Text)
	}
	if b.Len() == 0 {
		return "", &domain.ProviderError{Provider: "gemini", Op: "generate", Err: errors.New("empty candidate")}
	}
	return b.String(), nil
}
