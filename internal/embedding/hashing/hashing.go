// Package hashing is a local embedder that needs no model or network.
// Tokens are hashed into a fixed number of buckets (the hashing trick) and
// weighted by sublinear term frequency, then L2-normalized.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"energyrag/internal/config"
	"energyrag/internal/domain"
)

// Embedder implements feature-hashed bag-of-words vectors.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates a hashing embedder producing vectors of the given size.
func NewEmbedder(dimension int) (*Embedder, error) {
	if dimension <= 0 {
		return nil, &domain.ConfigError{Field: "embeddings.dimensions", Reason: "must be positive for the hashing embedder"}
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}, nil
}

// New adapts NewEmbedder to the embedding registry.
func New(cfg config.EmbeddingConfig) (domain.Embedder, error) { return NewEmbedder(cfg.Dimensions) }

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

func (e *Embedder) ModelID() string { return "hashing" }

// Dimensions returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimensions() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	tf := make(map[string]int)
	for _, tok := range e.tokenize(text) {
		tf[tok]++
	}
	vec := make([]float64, e.dimension)
	for tok, count := range tf {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimension))
		w := 1 + math.Log(float64(count))
		// top bit picks the sign so collisions tend to cancel
		if sum>>63 == 1 {
			w = -w
		}
		vec[idx] += w
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, e.dimension)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"how", "what", "which", "who", "do", "does", "i", "my", "we", "our", "you", "your",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
