// Package embedding selects embedding variants by name and runs bounded,
// order-preserving batch embedding on top of any domain.Embedder.
package embedding

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"energyrag/internal/config"
	"energyrag/internal/domain"
	"energyrag/internal/logger"
	"energyrag/internal/retry"
)

// Factory builds an embedder from its configuration entry.
type Factory func(cfg config.EmbeddingConfig) (domain.Embedder, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the embedder for cfg.Provider.
func (r *Registry) New(cfg config.EmbeddingConfig) (domain.Embedder, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.ConfigError{
			Field:  "embeddings.provider",
			Reason: fmt.Sprintf("no embedding provider %q (registered: %s)", cfg.Provider, strings.Join(r.Names(), ", ")),
		}
	}
	emb, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.Provider, err)
	}
	return emb, nil
}

// Batcher embeds arbitrarily many texts in bounded batches, retrying each
// batch under Policy and checking every vector against the model dimensionality.
type Batcher struct {
	Embedder  domain.Embedder
	BatchSize int
	Policy    retry.Policy
}

// Embed returns one vector per text, in input order. prefix is prepended to
// every text (e.g. "passage: " for E5 models).
func (b Batcher) Embed(ctx context.Context, texts []string, prefix string) ([][]float32, error) {
	size := b.BatchSize
	if size <= 0 {
		size = 32
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		batch := make([]string, end-start)
		for i, t := range texts[start:end] {
			batch[i] = prefix + t
		}
		op := b.Embedder.Name() + " embed"
		vecs, err := retry.DoValue(ctx, b.Policy, op, func(ctx context.Context) ([][]float32, error) {
			return b.Embedder.Embed(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, &domain.ProviderError{
				Provider: b.Embedder.Name(),
				Op:       "embed",
				Err:      fmt.Errorf("got %d vectors for %d inputs", len(vecs), len(batch)),
			}
		}
		for _, v := range vecs {
			if len(v) != b.Embedder.Dimensions() {
				return nil, &domain.DimensionError{Expected: b.Embedder.Dimensions(), Got: len(v), Where: b.Embedder.ModelID()}
			}
		}
		out = append(out, vecs...)
		logger.Debug("embedded batch %d-%d of %d with %s", start, end, len(texts), b.Embedder.ModelID())
	}
	return out, nil
}

// EmbedChunks embeds chunk texts and tags each vector with its chunk and model.
func (b Batcher) EmbedChunks(ctx context.Context, chunks []domain.Chunk, prefix string) ([]domain.EmbeddingVector, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := b.Embed(ctx, texts, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.EmbeddingVector, len(chunks))
	for i, c := range chunks {
		out[i] = domain.EmbeddingVector{
			ChunkID:        c.ID,
			ModelID:        b.Embedder.ModelID(),
			Values:         vecs[i],
			Dimensionality: len(vecs[i]),
		}
	}
	return out, nil
}
