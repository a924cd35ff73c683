package memory

import (
	"context"
	"fmt"
	"sync"

	"energyrag/internal/domain"
	"energyrag/internal/vectorstore/vecutil"
)

type entry struct {
	chunk  domain.Chunk
	vector []float32
}

// Storage is an in-memory vector store using brute-force cosine similarity.
// Entries are keyed by chunk ID; a chunk and its vector are swapped in
// under one lock so readers never see half of a pair.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]entry
}

func NewStorage() *Storage { return &Storage{entries: make(map[string]entry)} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return &domain.ConfigError{Field: "dimensions", Reason: fmt.Sprintf("invalid dimension %d", dimension)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && len(s.entries) > 0 {
		return &domain.DimensionError{Expected: s.dimension, Got: dimension, Where: "memory index"}
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return &domain.DimensionError{Expected: s.dimension, Got: len(v), Where: "memory upsert"}
		}
	}
	for i, c := range chunks {
		s.entries[c.ID] = entry{chunk: c, vector: append([]float32(nil), vectors[i]...)}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) != s.dimension {
		return nil, &domain.DimensionError{Expected: s.dimension, Got: len(vector), Where: "memory search"}
	}
	if topK <= 0 {
		topK = 5
	}
	top := vecutil.NewTopK(topK)
	for _, e := range s.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score, err := vecutil.Cosine(vector, e.vector)
		if err != nil {
			return nil, err
		}
		top.Push(domain.ScoredChunk{Chunk: e.chunk, Score: score})
	}
	return top.Result(), nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
	return nil
}

func (s *Storage) Close() error { return nil }
