package config

import (
	"fmt"
	"sort"
	"strings"

	"energyrag/internal/domain"
)

// Known provider identifiers. Registries in the embedding, generation and
// vectorstore packages must cover these names.
var (
	EmbeddingProviders = []string{"openai", "ollama", "hashing"}
	LLMProviders       = []string{"openai", "groq", "anthropic", "gemini", "ollama"}
	DBTypes            = []string{"memory", "sqlite", "qdrant"}
)

func invalid(field, format string, args ...any) error {
	return &domain.ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate rejects missing or inconsistent values with a ConfigError.
func (c *AppConfig) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return invalid("chunking.chunk_size", "must be a positive integer, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap <= 0 {
		return invalid("chunking.chunk_overlap", "must be a positive integer, got %d", c.Chunking.ChunkOverlap)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return invalid("chunking.chunk_overlap", "must be smaller than chunk_size (%d >= %d)", c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Chunking.BoundaryTolerance < 0 {
		return invalid("chunking.boundary_tolerance", "must not be negative")
	}
	if c.Retrieval.NumDocs <= 0 {
		return invalid("retrieval.num_docs", "must be a positive integer, got %d", c.Retrieval.NumDocs)
	}
	if c.Retrieval.ChunksPerDoc < 0 {
		return invalid("retrieval.chunks_per_doc", "must not be negative")
	}
	if c.Retrieval.MinScore < -1 || c.Retrieval.MinScore > 1 {
		return invalid("retrieval.min_score", "must be within [-1, 1], got %g", c.Retrieval.MinScore)
	}
	if c.Retrieval.DedupTolerance <= 0 || c.Retrieval.DedupTolerance > 1 {
		return invalid("retrieval.dedup_tolerance", "must be within (0, 1], got %g", c.Retrieval.DedupTolerance)
	}
	if c.Generation.PromptBudgetChars < 0 {
		return invalid("generation.prompt_budget_chars", "must not be negative")
	}
	if c.Generation.MaxAttempts < 1 {
		return invalid("generation.max_attempts", "must be at least 1")
	}
	if c.Indexing.Workers < 1 {
		return invalid("indexing.workers", "must be at least 1")
	}

	emb, err := lookup("retrieval.active_embedding", c.Retrieval.ActiveEmbedding, c.Embeddings)
	if err != nil {
		return err
	}
	if err := oneOf("embeddings."+c.Retrieval.ActiveEmbedding+".provider", emb.Provider, EmbeddingProviders); err != nil {
		return err
	}
	if emb.Dimensions <= 0 {
		return invalid("embeddings."+c.Retrieval.ActiveEmbedding+".dimensions", "must be a positive integer")
	}
	if emb.BatchSize <= 0 {
		return invalid("embeddings."+c.Retrieval.ActiveEmbedding+".batch_size", "must be a positive integer")
	}

	llm, err := lookup("generation.active_student", c.Generation.ActiveStudent, c.LLM)
	if err != nil {
		return err
	}
	if err := oneOf("llm."+c.Generation.ActiveStudent+".provider", llm.Provider, LLMProviders); err != nil {
		return err
	}
	if llm.Model == "" {
		return invalid("llm."+c.Generation.ActiveStudent+".model", "is required")
	}

	db, err := lookup("retrieval.active_db", c.Retrieval.ActiveDB, c.DB)
	if err != nil {
		return err
	}
	if err := oneOf("db."+c.Retrieval.ActiveDB+".type", db.Type, DBTypes); err != nil {
		return err
	}
	switch db.Type {
	case "sqlite":
		if db.Path == "" {
			return invalid("db."+c.Retrieval.ActiveDB+".path", "is required for sqlite")
		}
	case "qdrant":
		if db.URL == "" || db.Collection == "" {
			return invalid("db."+c.Retrieval.ActiveDB, "qdrant requires url and collection")
		}
	}
	return nil
}

func lookup[T any](field, key string, entries map[string]T) (T, error) {
	var zero T
	if key == "" {
		return zero, invalid(field, "is required")
	}
	v, ok := entries[key]
	if !ok {
		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}
		sort.Strings(names)
		return zero, invalid(field, "%q is not defined (available: %s)", key, strings.Join(names, ", "))
	}
	return v, nil
}

func oneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return invalid(field, "unknown value %q (expected one of %s)", value, strings.Join(allowed, ", "))
}
