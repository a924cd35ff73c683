package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"energyrag/internal/domain"
	"energyrag/internal/httpjson"
)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
// Chunk IDs are UUIDs and are used directly as point IDs.
type Storage struct {
	base       string
	collection string
	dimension  int
	http       *httpjson.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	h := httpjson.New("qdrant", timeout, 0)
	h.SetHeader("api-key", cfg.APIKey)
	return &Storage{
		base:       strings.TrimRight(cfg.URL, "/") + "/collections/" + url.PathEscape(cfg.Collection),
		collection: cfg.Collection,
		http:       h,
	}
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// Init creates the collection when it does not exist and otherwise checks
// that its vector size matches dimension.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return &domain.ConfigError{Field: "dimensions", Reason: fmt.Sprintf("invalid dimension %d", dimension)}
	}
	var info collectionInfo
	err := s.http.Get(ctx, s.base, "get collection", &info)
	switch {
	case isNotFound(err):
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if err := s.http.Put(ctx, s.base, "create collection", body, nil); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if got := info.Result.Config.Params.Vectors.Size; got != dimension {
			return &domain.DimensionError{Expected: got, Got: dimension, Where: "qdrant collection " + s.collection}
		}
	}
	s.dimension = dimension
	return nil
}

type point struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector"`
	Payload domain.Chunk `json:"payload"`
}

// Upsert writes points with wait=true so they are searchable on return.
func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	points := make([]point, len(chunks))
	for i := range chunks {
		if len(vectors[i]) != s.dimension {
			return &domain.DimensionError{Expected: s.dimension, Got: len(vectors[i]), Where: "qdrant upsert"}
		}
		points[i] = point{ID: chunks[i].ID, Vector: vectors[i], Payload: chunks[i]}
	}
	body := map[string]any{"points": points}
	return s.http.Put(ctx, s.base+"/points?wait=true", "upsert", body, nil)
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredChunk, error) {
	if len(vector) != s.dimension {
		return nil, &domain.DimensionError{Expected: s.dimension, Got: len(vector), Where: "qdrant search"}
	}
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64      `json:"score"`
			Payload domain.Chunk `json:"payload"`
		} `json:"result"`
	}
	if err := s.http.Post(ctx, s.base+"/points/search", "search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.ScoredChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.ScoredChunk{Chunk: r.Payload, Score: r.Score})
	}
	domain.SortScored(results)
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.http.Post(ctx, s.base+"/points/count", "count", map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Clear drops the collection and recreates it empty when the dimension is known.
func (s *Storage) Clear(ctx context.Context) error {
	if err := s.http.Do(ctx, http.MethodDelete, s.base, "drop collection", nil, nil); err != nil && !isNotFound(err) {
		return err
	}
	if s.dimension == 0 {
		return nil
	}
	dim := s.dimension
	s.dimension = 0
	return s.Init(ctx, dim)
}

func (s *Storage) Close() error { return nil }

func isNotFound(err error) bool {
	var pe *domain.ProviderError
	return errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound
}
