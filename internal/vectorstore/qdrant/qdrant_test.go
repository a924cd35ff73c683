package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyrag/internal/domain"
)

// fakeQdrant implements the handful of endpoints the store uses.
type fakeQdrant struct {
	mu      sync.Mutex
	size    int
	points  map[string]point
	creates int
	waited  bool
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	const base = "/collections/energy"
	switch {
	case r.Method == http.MethodGet && r.URL.Path == base:
		if f.size == 0 {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection energy doesn't exist!"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":` + itoa(f.size) + `,"distance":"Cosine"}}}}}`))
	case r.Method == http.MethodPut && r.URL.Path == base:
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.size = body.Vectors.Size
		f.creates++
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.Method == http.MethodPut && r.URL.Path == base+"/points":
		f.waited = r.URL.Query().Get("wait") == "true"
		var body struct {
			Points []point `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			f.points[p.ID] = p
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case r.Method == http.MethodPost && r.URL.Path == base+"/points/search":
		type hit struct {
			Score   float64      `json:"score"`
			Payload domain.Chunk `json:"payload"`
		}
		var out struct {
			Result []hit `json:"result"`
		}
		for _, p := range f.points {
			out.Result = append(out.Result, hit{Score: float64(p.Vector[0]), Payload: p.Payload})
		}
		_ = json.NewEncoder(w).Encode(out)
	case r.Method == http.MethodPost && r.URL.Path == base+"/points/count":
		_, _ = w.Write([]byte(`{"result":{"count":` + itoa(len(f.points)) + `}}`))
	case r.Method == http.MethodDelete && r.URL.Path == base:
		if f.size == 0 {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection energy doesn't exist!"}}`))
			return
		}
		f.size = 0
		f.points = map[string]point{}
		_, _ = w.Write([]byte(`{"result":true}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newFake(t *testing.T) (*fakeQdrant, *Storage) {
	t.Helper()
	f := &fakeQdrant{points: map[string]point{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, NewStorage(Config{URL: srv.URL, Collection: "energy"})
}

func TestInitCreatesMissingCollection(t *testing.T) {
	f, s := newFake(t)
	require.NoError(t, s.Init(context.Background(), 4))
	assert.Equal(t, 1, f.creates)
	assert.Equal(t, 4, f.size)

	// existing collection with matching size is reused
	require.NoError(t, s.Init(context.Background(), 4))
	assert.Equal(t, 1, f.creates)
}

func TestInitRejectsDifferentDimension(t *testing.T) {
	f, s := newFake(t)
	f.size = 768
	err := s.Init(context.Background(), 384)
	assert.ErrorIs(t, err, domain.ErrDimension)
}

func TestUpsertSearchCount(t *testing.T) {
	f, s := newFake(t)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, 2))

	docID := domain.DocumentID("lighting.txt")
	chunks := []domain.Chunk{
		{ID: domain.ChunkID(docID, 0), DocumentID: docID, DocumentTitle: "Lighting", Text: "LED retrofit", SequenceIndex: 0},
		{ID: domain.ChunkID(docID, 1), DocumentID: docID, DocumentTitle: "Lighting", Text: "occupancy sensors", SequenceIndex: 1, StartOffset: 5, EndOffset: 20},
	}
	require.NoError(t, s.Upsert(ctx, chunks, [][]float32{{0.2, 0}, {0.9, 0}}))
	require.NoError(t, s.Upsert(ctx, chunks, [][]float32{{0.2, 0}, {0.9, 0}}))
	assert.True(t, f.waited)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, chunks[1], hits[0].Chunk)
	assert.InDelta(t, 0.9, hits[0].Score, 1e-6)

	_, err = s.Search(ctx, []float32{1, 0, 0}, 2)
	assert.ErrorIs(t, err, domain.ErrDimension)
}

func TestClearRecreatesCollection(t *testing.T) {
	f, s := newFake(t)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ID: domain.ChunkID(domain.DocumentID("x"), 0)}}, [][]float32{{1, 0}}))
	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 2, f.size)
	assert.Empty(t, f.points)
}

func TestClearBeforeInitAllowsNewDimension(t *testing.T) {
	f, s := newFake(t)
	ctx := context.Background()
	f.size = 768
	require.NoError(t, s.Clear(ctx))
	assert.Zero(t, f.size)
	require.NoError(t, s.Init(ctx, 384))
	assert.Equal(t, 384, f.size)

	// clearing a collection that does not exist is not an error
	fresh, s2 := newFake(t)
	require.NoError(t, s2.Clear(ctx))
	assert.Zero(t, fresh.creates)
}

func TestUnreachableServerIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	s := NewStorage(Config{URL: url, Collection: "energy"})
	err := s.Init(context.Background(), 2)
	assert.True(t, domain.IsRetryable(err))
}
