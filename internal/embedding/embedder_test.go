package embedding

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyrag/internal/config"
	"energyrag/internal/domain"
	"energyrag/internal/retry"
)

// fakeEmbedder encodes each text's length so order can be checked.
type fakeEmbedder struct {
	dims      int
	batches   [][]string
	failFirst int
	badDims   bool
}

func (f *fakeEmbedder) Name() string    { return "fake" }
func (f *fakeEmbedder) ModelID() string { return "fake-model" }
func (f *fakeEmbedder) Dimensions() int { return f.dims }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.failFirst > 0 {
		f.failFirst--
		return nil, domain.NewStatusError("fake", "embed", 503, "warming up")
	}
	f.batches = append(f.batches, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		n := f.dims
		if f.badDims {
			n = f.dims + 1
		}
		v := make([]float32, n)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestBatcherBoundsBatchesAndPreservesOrder(t *testing.T) {
	f := &fakeEmbedder{dims: 4}
	texts := make([]string, 7)
	for i := range texts {
		texts[i] = fmt.Sprintf("%*s", i+1, "x")
	}
	vecs, err := Batcher{Embedder: f, BatchSize: 3, Policy: fastPolicy()}.Embed(context.Background(), texts, "")
	require.NoError(t, err)

	require.Len(t, f.batches, 3)
	assert.Len(t, f.batches[0], 3)
	assert.Len(t, f.batches[2], 1)
	require.Len(t, vecs, 7)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0])
	}
}

func TestBatcherAppliesPrefix(t *testing.T) {
	f := &fakeEmbedder{dims: 2}
	_, err := Batcher{Embedder: f, BatchSize: 8}.Embed(context.Background(), []string{"boiler"}, "passage: ")
	require.NoError(t, err)
	assert.Equal(t, []string{"passage: boiler"}, f.batches[0])
}

func TestBatcherRetriesTransientFailures(t *testing.T) {
	f := &fakeEmbedder{dims: 2, failFirst: 2}
	vecs, err := Batcher{Embedder: f, BatchSize: 8, Policy: fastPolicy()}.Embed(context.Background(), []string{"a", "b"}, "")
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestBatcherRejectsWrongDimensions(t *testing.T) {
	f := &fakeEmbedder{dims: 3, badDims: true}
	_, err := Batcher{Embedder: f, BatchSize: 8}.Embed(context.Background(), []string{"a"}, "")
	assert.ErrorIs(t, err, domain.ErrDimension)
}

func TestEmbedChunksTagsVectors(t *testing.T) {
	f := &fakeEmbedder{dims: 5}
	chunks := []domain.Chunk{{ID: "c1", Text: "ab"}, {ID: "c2", Text: "abc"}}
	vecs, err := Batcher{Embedder: f, BatchSize: 1}.EmbedChunks(context.Background(), chunks, "")
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, "c2", vecs[1].ChunkID)
	assert.Equal(t, "fake-model", vecs[1].ModelID)
	assert.Equal(t, 5, vecs[1].Dimensionality)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("fake", func(cfg config.EmbeddingConfig) (domain.Embedder, error) {
		return &fakeEmbedder{dims: cfg.Dimensions}, nil
	})
	emb, err := r.New(config.EmbeddingConfig{Provider: "fake", Dimensions: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, emb.Dimensions())

	_, err = r.New(config.EmbeddingConfig{Provider: "word2vec"})
	assert.ErrorIs(t, err, domain.ErrConfig)
	assert.Equal(t, []string{"fake"}, r.Names())
}
