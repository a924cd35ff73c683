package vecutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyrag/internal/domain"
)

func TestEncodeDecodeEmbedding(t *testing.T) {
	vec := []float32{0.25, -1.5, 3}
	blob := EncodeEmbedding(vec)
	assert.Len(t, blob, 12)
	got, err := DecodeEmbedding(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = DecodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	s, err := Cosine([]float32{1, 0}, []float32{2, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-9)

	s, err = Cosine([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Zero(t, s)

	_, err = Cosine([]float32{1}, []float32{1, 0})
	assert.ErrorIs(t, err, domain.ErrDimension)
}

func TestTopKKeepsBest(t *testing.T) {
	top := NewTopK(2)
	for i, score := range []float64{0.1, 0.9, 0.5, 0.7} {
		top.Push(domain.ScoredChunk{Chunk: domain.Chunk{ID: string(rune('a' + i))}, Score: score})
	}
	got := top.Result()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Chunk.ID)
	assert.Equal(t, "d", got[1].Chunk.ID)
}
