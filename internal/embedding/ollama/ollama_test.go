package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyrag/internal/config"
	"energyrag/internal/domain"
)

func TestEmbedUsesBatchEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)
		assert.Len(t, req.Input, 2)
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3],[0.4,0.5,0.6]]}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "all-minilm", Dimensions: 3})
	require.NoError(t, err)
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, vecs[1])
}

func TestEmbedReportsShortResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1]]}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", Dimensions: 1})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(config.EmbeddingConfig{Dimensions: 3})
	assert.ErrorIs(t, err, domain.ErrConfig)
	_, err = NewClient(config.EmbeddingConfig{Model: "m"})
	assert.ErrorIs(t, err, domain.ErrConfig)
}
