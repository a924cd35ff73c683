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

func TestGenerateRequestsJSONChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "json", req.Format)
		assert.Equal(t, "llama3.2", req.Model)
		require.Len(t, req.Messages, 2)
		assert.EqualValues(t, 1024, req.Options["num_predict"])
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{\"answer\":\"ok\"}"},"done":true}`))
	}))
	defer srv.Close()

	g, err := New(config.LLMConfig{BaseURL: srv.URL, Model: "llama3.2", TimeoutSecs: 5})
	require.NoError(t, err)
	out, err := g.Generate(context.Background(), domain.Prompt{System: "sys", User: "q"})
	require.NoError(t, err)
	assert.Equal(t, `{"answer":"ok"}`, out)
}

func TestGenerateModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"llama3.2\" not found"}`))
	}))
	defer srv.Close()

	g, err := New(config.LLMConfig{BaseURL: srv.URL, Model: "llama3.2", TimeoutSecs: 5})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), domain.Prompt{User: "q"})
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.False(t, domain.IsRetryable(err))
	assert.Contains(t, err.Error(), "not found")
}
