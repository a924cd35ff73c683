package anthropic

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

func newTestGenerator(t *testing.T, h http.HandlerFunc) domain.Generator {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Setenv("ENERGYRAG_ANTHROPIC_KEY", "ak-test")
	g, err := New(config.LLMConfig{BaseURL: srv.URL, Model: "claude-test", APIKeyEnv: "ENERGYRAG_ANTHROPIC_KEY", TimeoutSecs: 5})
	require.NoError(t, err)
	return g
}

func TestGenerateJoinsTextBlocks(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sys", req.System)
		assert.Equal(t, 1024, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"answer\":"},{"type":"text","text":"\"ok\"}"}],"stop_reason":"end_turn"}`))
	})

	out, err := g.Generate(context.Background(), domain.Prompt{System: "sys", User: "q"})
	require.NoError(t, err)
	assert.Equal(t, `{"answer":"ok"}`, out)
}

func TestGenerateRefusal(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[],"stop_reason":"refusal"}`))
	})

	_, err := g.Generate(context.Background(), domain.Prompt{User: "q"})
	assert.ErrorIs(t, err, domain.ErrContentPolicy)
}

func TestGenerateOverloadedIsRetryable(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	})

	_, err := g.Generate(context.Background(), domain.Prompt{User: "q"})
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Contains(t, err.Error(), "Overloaded")
}
