package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jstall/pennywise/internal/common"
	"github.com/jstall/pennywise/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req["model"])
		assert.Equal(t, false, req["stream"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": `{"category": "Groceries", "confidence": 0.87}`,
			"done":     true,
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	got, err := client.Generate(context.Background(), "classify this", service.GenerateOptions{Temperature: 0.1, MaxTokens: 300})

	require.NoError(t, err)
	assert.Contains(t, got, "Groceries")
}

func TestClient_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float64{0.1, 0.2, 0.3},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	got, err := client.Embed(context.Background(), "whole foods market")

	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got)
}

func TestClient_EmbedModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model 'nomic-embed-text' not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Embed(context.Background(), "text")

	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrModelNotFound))
}

func TestClient_EmbedServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	server.Close() // immediately, so the address refuses connections

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Embed(context.Background(), "text")

	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrBackendUnavailable))
}

func TestClient_IsAvailable(t *testing.T) {
	t.Run("healthy server", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/tags", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL})
		assert.True(t, client.IsAvailable(context.Background()))
	})

	t.Run("unreachable server", func(t *testing.T) {
		client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
		assert.False(t, client.IsAvailable(context.Background()))
	})
}

func TestClient_Defaults(t *testing.T) {
	client := NewClient(Config{})
	assert.Equal(t, "http://localhost:11434", client.baseURL)
	assert.Equal(t, "nomic-embed-text", client.EmbeddingModel())
}
