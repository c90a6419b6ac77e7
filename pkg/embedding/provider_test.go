package embedding

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func magnitude(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestNormalizeVector(t *testing.T) {
	normalized := normalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(normalized[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(normalized[1]), 1e-6)
	assert.InDelta(t, 1.0, magnitude(normalized), 1e-6)

	// A zero vector cannot be scaled and comes back untouched.
	zero := normalizeVector([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func TestOllamaProviderNormalizesOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "hello", req.Prompt)
		fmt.Fprint(w, `{"embedding": [3.0, 4.0]}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "")

	resp, err := p.Generate("hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)

	require.Len(t, resp.Embedding.Values, 2)
	assert.InDelta(t, 1.0, magnitude(resp.Embedding.Values), 1e-6)
}

func TestOllamaProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `model not found`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "missing-model")

	_, err := p.Generate("hello", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOpenAIProviderGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openaiEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		fmt.Fprint(w, `{"data": [{"embedding": [0.6, 0.8]}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", "").(*OpenAIProvider)
	p.BaseURL = srv.URL

	resp, err := p.Generate("hello", "")
	require.NoError(t, err)

	require.Len(t, resp.Embedding.Values, 2)
	assert.InDelta(t, 1.0, magnitude(resp.Embedding.Values), 1e-6)
}

func TestOpenAIProviderEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", "").(*OpenAIProvider)
	p.BaseURL = srv.URL

	_, err := p.Generate("hello", "")
	assert.Error(t, err)
}
