package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ai-knowledge-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatStreamParsesNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`+"\n")
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`+"\n")
		fmt.Fprint(w, `{"message":{"role":"assistant","content":""},"done":true}`+"\n")
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3", "")

	deltas, err := p.ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	var full string
	var done bool
	for d := range deltas {
		require.NoError(t, d.Err)
		full += d.Content
		if d.Done {
			done = true
		}
	}
	assert.Equal(t, "Hello", full)
	assert.True(t, done)
}

func TestChatStreamAbandonedConsumerReleasesProducer(t *testing.T) {
	handlerDone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(handlerDone)
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"tok"},"done":false}`+"\n")
			flusher.Flush()
		}
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deltas, err := p.ChatStream(ctx, []llm.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	// Read one token, then cancel and walk away without draining.
	first := <-deltas
	require.NoError(t, first.Err)
	assert.Equal(t, "tok", first.Content)
	cancel()

	select {
	case <-handlerDone:
		// The producer noticed and closed the response body.
	case <-time.After(5 * time.Second):
		t.Fatal("stream producer still running after the consumer cancelled")
	}
}
