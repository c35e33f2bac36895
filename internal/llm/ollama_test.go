package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaBuildRequestOptions(t *testing.T) {
	p := NewOllamaProvider("http://127.0.0.1:11434")

	out := p.buildRequest(&Request{Model: "m", Temperature: 0.7, MaxTokens: 256}, false)

	assert.InDelta(t, 0.7, float64(out.Options.Temperature), 1e-6)
	assert.Equal(t, 256, out.Options.NumPredict)
	assert.False(t, out.Stream)
}

func TestOllamaStreamGenerateSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		io.WriteString(w, `{"message":{"role":"assistant","content":"Your "},"done":false}`+"\n")
		fl.Flush()
		io.WriteString(w, `{"message":{"role":"assistant","content":"balance is $4821.50."},"done":true,"done_reason":"stop"}`+"\n")
		fl.Flush()
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	ch, err := p.StreamGenerate(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)

	var parts []Partial
	for part := range ch {
		require.NoError(t, part.Err)
		parts = append(parts, part)
	}
	require.Len(t, parts, 2)
	assert.Equal(t, "Your ", parts[0].Content)
	assert.False(t, parts[0].Done)
	assert.Equal(t, "Your balance is $4821.50.", parts[1].Content, "snapshots accumulate")
	assert.True(t, parts[1].Done)
}

func TestOllamaStreamGenerateMidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		io.WriteString(w, `{"message":{"role":"assistant","content":"partial"},"done":false}`+"\n")
		fl.Flush()
		io.WriteString(w, `{"error":"the prompt exceeds the model context size"}`+"\n")
		fl.Flush()
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	ch, err := p.StreamGenerate(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)

	var last Partial
	for part := range ch {
		last = part
	}
	assert.ErrorIs(t, last.Err, ErrContextOverflow)
	assert.False(t, last.Done)
}

func TestOllamaStreamGenerateCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		io.WriteString(w, `{"message":{"role":"assistant","content":"partial"},"done":false}`+"\n")
		fl.Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewOllamaProvider(srv.URL)
	ch, err := p.StreamGenerate(ctx, &Request{Model: "m"})
	require.NoError(t, err)

	first := <-ch
	require.NoError(t, first.Err)
	assert.Equal(t, "partial", first.Content)

	cancel()
	var last Partial
	for part := range ch {
		last = part
	}
	assert.Error(t, last.Err, "cancellation surfaces as a terminal partial")
}
