package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopilots.com/chatbot/internal/domain"
)

func TestOllamaEmbedBatch(t *testing.T) {
	t.Run("Sends all texts in one request", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			assert.Equal(t, "/api/embed", r.URL.Path)
			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "nomic-embed-text", req.Model)

			resp := embedResponse{}
			for i := range req.Input {
				resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
			}
			json.NewEncoder(w).Encode(resp)
		}))
		defer srv.Close()

		o := NewOllama(OllamaConfig{BaseURL: srv.URL})
		vecs, err := o.EmbedBatch(context.Background(), []string{"a", "b", "c"})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, vecs)
		assert.Equal(t, "ollama:nomic-embed-text", o.ModelName())
	})

	t.Run("Count mismatch is malformed output", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"embeddings":[[1,2]]}`)
		}))
		defer srv.Close()

		_, err := NewOllama(OllamaConfig{BaseURL: srv.URL}).EmbedBatch(context.Background(), []string{"a", "b"})
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("Server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := NewOllama(OllamaConfig{BaseURL: srv.URL}).Embed(context.Background(), "a")
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("Unreachable server", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewOllama(OllamaConfig{BaseURL: url}).Embed(context.Background(), "a")
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})
}

func TestOllamaComplete(t *testing.T) {
	t.Run("Returns the response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req generateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "sys", req.System)
			assert.Equal(t, "body", req.Prompt)
			assert.False(t, req.Stream)
			fmt.Fprint(w, `{"response":"Website Agent embeds on your site.","done":true}`)
		}))
		defer srv.Close()

		o := NewOllama(OllamaConfig{BaseURL: srv.URL})
		out, err := o.Complete(context.Background(), Prompt{System: "sys", Body: "body"})

		require.NoError(t, err)
		assert.Equal(t, "Website Agent embeds on your site.", out)
		assert.Equal(t, "ollama:llama3.2", o.Name())
	})

	t.Run("Status codes are classified", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewOllama(OllamaConfig{BaseURL: srv.URL}).Complete(context.Background(), Prompt{Body: "x"})
		assert.ErrorIs(t, err, domain.ErrModelQuota)
	})
}

func TestOllamaStream(t *testing.T) {
	t.Run("Clean end", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"response":"Hel","done":false}`)
			fmt.Fprintln(w, `{"response":"lo","done":false}`)
			fmt.Fprintln(w, `{"response":"","done":true}`)
		}))
		defer srv.Close()

		stream, err := NewOllama(OllamaConfig{BaseURL: srv.URL}).Stream(context.Background(), Prompt{Body: "x"})
		require.NoError(t, err)
		defer stream.Close()

		var got []string
		for {
			tok, err := stream.Recv()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			got = append(got, tok)
		}
		assert.Equal(t, []string{"Hel", "lo"}, got)
	})

	t.Run("Missing done marker is an interruption", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"response":"Hel","done":false}`)
		}))
		defer srv.Close()

		stream, err := NewOllama(OllamaConfig{BaseURL: srv.URL}).Stream(context.Background(), Prompt{Body: "x"})
		require.NoError(t, err)
		defer stream.Close()

		tok, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, "Hel", tok)

		_, err = stream.Recv()
		assert.ErrorIs(t, err, domain.ErrStreamInterrupted)
	})

	t.Run("Close is idempotent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"response":"","done":true}`)
		}))
		defer srv.Close()

		stream, err := NewOllama(OllamaConfig{BaseURL: srv.URL}).Stream(context.Background(), Prompt{Body: "x"})
		require.NoError(t, err)
		assert.NoError(t, stream.Close())
		assert.NoError(t, stream.Close())
	})
}
