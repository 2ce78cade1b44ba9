package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"shopilots.com/chatbot/internal/domain"
)

var (
	_ Embedder  = (*Ollama)(nil)
	_ Completer = (*Ollama)(nil)
)

// Default Ollama configuration values.
const (
	DefaultOllamaURL            = "http://localhost:11434"
	DefaultOllamaModel          = "llama3.2"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
)

// OllamaConfig configures the local Ollama backend.
type OllamaConfig struct {
	BaseURL        string
	Model          string
	EmbeddingModel string
	// MaxTokens caps the answer length (num_predict).
	MaxTokens int
}

// Ollama talks to a local Ollama server for completion and embedding.
type Ollama struct {
	client *http.Client
	cfg    OllamaConfig
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllama creates the backend. Timeouts come from the caller's context.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultOllamaEmbeddingModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 400
	}
	return &Ollama{
		client: &http.Client{Timeout: 5 * time.Minute},
		cfg:    cfg,
	}
}

// Name returns the completion model name.
func (o *Ollama) Name() string { return "ollama:" + o.cfg.Model }

// ModelName returns the embedding model name.
func (o *Ollama) ModelName() string { return "ollama:" + o.cfg.EmbeddingModel }

func (o *Ollama) post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama error: %w", &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(b)})
	}
	return resp, nil
}

// Embed embeds one text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one /api/embed call.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.post(ctx, "/api/embed", embedRequest{Model: o.cfg.EmbeddingModel, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: ollama returned %d embeddings for %d texts",
			domain.ErrEmbeddingUnavailable, len(embedResp.Embeddings), len(texts))
	}
	for i, v := range embedResp.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty embedding for text %d", domain.ErrEmbeddingUnavailable, i)
		}
	}
	return embedResp.Embeddings, nil
}

func (o *Ollama) newGenerateRequest(p Prompt, stream bool) generateRequest {
	return generateRequest{
		Model:   o.cfg.Model,
		Prompt:  p.Body,
		System:  p.System,
		Stream:  stream,
		Options: &ollamaOptions{NumPredict: o.cfg.MaxTokens, Temperature: 0.7},
	}
}

// Complete returns the whole answer.
func (o *Ollama) Complete(ctx context.Context, p Prompt) (string, error) {
	resp, err := o.post(ctx, "/api/generate", o.newGenerateRequest(p, false))
	if err != nil {
		return "", Classify(err)
	}
	defer resp.Body.Close()

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", Classify(fmt.Errorf("decode response: %w", err))
	}
	if genResp.Error != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrModelUnavailable, genResp.Error)
	}
	return genResp.Response, nil
}

// Stream starts a streamed completion. Ollama answers with one JSON object per line.
func (o *Ollama) Stream(ctx context.Context, p Prompt) (TokenStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := o.post(ctx, "/api/generate", o.newGenerateRequest(p, true))
	if err != nil {
		cancel()
		return nil, Classify(err)
	}
	return &ollamaStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
		cancel:  cancel,
	}, nil
}

type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc
	done    bool
	once    sync.Once
}

func (s *ollamaStream) Recv() (string, error) {
	for !s.done {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return "", Classify(fmt.Errorf("ollama stream read: %w", err))
			}
			return "", fmt.Errorf("%w: ollama stream ended without done marker", domain.ErrStreamInterrupted)
		}
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk generateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("%w: malformed stream line: %v", domain.ErrStreamInterrupted, err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("%w: %s", domain.ErrModelUnavailable, chunk.Error)
		}
		s.done = chunk.Done
		if chunk.Response != "" {
			return chunk.Response, nil
		}
	}
	return "", io.EOF
}

func (s *ollamaStream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}
