package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"shopilots.com/chatbot/internal/analytics"
	"shopilots.com/chatbot/internal/domain"
	"shopilots.com/chatbot/internal/index"
	"shopilots.com/chatbot/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var vocabulary = []string{"website", "agent", "social", "call", "messenger", "price", "product", "shipping"}

// keywordEmbedder maps text to keyword counts, so similarity follows shared words.
type keywordEmbedder struct {
	model string
	err   error

	// gate, when set, blocks the first Embed call until closed; entered is
	// closed once that call is waiting.
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once

	mu      sync.Mutex
	queries []string
	calls   atomic.Int32
	batches atomic.Int32
}

func vectorFor(text string) []float32 {
	text = strings.ToLower(text)
	v := make([]float32, len(vocabulary)+1)
	for i, w := range vocabulary {
		v[i] = float32(strings.Count(text, w))
	}
	v[len(vocabulary)] = 0.01
	return v
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.gate != nil {
		e.once.Do(func() {
			close(e.entered)
			<-e.gate
		})
	}
	e.mu.Lock()
	e.queries = append(e.queries, text)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return vectorFor(text), nil
}

func (e *keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batches.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}

func (e *keywordEmbedder) ModelName() string {
	if e.model == "" {
		return "keyword"
	}
	return e.model
}

func (e *keywordEmbedder) lastQuery() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queries) == 0 {
		return ""
	}
	return e.queries[len(e.queries)-1]
}

type memStore struct {
	mu     sync.Mutex
	ix     *index.Index
	err    error
	writes int
}

func (m *memStore) ReplaceIndex(_ context.Context, ix *index.Index) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.ix = ix
	m.writes++
	return nil
}

func (m *memStore) LoadIndex(context.Context) (*index.Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ix == nil {
		return nil, fmt.Errorf("%w: nothing stored", domain.ErrIndexUnavailable)
	}
	return m.ix, nil
}

// step scripts one call of a fakeCompleter; a nil error lets the call succeed.
type step func(ctx context.Context) error

func failWith(err error) step {
	return func(context.Context) error { return err }
}

func hang(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakeCompleter struct {
	name   string
	steps  []step
	answer func(p llm.Prompt) string
	// streamErr ends the stream after its tokens instead of io.EOF.
	streamErr error

	calls atomic.Int32
	mu    sync.Mutex
	last  llm.Prompt
}

func (f *fakeCompleter) Name() string { return f.name }

func (f *fakeCompleter) before(ctx context.Context, p llm.Prompt) error {
	f.mu.Lock()
	f.last = p
	f.mu.Unlock()
	n := int(f.calls.Add(1)) - 1
	if n < len(f.steps) && f.steps[n] != nil {
		return f.steps[n](ctx)
	}
	return nil
}

func (f *fakeCompleter) text(p llm.Prompt) string {
	if f.answer != nil {
		return f.answer(p)
	}
	return "answer from " + f.name
}

func (f *fakeCompleter) lastPrompt() llm.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeCompleter) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	if err := f.before(ctx, p); err != nil {
		return "", err
	}
	return f.text(p), nil
}

func (f *fakeCompleter) Stream(ctx context.Context, p llm.Prompt) (llm.TokenStream, error) {
	if err := f.before(ctx, p); err != nil {
		return nil, err
	}
	return &sliceStream{ctx: ctx, tokens: strings.SplitAfter(f.text(p), " "), err: f.streamErr}, nil
}

type sliceStream struct {
	ctx    context.Context
	tokens []string
	err    error
	closed atomic.Bool
}

func (s *sliceStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(s.tokens) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	tok := s.tokens[0]
	s.tokens = s.tokens[1:]
	return tok, nil
}

func (s *sliceStream) Close() error {
	s.closed.Store(true)
	return nil
}

// endlessCompleter streams tokens until its context is cancelled.
type endlessCompleter struct {
	produced atomic.Int32
	stream   *endlessStream
}

func (e *endlessCompleter) Name() string { return "endless" }

func (e *endlessCompleter) Complete(context.Context, llm.Prompt) (string, error) {
	return "", fmt.Errorf("%w: streaming only", domain.ErrModelUnavailable)
}

func (e *endlessCompleter) Stream(ctx context.Context, _ llm.Prompt) (llm.TokenStream, error) {
	e.stream = &endlessStream{ctx: ctx, owner: e}
	return e.stream, nil
}

type endlessStream struct {
	ctx    context.Context
	owner  *endlessCompleter
	closed atomic.Bool
}

func (s *endlessStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	n := s.owner.produced.Add(1)
	return fmt.Sprintf("tok%d ", n), nil
}

func (s *endlessStream) Close() error {
	s.closed.Store(true)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (l *eventLog) Record(ev analytics.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []analytics.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]analytics.Event(nil), l.events...)
}

var testCorpus = []domain.Document{
	{SourceID: "website.md", Title: "Website Agent", Text: "Website Agent embeds on your e-commerce site."},
	{SourceID: "call.md", Title: "Call Agent", Text: "Call Agent answers customer phone calls around the clock."},
	{SourceID: "social.md", Title: "Social Media Agent", Text: "Social Media Agent replies to comments and direct messages."},
}

// buildIndex runs the real build pipeline over docs.
func buildIndex(t *testing.T, embedder llm.Embedder, docs ...domain.Document) *index.Index {
	t.Helper()
	b, err := NewBuilder(embedder, &memStore{}, BuilderConfig{ChunkSize: 500, ChunkOverlap: 50, BatchSize: 2}, discardLogger())
	require.NoError(t, err)
	ix, err := b.Build(context.Background(), docs)
	require.NoError(t, err)
	return ix
}
