package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"shopilots.com/chatbot/internal/analytics"
	"shopilots.com/chatbot/internal/domain"
	"shopilots.com/chatbot/internal/index"
	"shopilots.com/chatbot/internal/llm"
)

// EventRecorder receives one analytics event per query. Record must not block.
type EventRecorder interface {
	Record(ev analytics.Event)
}

// Request is one question from the HTTP layer.
type Request struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatServiceDeps wires the query pipeline.
type ChatServiceDeps struct {
	Holder    *index.Holder
	Store     IndexStore
	Embedder  llm.Embedder
	Retriever *Retriever
	Prompts   *PromptBuilder
	Generator *Generator
	Sessions  *SessionStore
	Events    EventRecorder // optional
	Logger    *slog.Logger

	RequestTimeout time.Duration
	// ModelConfigured is false when only the static answer is available; with
	// no index either, queries are refused.
	ModelConfigured bool
}

// ChatService runs retrieve, prompt and generate for each question. Each query
// captures the current index once and uses it to the end.
type ChatService struct {
	holder          *index.Holder
	store           IndexStore
	embedder        llm.Embedder
	retriever       *Retriever
	prompts         *PromptBuilder
	generator       *Generator
	sessions        *SessionStore
	events          EventRecorder
	logger          *slog.Logger
	requestTimeout  time.Duration
	modelConfigured bool
	now             func() time.Time
}

func NewChatService(deps ChatServiceDeps) *ChatService {
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatService{
		holder:          deps.Holder,
		store:           deps.Store,
		embedder:        deps.Embedder,
		retriever:       deps.Retriever,
		prompts:         deps.Prompts,
		generator:       deps.Generator,
		sessions:        deps.Sessions,
		events:          deps.Events,
		logger:          deps.Logger,
		requestTimeout:  timeout,
		modelConfigured: deps.ModelConfigured,
		now:             time.Now,
	}
}

// query is the state shared by the whole and streamed paths.
type query struct {
	question  string
	sessionID string
	start     time.Time
	history   []domain.Turn
	result    domain.RetrievalResult
	prompt    llm.Prompt
}

func (s *ChatService) prepare(ctx context.Context, req Request) (*query, error) {
	q := &query{
		question:  strings.TrimSpace(req.Question),
		sessionID: strings.TrimSpace(req.SessionID),
		start:     s.now(),
	}
	if q.question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	if q.sessionID == "" {
		q.sessionID = DefaultSessionID
	}

	ix := s.holder.Load()
	if ix == nil && !s.modelConfigured {
		err := fmt.Errorf("%w: no index loaded and no model configured", domain.ErrServiceUnavailable)
		s.record(q, "", domain.FallbackNone, "", false, err)
		return nil, err
	}

	q.history = s.sessions.History(q.sessionID)
	q.result = s.retriever.Retrieve(ctx, ix, q.question, q.history)
	q.prompt = s.prompts.Build(q.question, q.result, q.history)
	return q, nil
}

// Ask answers a question in one piece. Backend failures become fallback answers;
// only ErrInvalidInput, ErrServiceUnavailable and the caller's own context
// errors are returned.
func (s *ChatService) Ask(ctx context.Context, req Request) (domain.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	q, err := s.prepare(ctx, req)
	if err != nil {
		return domain.Answer{}, err
	}

	gen, err := s.generator.Generate(ctx, q.prompt)
	if err != nil {
		s.record(q, "", domain.FallbackNone, "", false, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Answer{}, ctxErr
		}
		return domain.Answer{}, err
	}

	answer := s.answer(q, gen.Text, gen.Model, gen.Reason)
	s.sessions.Append(q.sessionID, domain.Turn{Question: q.question, Answer: answer.Text})
	s.record(q, answer.Text, answer.FallbackReason, answer.ModelUsed, true, nil)
	s.logger.Info("answered question",
		"session_id", q.sessionID, "model", answer.ModelUsed, "fallback_reason", answer.FallbackReason,
		"docs", len(q.result.Chunks), "attempts", gen.Attempts, "elapsed_ms", answer.ElapsedMS)
	return answer, nil
}

// AskStream starts a streamed answer. The caller must Close the stream.
func (s *ChatService) AskStream(ctx context.Context, req Request) (*AnswerStream, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)

	q, err := s.prepare(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	gen, err := s.generator.Stream(ctx, q.prompt)
	if err != nil {
		s.record(q, "", domain.FallbackNone, "", false, err)
		cancel()
		return nil, err
	}
	return &AnswerStream{svc: s, q: q, gen: gen, cancel: cancel}, nil
}

func (s *ChatService) answer(q *query, text, model string, reason domain.FallbackReason) domain.Answer {
	if reason == domain.FallbackNone && q.result.Empty() {
		reason = domain.FallbackNoRelevantContext
	}
	elapsed := s.now().Sub(q.start)
	return domain.Answer{
		Text:           text,
		Sources:        q.result.Sources(),
		ModelUsed:      model,
		FallbackReason: reason,
		Elapsed:        elapsed,
		ElapsedMS:      elapsed.Milliseconds(),
	}
}

func (s *ChatService) record(q *query, text string, reason domain.FallbackReason, model string, completed bool, err error) {
	if s.events == nil {
		return
	}
	ev := analytics.Event{
		SessionID:       q.sessionID,
		Question:        q.question,
		MatchedCategory: q.result.MatchedCategory(),
		FallbackReason:  reason,
		ModelUsed:       model,
		LatencyMS:       s.now().Sub(q.start).Milliseconds(),
		DocsRetrieved:   len(q.result.Chunks),
		AnswerLength:    utf8.RuneCountInString(text),
		Completed:       completed,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.events.Record(ev)
}

// ReloadIndex loads the persisted index and publishes it for new queries.
// On failure the current index stays in place.
func (s *ChatService) ReloadIndex(ctx context.Context) error {
	ix, err := LoadIndex(ctx, s.store, s.embedder)
	if err != nil {
		return err
	}
	old := s.holder.Swap(ix)
	s.logger.Info("index reloaded", "chunks", ix.Len(), "previous_chunks", old.Len())
	return nil
}

// IndexStatus describes the index currently served.
type IndexStatus struct {
	Ready    bool
	Chunks   int
	Manifest index.Manifest
}

func (s *ChatService) IndexStatus() IndexStatus {
	if !s.holder.Ready() {
		return IndexStatus{}
	}
	ix := s.holder.Load()
	return IndexStatus{Ready: true, Chunks: ix.Len(), Manifest: ix.Manifest()}
}

// AnswerStream is a streamed answer. Recv returns io.EOF once the answer is
// complete, after which Result holds the final metadata. An analytics event is
// recorded exactly once, marked incomplete when the stream is closed early or
// interrupted.
type AnswerStream struct {
	svc    *ChatService
	q      *query
	gen    *GenerationStream
	cancel context.CancelFunc

	text   strings.Builder
	once   sync.Once
	result domain.Answer
}

// Model is the model producing the stream.
func (a *AnswerStream) Model() string { return a.gen.Model }

func (a *AnswerStream) Recv() (string, error) {
	tok, err := a.gen.Recv()
	switch {
	case err == nil:
		a.text.WriteString(tok)
		return tok, nil
	case errors.Is(err, io.EOF):
		a.finish(true, nil)
		return "", io.EOF
	}
	a.finish(false, err)
	return "", err
}

// Result is the final answer metadata. It is only meaningful after Recv
// returned io.EOF.
func (a *AnswerStream) Result() domain.Answer {
	return a.result
}

// Close stops generation. Closing before the end marks the answer incomplete.
func (a *AnswerStream) Close() error {
	a.finish(false, domain.ErrStreamInterrupted)
	err := a.gen.Close()
	a.cancel()
	return err
}

func (a *AnswerStream) finish(completed bool, err error) {
	a.once.Do(func() {
		s := a.svc
		text := strings.TrimSpace(a.text.String())
		a.result = s.answer(a.q, text, a.gen.Model, a.gen.Reason)
		if completed {
			s.sessions.Append(a.q.sessionID, domain.Turn{Question: a.q.question, Answer: text})
		} else {
			s.logger.Warn("stream ended early", "session_id", a.q.sessionID, "model", a.gen.Model, "error", err)
		}
		s.record(a.q, text, a.result.FallbackReason, a.gen.Model, completed, err)
	})
}
