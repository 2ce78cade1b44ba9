package llm

import (
	"context"
	"io"
	"strings"
	"sync"
)

var _ Completer = (*Static)(nil)

// StaticModelName is reported as model_used for answers built without a model.
const StaticModelName = "static"

const (
	staticMaxRunes  = 400
	staticPieceSize = 5
)

// Static answers from the retrieved context alone. It never fails, which makes it
// the last entry of every fallback cascade.
type Static struct {
	apology string
}

// NewStatic returns a Static backend that answers with apology when there is no context.
func NewStatic(apology string) *Static {
	return &Static{apology: apology}
}

// Name returns StaticModelName.
func (s *Static) Name() string { return StaticModelName }

// Complete builds the answer from the prompt's context.
func (s *Static) Complete(_ context.Context, p Prompt) (string, error) {
	return s.answer(p), nil
}

// Stream returns the same answer as Complete in small pieces.
func (s *Static) Stream(ctx context.Context, p Prompt) (TokenStream, error) {
	return &staticStream{ctx: ctx, runes: []rune(s.answer(p))}, nil
}

func (s *Static) answer(p Prompt) string {
	if len(p.Context) == 0 {
		return s.apology
	}

	question := strings.ToLower(p.Question)
	var all strings.Builder
	for _, sc := range p.Context[:min(3, len(p.Context))] {
		all.WriteString(strings.ToLower(sc.Chunk.Text))
		all.WriteByte(' ')
	}
	if containsAny(question, "product", "offer", "provide", "what do you", "services") {
		if list := productList(all.String()); list != "" {
			return "Shopilots offers the following AI Sales Agents:\n\n" + list
		}
	}

	content := strings.TrimSpace(p.Context[0].Chunk.Text)
	if strings.HasPrefix(content, "Source:") {
		if _, rest, ok := strings.Cut(content, "\n"); ok {
			content = strings.TrimSpace(rest)
		}
	}
	if r := []rune(content); len(r) > staticMaxRunes {
		return string(r[:staticMaxRunes]) + "..."
	}
	return content
}

var products = []struct{ keyword, line string }{
	{"website agent", "• Website Agent - Embed on your e-commerce site and turn visitors into buyers."},
	{"social media agent", "• Social Media Agent - Engage shoppers on social platforms."},
	{"messenger agent", "• Messenger Agent - Sell through WhatsApp & Messenger conversations."},
	{"call agent", "• Call Agent - Handle customer phone calls with AI voice."},
	{"gpt store", "• GPT Store - Launch a shopping assistant in ChatGPT & the GPT Store."},
}

func productList(text string) string {
	var lines []string
	for _, p := range products {
		if strings.Contains(text, p.keyword) {
			lines = append(lines, p.line)
		}
	}
	return strings.Join(lines, "\n")
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

type staticStream struct {
	ctx   context.Context
	runes []rune
	mu    sync.Mutex
}

func (s *staticStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(s.runes) == 0 {
		return "", io.EOF
	}
	n := min(staticPieceSize, len(s.runes))
	piece := string(s.runes[:n])
	s.runes = s.runes[n:]
	return piece, nil
}

func (s *staticStream) Close() error {
	s.mu.Lock()
	s.runes = nil
	s.mu.Unlock()
	return nil
}
