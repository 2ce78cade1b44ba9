package core

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"shopilots.com/chatbot/internal/config"
	"shopilots.com/chatbot/internal/domain"
	"shopilots.com/chatbot/internal/llm"
)

// minChunkRunes is the smallest truncated chunk worth sending.
const minChunkRunes = 80

// PromptBuilder assembles the model input. The system instructions are always
// sent verbatim; the budget, in characters, bounds everything else.
type PromptBuilder struct {
	prompts config.Prompts
	budget  int
}

func NewPromptBuilder(prompts config.Prompts, budget int) *PromptBuilder {
	return &PromptBuilder{prompts: prompts, budget: budget}
}

// Build is deterministic for identical inputs. Chunks are added best first and
// the first one that does not fit is truncated or dropped together with every
// chunk after it. History fills whatever budget the context left, newest turns
// first.
func (b *PromptBuilder) Build(question string, result domain.RetrievalResult, history []domain.Turn) llm.Prompt {
	tail := fmt.Sprintf("Customer Question: %s\n\n", question)
	if result.Empty() {
		tail += b.prompts.NoContext
	} else {
		tail += "Provide a clear, complete answer based on the context above:"
	}
	remaining := b.budget - utf8.RuneCountInString(tail)

	var ctxBlock strings.Builder
	if !result.Empty() {
		const header = "Context about Shopilots:\n"
		remaining -= utf8.RuneCountInString(header)
		ctxBlock.WriteString(header)
		for i, sc := range result.Chunks {
			label := fmt.Sprintf("[%d] %s\n", i+1, sc.Chunk.SourceID)
			block := label + strings.TrimSpace(sc.Chunk.Text) + "\n\n"
			n := utf8.RuneCountInString(block)
			if n <= remaining {
				ctxBlock.WriteString(block)
				remaining -= n
				continue
			}
			room := remaining - utf8.RuneCountInString(label) - len("...\n\n")
			if room >= minChunkRunes {
				text := []rune(strings.TrimSpace(sc.Chunk.Text))
				ctxBlock.WriteString(label + string(text[:room]) + "...\n\n")
				remaining = 0
			}
			break
		}
	}

	var turns []string
	if len(history) > 0 {
		const header = "Previous conversation:\n"
		remaining -= utf8.RuneCountInString(header) + 1
		for i := len(history) - 1; i >= 0; i-- {
			t := fmt.Sprintf("Customer: %s\nAssistant: %s\n", history[i].Question, history[i].Answer)
			n := utf8.RuneCountInString(t)
			if n > remaining {
				break
			}
			turns = append(turns, t)
			remaining -= n
		}
		if len(turns) > 0 {
			for l, r := 0, len(turns)-1; l < r; l, r = l+1, r-1 {
				turns[l], turns[r] = turns[r], turns[l]
			}
			turns = append([]string{header}, turns...)
			turns = append(turns, "\n")
		}
	}

	body := ctxBlock.String() + strings.Join(turns, "") + tail
	return llm.Prompt{
		System:   b.prompts.System,
		Body:     body,
		Question: question,
		Context:  result.Chunks,
	}
}
