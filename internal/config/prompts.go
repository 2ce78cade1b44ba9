package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Prompts holds the fixed texts the pipeline sends to, or returns instead of, a model.
type Prompts struct {
	System    string `toml:"system"`
	NoContext string `toml:"no_context"`
	Apology   string `toml:"apology"`
}

// DefaultPrompts are used for any text the prompts file leaves empty.
var DefaultPrompts = Prompts{
	System: `You are a knowledgeable customer service representative for Shopilots, an AI-powered e-commerce sales platform.

Your task is to provide accurate, helpful, and complete answers based ONLY on the context provided.

CRITICAL INSTRUCTIONS:
1. Read the entire context carefully before answering
2. For product questions, mention ALL relevant AI Sales Agents (Website Agent, Social Media Agent, Messenger Agent, Call Agent, GPT Store)
3. Include key features and benefits when discussing products
4. Be specific and include details like conversion rates or AOV improvements when the context mentions them
5. Format lists clearly using bullet points
6. If information is not in the context, politely state you don't have that specific information
7. Be conversational but professional`,

	NoContext: `No documentation matched this question. Answer from general knowledge about Shopilots and AI sales agents for e-commerce only if you are confident; otherwise say plainly that you do not know.`,

	Apology: `I'm sorry, I couldn't find specific information about that right now. Could you try rephrasing your question?`,
}

// LoadPrompts reads a TOML prompts file. An empty path yields the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompts file %s: %w", path, err)
	}

	var override Prompts
	if err := toml.Unmarshal(data, &override); err != nil {
		return prompts, fmt.Errorf("parse prompts file %s: %w", path, err)
	}

	if s := strings.TrimSpace(override.System); s != "" {
		prompts.System = s
	}
	if s := strings.TrimSpace(override.NoContext); s != "" {
		prompts.NoContext = s
	}
	if s := strings.TrimSpace(override.Apology); s != "" {
		prompts.Apology = s
	}
	return prompts, nil
}
