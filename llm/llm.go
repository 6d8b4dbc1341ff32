// Package llm talks to language-model completion endpoints.
//
// A Completer turns a system prompt and a user prompt into text. Two
// implementations exist: OpenAICompleter for OpenAI-compatible
// chat-completions APIs (OpenRouter by default) and AnthropicCompleter.
// No retries are performed here.
package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/dslachut/hawat/memory"
)

// Completer runs one completion.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Summarizer implements memory.Summarizer with a Completer.
type Summarizer struct {
	completer Completer
}

var _ memory.Summarizer = (*Summarizer)(nil)

// NewSummarizer creates a Summarizer.
func NewSummarizer(completer Completer) *Summarizer {
	return &Summarizer{completer: completer}
}

// Summarize condenses a conversation log into a short summary.
func (s *Summarizer) Summarize(ctx context.Context, conversation string) (string, error) {
	summary, err := s.completer.Complete(ctx, SummarySystemPrompt, conversation)
	if err != nil {
		log.Printf("[LLM] Summarization failed: %v", err)
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(summary), nil
}
