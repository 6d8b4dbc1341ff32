package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dslachut/hawat/core"
	"github.com/dslachut/hawat/llm"
	"github.com/dslachut/hawat/memory"
	"github.com/google/uuid"
)

// ErrEmptyMessage is returned by Run for a blank user message.
var ErrEmptyMessage = errors.New("empty message")

// Engine runs chat turns: it records the user's message, retrieves memory
// context, asks the completer for a reply and records the reply.
type Engine struct {
	completer    llm.Completer
	memory       memory.Manager // Optional: without it every turn sees an empty context
	systemPrompt string
}

// Option configures the engine.
type Option func(*Engine)

// WithMemory configures the engine with a memory manager.
func WithMemory(m memory.Manager) Option {
	return func(e *Engine) {
		e.memory = m
	}
}

// WithSystemPrompt replaces llm.ConversationSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) {
		e.systemPrompt = prompt
	}
}

// NewEngine creates a new engine with the given completer.
func NewEngine(completer llm.Completer, opts ...Option) *Engine {
	e := &Engine{
		completer:    completer,
		systemPrompt: llm.ConversationSystemPrompt,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input represents one chat turn.
type Input struct {
	// UserMessage is the user's message to process.
	UserMessage string

	// TurnID correlates log lines for this turn. Generated if empty.
	TurnID string
}

// Output represents the result of a chat turn.
type Output struct {
	// TurnID identifies the turn in logs.
	TurnID string

	// Text is the assistant's reply.
	Text string

	// Context is the memory context the reply was generated with.
	Context string

	// Duration is the wall time of the turn.
	Duration time.Duration
}

// Run executes one chat turn. Memory failures are logged and never fail the
// turn; a completion failure does.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || strings.TrimSpace(input.UserMessage) == "" {
		return nil, ErrEmptyMessage
	}
	start := time.Now()

	turnID := input.TurnID
	if turnID == "" {
		turnID = uuid.New().String()
	}

	// === PHASE 1: RECORD USER MESSAGE ===
	if e.memory != nil {
		if _, err := e.memory.Record(ctx, input.UserMessage, core.SenderUser); err != nil {
			log.Printf("[ENGINE] turn=%s user message not recorded: %v", turnID, err)
		}
	}

	// === PHASE 2: RETRIEVE CONTEXT ===
	memoryContext := e.retrieve(ctx, turnID, input.UserMessage)

	// === PHASE 3: COMPLETE ===
	reply, err := e.completer.Complete(ctx, e.systemPrompt, llm.ConversationUserPrompt(memoryContext, input.UserMessage))
	if err != nil {
		log.Printf("[ENGINE] turn=%s completion failed: %v", turnID, err)
		return nil, fmt.Errorf("completion: %w", err)
	}

	// === PHASE 4: RECORD REPLY ===
	if e.memory != nil && strings.TrimSpace(reply) != "" {
		if _, err := e.memory.Record(ctx, reply, core.SenderAssistant); err != nil {
			log.Printf("[ENGINE] turn=%s reply not recorded: %v", turnID, err)
		}
	}

	out := &Output{
		TurnID:   turnID,
		Text:     reply,
		Context:  memoryContext,
		Duration: time.Since(start),
	}
	log.Printf("[ENGINE] turn=%s completed in %s", turnID, out.Duration.Round(time.Millisecond))
	return out, nil
}

func (e *Engine) retrieve(ctx context.Context, turnID, query string) string {
	if e.memory == nil {
		return (&memory.ContextSet{}).Format()
	}
	memoryContext, err := e.memory.Retrieve(ctx, query)
	if err != nil {
		log.Printf("[ENGINE] turn=%s context retrieval failed: %v", turnID, err)
		if memoryContext == "" {
			memoryContext = (&memory.ContextSet{}).Format()
		}
	}
	return memoryContext
}
