package memory_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dslachut/hawat/core"
	"github.com/dslachut/hawat/memory"
)

// summarizerFunc adapts a function to memory.Summarizer.
type summarizerFunc func(ctx context.Context, conversation string) (string, error)

func (f summarizerFunc) Summarize(ctx context.Context, conversation string) (string, error) {
	return f(ctx, conversation)
}

// recordingSummarizer returns "summary N" and keeps the inputs it saw.
type recordingSummarizer struct {
	mu     sync.Mutex
	inputs []string
}

func (s *recordingSummarizer) Summarize(ctx context.Context, conversation string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, conversation)
	return "summary of: " + conversation, nil
}

func (s *recordingSummarizer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

func TestReflector_SweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	env.record(t, "Hello", core.SenderUser)
	env.clock.Advance(time.Second)
	env.record(t, "Hi there", core.SenderAssistant)
	conv := env.currentConversation(t)

	summarizer := &recordingSummarizer{}
	reflector := env.manager.NewReflector(summarizer)

	n, err := reflector.Sweep(ctx)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("first sweep updated %d conversations, want 1", n)
	}
	if lines := strings.Split(summarizer.inputs[0], "\n"); len(lines) != 2 ||
		!strings.HasSuffix(lines[0], ": Hello") || !strings.HasSuffix(lines[1], ": Hi there") {
		t.Errorf("unexpected summarizer input: %q", summarizer.inputs[0])
	}

	before, _ := env.store.GetConversation(ctx, conv)

	n, err = reflector.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 || summarizer.calls() != 1 {
		t.Errorf("second sweep changed %d conversations (%d calls)", n, summarizer.calls())
	}

	after, _ := env.store.GetConversation(ctx, conv)
	if before.Summary != after.Summary || !before.SummarizedAt.Equal(after.SummarizedAt) {
		t.Errorf("conversation changed on idempotent sweep: %+v -> %+v", before, after)
	}

	// A new message in the same conversation makes it stale again.
	env.clock.Advance(time.Minute)
	env.record(t, "One more thing", core.SenderUser)
	if n, _ := reflector.Sweep(ctx); n != 1 {
		t.Errorf("expected re-summarization after a new message, got %d", n)
	}
}

func TestReflector_FailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	env.record(t, "boom please", core.SenderUser)
	first := env.currentConversation(t)
	env.clock.Advance(time.Hour)
	env.record(t, "panic please", core.SenderUser)
	second := env.currentConversation(t)
	env.clock.Advance(time.Hour)
	env.record(t, "empty please", core.SenderUser)
	third := env.currentConversation(t)
	env.clock.Advance(time.Hour)
	env.record(t, "fine thanks", core.SenderUser)
	fourth := env.currentConversation(t)

	summarizer := summarizerFunc(func(ctx context.Context, text string) (string, error) {
		switch {
		case strings.Contains(text, "boom"):
			return "", errors.New("model unavailable")
		case strings.Contains(text, "panic"):
			panic("summarizer exploded")
		case strings.Contains(text, "empty"):
			return "   ", nil
		}
		return "A polite exchange.", nil
	})

	n, err := env.manager.NewReflector(summarizer).Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 successful update, got %d", n)
	}

	got, _ := env.store.GetConversation(ctx, fourth)
	if got.Summary != "A polite exchange." {
		t.Errorf("fourth conversation summary = %q", got.Summary)
	}
	for _, id := range []int64{first, second, third} {
		c, _ := env.store.GetConversation(ctx, id)
		if c.HasSummary() {
			t.Errorf("conversation %d should still be unsummarized, got %q", id, c.Summary)
		}
	}
}

func TestReflector_TickSkipsWhileBusy(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	env.record(t, "Hello", core.SenderUser)

	entered := make(chan struct{})
	release := make(chan struct{})
	summarizer := summarizerFunc(func(ctx context.Context, text string) (string, error) {
		close(entered)
		<-release
		return "greeting", nil
	})
	reflector := env.manager.NewReflector(summarizer)

	firstDone := make(chan bool)
	go func() {
		firstDone <- reflector.Tick(ctx)
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first sweep never reached the summarizer")
	}

	if !reflector.Busy() {
		t.Error("expected reflector to report busy")
	}
	if reflector.Tick(ctx) {
		t.Error("overlapping tick should have been skipped")
	}

	close(release)
	if !<-firstDone {
		t.Error("first tick should have run")
	}
	if reflector.Busy() {
		t.Error("lock not released after sweep")
	}
}

func TestReflector_TickReleasesAfterPanic(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)
	env.record(t, "Hello", core.SenderUser)

	reflector := env.manager.NewReflector(summarizerFunc(func(ctx context.Context, text string) (string, error) {
		panic("boom")
	}))

	if !reflector.Tick(ctx) {
		t.Fatal("tick should have run")
	}
	if reflector.Busy() {
		t.Error("lock not released after panic")
	}
}

func TestReflector_StartStop(t *testing.T) {
	env := setupTestEnv(t)
	env.record(t, "Hello", core.SenderUser)

	summarized := make(chan struct{}, 1)
	summarizer := summarizerFunc(func(ctx context.Context, text string) (string, error) {
		select {
		case summarized <- struct{}{}:
		default:
		}
		return "greeting", nil
	})

	reflector := memory.NewReflector(env.manager.Tracker(), summarizer, 10*time.Millisecond)

	reflector.Start(context.Background())
	reflector.Start(context.Background()) // no-op
	if !reflector.IsRunning() {
		t.Fatal("expected reflector to be running")
	}

	select {
	case <-summarized:
	case <-time.After(5 * time.Second):
		t.Fatal("reflector never ticked")
	}

	reflector.Stop()
	if reflector.IsRunning() {
		t.Error("expected reflector to be stopped")
	}
	reflector.Stop() // idempotent
}
