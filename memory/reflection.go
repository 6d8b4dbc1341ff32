package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Reflector periodically summarizes stale conversations.
//
// It is either idle or running a sweep. A tick that finds a sweep in progress
// (from the loop or from a direct Tick call) is skipped, never queued, so at
// most one sweep runs at a time.
type Reflector struct {
	tracker    *Tracker
	summarizer Summarizer
	interval   time.Duration

	busy atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewReflector creates a Reflector ticking every interval.
func NewReflector(tracker *Tracker, summarizer Summarizer, interval time.Duration) *Reflector {
	if interval <= 0 {
		interval = DefaultConfig.ReflectionInterval
	}
	return &Reflector{
		tracker:    tracker,
		summarizer: summarizer,
		interval:   interval,
	}
}

// Start launches the ticker loop. Calling Start on a running reflector is a
// no-op.
func (r *Reflector) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.loop(loopCtx)
}

// Stop cancels the loop and waits for it to exit, including a sweep the loop
// is running.
func (r *Reflector) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// IsRunning reports whether the ticker loop is active.
func (r *Reflector) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Busy reports whether a sweep is in progress.
func (r *Reflector) Busy() bool {
	return r.busy.Load()
}

func (r *Reflector) loop(ctx context.Context) {
	defer func() {
		r.mu.Lock()
		r.running = false
		if r.done != nil {
			close(r.done)
		}
		r.mu.Unlock()
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[REFLECTION] Stopping")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one sweep unless another is in progress. It reports whether a
// sweep was run.
func (r *Reflector) Tick(ctx context.Context) bool {
	if !r.busy.CompareAndSwap(false, true) {
		log.Printf("[REFLECTION] Skipping tick: a sweep is already running")
		return false
	}
	defer r.busy.Store(false)
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[REFLECTION] Sweep panicked: %v", p)
		}
	}()

	if _, err := r.Sweep(ctx); err != nil {
		log.Printf("[REFLECTION] Sweep failed: %v", err)
	}
	return true
}

// Sweep summarizes every stale conversation once. Failures are isolated per
// conversation. Returns the number of summaries written.
//
// Sweep does not take the busy flag; use Tick for scheduled runs.
func (r *Reflector) Sweep(ctx context.Context) (int, error) {
	stale, err := r.tracker.UnsummarizedConversations(ctx)
	if err != nil {
		return 0, fmt.Errorf("unsummarized conversations: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	log.Printf("[REFLECTION] Found %d unsummarized conversations", len(stale))

	updated := 0
	for _, c := range stale {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		if err := r.summarizeOne(ctx, c); err != nil {
			log.Printf("[REFLECTION] Conversation %d: %v", c.ID, err)
			continue
		}
		updated++
	}

	log.Printf("[REFLECTION] Updated %d conversation summaries", updated)
	return updated, nil
}

func (r *Reflector) summarizeOne(ctx context.Context, c StaleConversation) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	summary, err := r.summarizer.Summarize(ctx, strings.Join(c.Lines, "\n"))
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fmt.Errorf("summarize: empty summary")
	}

	return r.tracker.UpdateConversationSummary(ctx, c.ID, summary, c.LatestAt)
}
