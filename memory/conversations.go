package memory

import (
	"context"
	"fmt"
	"log"
	"time"
)

// StaleConversation is a conversation whose summary is missing or older than
// its newest message.
type StaleConversation struct {
	ID int64

	// Lines holds the conversation's messages, ascending by timestamp,
	// formatted with FormatLogLine.
	Lines []string

	// LatestAt is the timestamp of the newest attached message. Passing it to
	// UpdateConversationSummary marks the conversation fresh.
	LatestAt time.Time
}

// Tracker decides which conversation a message belongs to and exposes the
// staleness lookups used by the reflector.
type Tracker struct {
	store         Store
	embedder      Embedder
	idleThreshold time.Duration
	now           func() time.Time
}

// NewTracker creates a Tracker. A nil store yields ErrUnavailable from every
// method.
func NewTracker(store Store, embedder Embedder, idleThreshold time.Duration, now func() time.Time) *Tracker {
	if idleThreshold <= 0 {
		idleThreshold = DefaultConfig.IdleThreshold
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store:         store,
		embedder:      embedder,
		idleThreshold: idleThreshold,
		now:           now,
	}
}

// CurrentConversationID returns the conversation the next message belongs to.
//
// If the newest message in the store is younger than the idle threshold, the
// conversation with the highest id is current. Otherwise (including an empty
// store) a new conversation is created.
func (t *Tracker) CurrentConversationID(ctx context.Context) (int64, error) {
	if t.store == nil {
		return 0, ErrUnavailable
	}

	latest, ok, err := t.store.LatestMessageTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest message time: %w", err)
	}

	if ok && t.now().UTC().Sub(latest) < t.idleThreshold {
		id, found, err := t.store.LatestConversationID(ctx)
		if err != nil {
			return 0, fmt.Errorf("latest conversation id: %w", err)
		}
		if found {
			return id, nil
		}
		// Recent messages but no conversation row: only orphans exist.
	}

	id, err := t.store.CreateConversation(ctx)
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	log.Printf("[TRACKER] Started conversation %d", id)
	return id, nil
}

// UnsummarizedConversations returns the conversations the reflector should
// summarize, ordered by id.
func (t *Tracker) UnsummarizedConversations(ctx context.Context) ([]StaleConversation, error) {
	if t.store == nil {
		return nil, ErrUnavailable
	}

	logs, err := t.store.StaleConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("stale conversations: %w", err)
	}

	now := t.now().UTC()
	stale := make([]StaleConversation, 0, len(logs))
	for _, l := range logs {
		if len(l.Messages) == 0 {
			continue
		}
		lines := make([]string, len(l.Messages))
		for i, m := range l.Messages {
			lines[i] = FormatLogLine(m, now)
		}
		stale = append(stale, StaleConversation{
			ID:       l.ConversationID,
			Lines:    lines,
			LatestAt: l.LatestAt(),
		})
	}
	return stale, nil
}

// UpdateConversationSummary embeds summary and stores it on the conversation,
// recording timestamp as the newest message the summary covers.
// An embedding failure is logged and the summary is stored without a vector.
func (t *Tracker) UpdateConversationSummary(ctx context.Context, id int64, summary string, timestamp time.Time) error {
	if t.store == nil {
		return ErrUnavailable
	}

	embedding := embedOrNil(ctx, t.embedder, summary)
	if err := t.store.UpdateConversationSummary(ctx, id, summary, embedding, timestamp.UTC()); err != nil {
		return fmt.Errorf("update conversation %d: %w", id, err)
	}
	return nil
}

// Orphans returns ids of messages that are not attached to any conversation.
// Such messages are still visible to recency and similarity lookups but never
// get summarized.
func (t *Tracker) Orphans(ctx context.Context) ([]int64, error) {
	if t.store == nil {
		return nil, ErrUnavailable
	}
	ids, err := t.store.OrphanedMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("orphaned messages: %w", err)
	}
	if len(ids) > 0 {
		log.Printf("[TRACKER] %d orphaned messages: %v", len(ids), ids)
	}
	return ids, nil
}

// embedOrNil embeds text, logging and returning nil on failure.
func embedOrNil(ctx context.Context, embedder Embedder, text string) []float32 {
	if embedder == nil {
		return nil
	}
	embedding, err := embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("[EMBED] Failed to embed %q: %v", truncateLog(text, 50), err)
		return nil
	}
	return embedding
}
