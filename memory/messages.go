package memory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dslachut/hawat/core"
)

// Recorder is the append-only write path for messages.
type Recorder struct {
	store    Store
	embedder Embedder
	tracker  *Tracker
	now      func() time.Time
}

// NewRecorder creates a Recorder that attaches messages to the conversation
// reported by tracker.
func NewRecorder(store Store, embedder Embedder, tracker *Tracker, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		store:    store,
		embedder: embedder,
		tracker:  tracker,
		now:      now,
	}
}

// Record embeds content, resolves the current conversation and persists the
// message with its membership row. Returns the new message id.
//
// Segmentation is decided before the insert so that the message being
// written never counts as "recent" for itself.
func (r *Recorder) Record(ctx context.Context, content string, sender core.Sender) (int64, error) {
	if r.store == nil {
		return 0, ErrUnavailable
	}

	msg := &core.Message{
		Sender:    sender,
		Content:   content,
		Embedding: embedOrNil(ctx, r.embedder, content),
		Timestamp: r.now().UTC(),
	}

	conversationID, err := r.tracker.CurrentConversationID(ctx)
	if err != nil {
		return 0, fmt.Errorf("current conversation: %w", err)
	}

	id, err := r.store.InsertMessage(ctx, msg, conversationID)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}

	log.Printf("[MEMORY] Recorded message %d from %s in conversation %d: %q",
		id, sender, conversationID, truncateLog(content, 50))
	return id, nil
}
