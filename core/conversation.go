package core

import "time"

// Conversation groups messages written without an idle gap longer than the
// tracker's threshold. Only the reflection sweep mutates it.
type Conversation struct {
	ID int64

	// Summary is empty until the first reflection sweep covers it.
	Summary   string
	Embedding []float32

	// SummarizedAt is the timestamp of the newest message the summary covers.
	// Zero when there is no summary.
	SummarizedAt time.Time
}

// HasSummary reports whether a reflection sweep has written a summary.
func (c *Conversation) HasSummary() bool {
	return c.Summary != ""
}

// ConversationLog is a conversation together with its attached messages in
// ascending timestamp order.
type ConversationLog struct {
	ConversationID int64
	Messages       []Message
}

// LatestAt returns the timestamp of the newest attached message.
func (l ConversationLog) LatestAt() time.Time {
	var latest time.Time
	for _, m := range l.Messages {
		if m.Timestamp.After(latest) {
			latest = m.Timestamp
		}
	}
	return latest
}
