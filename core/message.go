// Package core defines the records shared by the memory subsystem, the chat
// engine and the transports.
package core

import (
	"fmt"
	"time"
)

// Sender labels who produced a message. The set is open; the engine uses
// SenderUser and SenderAssistant.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// EmbeddingDimensions is the vector size of the all-MiniLM-L6-v2 model and of
// the embedding columns in the persistent schema.
const EmbeddingDimensions = 384

// Message is a single chat turn. It is immutable once written.
type Message struct {
	ID        int64
	Sender    Sender
	Content   string
	Embedding []float32
	Timestamp time.Time // UTC

	// MinutesAgo is computed at read time against the caller's clock.
	// It is never persisted.
	MinutesAgo int
}

// Age annotates the message with whole minutes elapsed since it was written.
func (m *Message) Age(now time.Time) {
	m.MinutesAgo = int(now.Sub(m.Timestamp) / time.Minute)
}

func (m Message) String() string {
	return fmt.Sprintf("Message{id=%d, sender=%s, at=%s}", m.ID, m.Sender, m.Timestamp.Format(time.RFC3339))
}
