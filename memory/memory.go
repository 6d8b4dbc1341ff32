package memory

import (
	"context"
	"errors"
	"time"

	"github.com/dslachut/hawat/core"
)

var (
	// ErrUnavailable is returned when the manager was built without a store,
	// e.g. because the database could not be opened at startup.
	ErrUnavailable = errors.New("memory store unavailable")

	// ErrNotFound is returned by Store lookups that match no row.
	ErrNotFound = errors.New("not found")
)

// Manager orchestrates memory operations.
// This is the interface the chat engine uses.
//
// The engine decides WHEN memory is touched (record the user turn, retrieve
// context, record the assistant turn). The Manager decides HOW:
//   - which conversation a message belongs to
//   - which past messages and conversations are relevant
//   - how the context is formatted for the prompt
type Manager interface {
	// Record persists a chat turn and attaches it to the current conversation.
	// Returns the new message id.
	Record(ctx context.Context, content string, sender core.Sender) (int64, error)

	// Retrieve builds the formatted context for a query message.
	// The returned string is ready for prompt injection and always contains
	// all three context blocks.
	Retrieve(ctx context.Context, query string) (string, error)
}

// Store is the persistence backend.
// Implementations: sqlite.Store (embedded, chromem-go index),
// postgres.Store (pgvector).
//
// Every method is a single atomic statement or transaction; no lock spans
// multiple calls.
type Store interface {
	// InsertMessage writes the message and its membership row for
	// conversationID in one transaction. Returns the new message id.
	InsertMessage(ctx context.Context, msg *core.Message, conversationID int64) (int64, error)

	// LatestMessageTime returns the timestamp of the message with the highest
	// id. ok is false when the store holds no messages.
	LatestMessageTime(ctx context.Context) (ts time.Time, ok bool, err error)

	// LatestConversationID returns the highest conversation id.
	// ok is false when no conversation exists.
	LatestConversationID(ctx context.Context) (id int64, ok bool, err error)

	// CreateConversation inserts an empty conversation and returns its id.
	CreateConversation(ctx context.Context) (int64, error)

	// MessagesSince returns messages with timestamp >= since, ascending by
	// timestamp then id.
	MessagesSince(ctx context.Context, since time.Time) ([]core.Message, error)

	// SimilarMessages returns up to limit messages nearest to embedding,
	// most similar first.
	SimilarMessages(ctx context.Context, embedding []float32, limit int) ([]core.Message, error)

	// SimilarConversations returns up to limit summarized conversations whose
	// summary embedding is nearest to embedding, most similar first.
	SimilarConversations(ctx context.Context, embedding []float32, limit int) ([]core.Conversation, error)

	// StaleConversations returns every conversation whose summary is empty or
	// older than its newest attached message, ordered by conversation id,
	// each with its messages ascending by timestamp.
	StaleConversations(ctx context.Context) ([]core.ConversationLog, error)

	// UpdateConversationSummary writes summary, embedding and summarizedAt.
	// Returns ErrNotFound if the conversation does not exist.
	UpdateConversationSummary(ctx context.Context, id int64, summary string, embedding []float32, summarizedAt time.Time) error

	// GetConversation returns ErrNotFound if the conversation does not exist.
	GetConversation(ctx context.Context, id int64) (*core.Conversation, error)

	// OrphanedMessages returns ids of messages without a membership row.
	OrphanedMessages(ctx context.Context) ([]int64, error)

	// Close releases the connection pool.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock.MockEmbedder (testing), onnx.ONNXEmbedder (local
// all-MiniLM-L6-v2), remote.Client (OpenAI-compatible API), cached.Embedder
// (wrapper).
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Summarizer condenses a conversation log into a short summary.
// The llm package provides the implementation backed by a completion model.
type Summarizer interface {
	Summarize(ctx context.Context, conversation string) (string, error)
}
