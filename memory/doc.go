// Package memory provides the conversational memory behind the hawat chat
// assistant.
//
// Every chat turn is persisted with an embedding and attached to a
// conversation. Conversations are segmented by idle time: a message written
// more than IdleThreshold after the previous one starts a new conversation.
// Before the model answers, the engine asks for a composite context made of
// the recent messages, semantically similar past messages, and summaries of
// related past conversations. A background reflector summarizes conversations
// whose summary is missing or older than their newest message.
//
// Architecture:
//   - Store: persistence backend (sqlite + chromem-go for local, pgvector for production)
//   - Embedder: text-to-vector conversion (ONNX all-MiniLM-L6-v2, remote API, mock)
//   - Recorder: write path for messages
//   - Tracker: conversation segmentation and staleness lookups
//   - Assembler: read path producing the prompt context
//   - Reflector: periodic summarization sweep
//   - SimpleManager: facade the engine talks to
//
// A nil Store is valid everywhere and means "memory unavailable": writes
// become logged no-ops and reads return empty results, so a chat turn never
// fails because of memory.
package memory
