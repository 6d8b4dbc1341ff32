package postgres

// SchemaDDL creates the pgvector extension, the memory tables and their
// indexes. Every statement is idempotent.
const SchemaDDL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS messages (
	id        SERIAL PRIMARY KEY,
	sender    TEXT NOT NULL,
	content   TEXT NOT NULL,
	embedding VECTOR(384),
	timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS messages_timestamp_idx ON messages (timestamp);
CREATE INDEX IF NOT EXISTS messages_embedding_idx ON messages USING HNSW (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS conversations (
	id            SERIAL PRIMARY KEY,
	summary       TEXT,
	embedding     VECTOR(384),
	summarized_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS conversations_embedding_idx ON conversations USING HNSW (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS conversations_messages (
	conversation_id INTEGER NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
	message_id      INTEGER NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
	PRIMARY KEY (conversation_id, message_id)
);
CREATE INDEX IF NOT EXISTS conversations_messages_conversation_id_idx ON conversations_messages (conversation_id);
CREATE INDEX IF NOT EXISTS conversations_messages_message_id_idx ON conversations_messages (message_id);
`

// MigrateSummarizedAt adds the summary timestamp to conversations tables
// created without it.
const MigrateSummarizedAt = `ALTER TABLE conversations ADD COLUMN IF NOT EXISTS summarized_at TIMESTAMPTZ`
