package sqlite

// SchemaDDL creates the memory tables. Every statement is idempotent.
//
// Timestamps are unix nanoseconds (UTC). Embeddings are little-endian
// float32 BLOBs; NULL means the text could not be embedded.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS messages (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	sender    TEXT    NOT NULL,
	content   TEXT    NOT NULL,
	embedding BLOB,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_timestamp_idx ON messages (timestamp);

CREATE TABLE IF NOT EXISTS conversations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	summary       TEXT,
	embedding     BLOB,
	summarized_at INTEGER
);

CREATE TABLE IF NOT EXISTS conversations_messages (
	conversation_id INTEGER NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
	message_id      INTEGER NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
	PRIMARY KEY (conversation_id, message_id)
);
CREATE INDEX IF NOT EXISTS conversations_messages_message_id_idx ON conversations_messages (message_id);
`

// Migrations for databases created before the current schema. Each adds a
// column and runs only when the column is missing.
const (
	MigrateSummarizedAt = `ALTER TABLE conversations ADD COLUMN summarized_at INTEGER`
)

type columnMigration struct {
	table  string
	column string
	ddl    string
}

var migrations = []columnMigration{
	{table: "conversations", column: "summarized_at", ddl: MigrateSummarizedAt},
}
