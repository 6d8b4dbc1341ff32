// Package sqlite implements memory.Store on an embedded SQLite database
// (modernc.org/sqlite, no cgo). Similarity search runs on in-process
// chromem-go indexes that are rebuilt from the stored embeddings at Open and
// again whenever another connection commits to the database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dslachut/hawat/core"
	"github.com/dslachut/hawat/memory"
	"github.com/dslachut/hawat/memory/store/chromem"
)

var _ memory.Store = (*Store)(nil)

// Store manages the memory tables in SQLite.
type Store struct {
	db *sql.DB

	messages  *chromem.Index // message embeddings
	summaries *chromem.Index // conversation summary embeddings

	// dataVersion is the last PRAGMA data_version the indexes were built at.
	// It changes when another connection, such as a second hawat process,
	// commits to the file.
	mu          sync.Mutex
	dataVersion int64
}

// Open opens a SQLite database at path (":memory:" for a throwaway store),
// applies the schema and builds the similarity indexes.
//
// The pool is limited to one connection: SQLite has a single writer, and an
// in-memory database only exists on the connection that created it.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s on %s: %w", pragma, path, err)
		}
	}

	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Printf("[SQLITE] Opened %s (%d message vectors, %d summary vectors)",
		path, s.messages.Count(), s.summaries.Count())
	return s, nil
}

// New creates a Store backed by an already opened database. The schema is
// applied and the similarity indexes are rebuilt.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, SchemaDDL); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		return nil, err
	}

	messages, err := chromem.New("messages", core.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	summaries, err := chromem.New("conversations", core.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:        db,
		messages:  messages,
		summaries: summaries,
	}
	if err := s.Reindex(ctx); err != nil {
		return nil, err
	}
	if s.dataVersion, err = s.readDataVersion(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, m := range migrations {
		ok, err := hasColumn(ctx, db, m.table, m.column)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", m.table, err)
		}
		if ok {
			continue
		}
		if _, err := db.ExecContext(ctx, m.ddl); err != nil {
			return fmt.Errorf("migrate %s.%s: %w", m.table, m.column, err)
		}
		log.Printf("[SQLITE] Added column %s.%s", m.table, m.column)
	}
	return nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Reindex drops and rebuilds both similarity indexes from the tables.
func (s *Store) Reindex(ctx context.Context) error {
	if err := s.messages.Reset(); err != nil {
		return err
	}
	if err := s.summaries.Reset(); err != nil {
		return err
	}
	if err := s.loadIndex(ctx, s.messages,
		`SELECT id, embedding FROM messages WHERE embedding IS NOT NULL`); err != nil {
		return fmt.Errorf("index messages: %w", err)
	}
	if err := s.loadIndex(ctx, s.summaries,
		`SELECT id, embedding FROM conversations
		 WHERE summary IS NOT NULL AND summary <> '' AND embedding IS NOT NULL`); err != nil {
		return fmt.Errorf("index conversations: %w", err)
	}
	return nil
}

func (s *Store) readDataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("data version: %w", err)
	}
	return v, nil
}

// syncIndexes rebuilds the indexes if another connection has committed since
// they were last built. Writes made through this Store keep the indexes
// current on their own and do not change data_version.
func (s *Store) syncIndexes(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.readDataVersion(ctx)
	if err != nil {
		return err
	}
	if v == s.dataVersion {
		return nil
	}
	log.Printf("[SQLITE] Database changed by another connection, rebuilding indexes")
	if err := s.Reindex(ctx); err != nil {
		return err
	}
	s.dataVersion = v
	return nil
}

func (s *Store) loadIndex(ctx context.Context, idx *chromem.Index, query string) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		if _, err := idx.Add(ctx, id, decodeEmbedding(blob)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// InsertMessage writes the message and its membership row in one transaction.
func (s *Store) InsertMessage(ctx context.Context, msg *core.Message, conversationID int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (sender, content, embedding, timestamp) VALUES (?, ?, ?, ?)`,
		string(msg.Sender), msg.Content, encodeEmbedding(msg.Embedding), msg.Timestamp.UTC().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("message insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations_messages (conversation_id, message_id) VALUES (?, ?)`,
		conversationID, id,
	); err != nil {
		return 0, fmt.Errorf("membership insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	if _, err := s.messages.Add(ctx, id, msg.Embedding); err != nil {
		log.Printf("[SQLITE] Message %d stored but not indexed: %v", id, err)
	}
	msg.ID = id
	return id, nil
}

// LatestMessageTime returns the timestamp of the message with the highest id.
func (s *Store) LatestMessageTime(ctx context.Context) (time.Time, bool, error) {
	var ns int64
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp FROM messages ORDER BY id DESC LIMIT 1`).Scan(&ns)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest message: %w", err)
	}
	return fromNanos(ns), true, nil
}

// LatestConversationID returns the highest conversation id.
func (s *Store) LatestConversationID(ctx context.Context) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations ORDER BY id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("latest conversation: %w", err)
	}
	return id, true, nil
}

// CreateConversation inserts an unsummarized conversation.
func (s *Store) CreateConversation(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO conversations DEFAULT VALUES`)
	if err != nil {
		return 0, fmt.Errorf("conversation insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("conversation last insert id: %w", err)
	}
	return id, nil
}

// MessagesSince returns messages with timestamp >= since.
func (s *Store) MessagesSince(ctx context.Context, since time.Time) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, content, embedding, timestamp FROM messages
		 WHERE timestamp >= ? ORDER BY timestamp ASC, id ASC`,
		since.UTC().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("messages since: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// SimilarMessages returns up to limit messages nearest to embedding.
func (s *Store) SimilarMessages(ctx context.Context, embedding []float32, limit int) ([]core.Message, error) {
	if err := s.syncIndexes(ctx); err != nil {
		return nil, err
	}
	matches, err := s.messages.Query(ctx, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("message index: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := matchIDs(matches)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, content, embedding, timestamp FROM messages WHERE id IN (`+placeholders(len(ids))+`)`,
		ids...,
	)
	if err != nil {
		return nil, fmt.Errorf("similar messages: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]core.Message, len(ids))
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	out := make([]core.Message, 0, len(matches))
	for _, match := range matches {
		if m, ok := byID[match.ID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// SimilarConversations returns up to limit summarized conversations nearest
// to embedding.
func (s *Store) SimilarConversations(ctx context.Context, embedding []float32, limit int) ([]core.Conversation, error) {
	if err := s.syncIndexes(ctx); err != nil {
		return nil, err
	}
	matches, err := s.summaries.Query(ctx, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation index: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := matchIDs(matches)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, summary, embedding, summarized_at FROM conversations
		 WHERE summary IS NOT NULL AND summary <> '' AND id IN (`+placeholders(len(ids))+`)`,
		ids...,
	)
	if err != nil {
		return nil, fmt.Errorf("similar conversations: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]core.Conversation, len(ids))
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	out := make([]core.Conversation, 0, len(matches))
	for _, match := range matches {
		if c, ok := byID[match.ID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// StaleConversations returns conversations with an empty summary or a summary
// older than their newest message. Conversations without messages are not
// returned.
func (s *Store) StaleConversations(ctx context.Context) ([]core.ConversationLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, m.id, m.sender, m.content, m.embedding, m.timestamp
		FROM conversations AS c
		INNER JOIN conversations_messages AS cm ON cm.conversation_id = c.id
		INNER JOIN messages AS m ON m.id = cm.message_id
		WHERE c.summary IS NULL OR c.summary = '' OR c.summarized_at IS NULL
		   OR c.summarized_at < (
		        SELECT MAX(msg.timestamp) FROM messages AS msg
		        INNER JOIN conversations_messages AS conmsg ON conmsg.message_id = msg.id
		        WHERE conmsg.conversation_id = c.id)
		ORDER BY c.id ASC, m.timestamp ASC, m.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("stale conversations: %w", err)
	}
	defer rows.Close()

	var logs []core.ConversationLog
	for rows.Next() {
		var (
			convID int64
			m      core.Message
			sender string
			blob   []byte
			ns     int64
		)
		if err := rows.Scan(&convID, &m.ID, &sender, &m.Content, &blob, &ns); err != nil {
			return nil, fmt.Errorf("scan stale row: %w", err)
		}
		m.Sender = core.Sender(sender)
		m.Embedding = decodeEmbedding(blob)
		m.Timestamp = fromNanos(ns)

		if n := len(logs); n == 0 || logs[n-1].ConversationID != convID {
			logs = append(logs, core.ConversationLog{ConversationID: convID})
		}
		last := &logs[len(logs)-1]
		last.Messages = append(last.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale rows: %w", err)
	}
	return logs, nil
}

// UpdateConversationSummary stores the summary and re-indexes its embedding.
func (s *Store) UpdateConversationSummary(ctx context.Context, id int64, summary string, embedding []float32, summarizedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET summary = ?, embedding = ?, summarized_at = ? WHERE id = ?`,
		summary, encodeEmbedding(embedding), summarizedAt.UTC().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("conversation update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("conversation rows affected: %w", err)
	}
	if n == 0 {
		return memory.ErrNotFound
	}

	ok := false
	if summary != "" {
		ok, err = s.summaries.Add(ctx, id, embedding)
		if err != nil {
			log.Printf("[SQLITE] Conversation %d summary stored but not indexed: %v", id, err)
		}
	}
	if !ok {
		if err := s.summaries.Remove(ctx, id); err != nil {
			log.Printf("[SQLITE] Conversation %d: %v", id, err)
		}
	}
	return nil
}

// GetConversation returns a single conversation.
func (s *Store) GetConversation(ctx context.Context, id int64) (*core.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, summary, embedding, summarized_at FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %d: %w", id, err)
	}
	return &c, nil
}

// OrphanedMessages returns ids of messages without a membership row.
func (s *Store) OrphanedMessages(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id FROM messages AS m
		LEFT JOIN conversations_messages AS cm ON cm.message_id = m.id
		WHERE cm.message_id IS NULL
		ORDER BY m.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("orphaned messages: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan orphan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (core.Message, error) {
	var (
		m      core.Message
		sender string
		blob   []byte
		ns     int64
	)
	if err := row.Scan(&m.ID, &sender, &m.Content, &blob, &ns); err != nil {
		return core.Message{}, err
	}
	m.Sender = core.Sender(sender)
	m.Embedding = decodeEmbedding(blob)
	m.Timestamp = fromNanos(ns)
	return m, nil
}

func scanConversation(row scanner) (core.Conversation, error) {
	var (
		c       core.Conversation
		summary sql.NullString
		blob    []byte
		at      sql.NullInt64
	)
	if err := row.Scan(&c.ID, &summary, &blob, &at); err != nil {
		return core.Conversation{}, err
	}
	c.Summary = summary.String
	c.Embedding = decodeEmbedding(blob)
	if at.Valid {
		c.SummarizedAt = fromNanos(at.Int64)
	}
	return c, nil
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func matchIDs(matches []chromem.Match) []any {
	ids := make([]any, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// encodeEmbedding serializes a vector to a little-endian BLOB. An empty
// vector is stored as NULL.
func encodeEmbedding(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding deserializes a BLOB back to a float32 slice.
func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}
