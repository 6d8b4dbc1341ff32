// Package postgres implements memory.Store on PostgreSQL with the pgvector
// extension. Similarity uses cosine distance (<=>) backed by HNSW indexes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/dslachut/hawat/core"
	"github.com/dslachut/hawat/memory"
)

var _ memory.Store = (*Store)(nil)

// Config holds the connection settings.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	// MaxOpenConns bounds the pool. Default: 10.
	MaxOpenConns int
}

// DSN returns a postgres:// connection URL.
func (c Config) DSN() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	return u.String()
}

// Store manages the memory tables in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects, verifies the connection and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	maxConns := cfg.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres %s:%s: %w", cfg.Host, cfg.Port, err)
	}

	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Printf("[POSTGRES] Connected to %s:%s/%s", cfg.Host, cfg.Port, cfg.Name)
	return s, nil
}

// New creates a Store backed by an already opened database and applies the
// schema.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, SchemaDDL); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, MigrateSummarizedAt); err != nil {
		return nil, fmt.Errorf("migrate summarized_at: %w", err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InsertMessage writes the message and its membership row in one transaction.
func (s *Store) InsertMessage(ctx context.Context, msg *core.Message, conversationID int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO messages (sender, content, embedding, timestamp) VALUES ($1, $2, $3, $4) RETURNING id`,
		string(msg.Sender), msg.Content, vectorOrNull(msg.Embedding), msg.Timestamp.UTC(),
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("message insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations_messages (conversation_id, message_id) VALUES ($1, $2)`,
		conversationID, id,
	); err != nil {
		return 0, fmt.Errorf("membership insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	msg.ID = id
	return id, nil
}

// LatestMessageTime returns the timestamp of the message with the highest id.
func (s *Store) LatestMessageTime(ctx context.Context) (time.Time, bool, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp FROM messages ORDER BY id DESC LIMIT 1`).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest message: %w", err)
	}
	return ts.UTC(), true, nil
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
	var id int64
	if err := s.db.QueryRowContext(ctx,
		`INSERT INTO conversations DEFAULT VALUES RETURNING id`).Scan(&id); err != nil {
		return 0, fmt.Errorf("conversation insert: %w", err)
	}
	return id, nil
}

// MessagesSince returns messages with timestamp >= since.
func (s *Store) MessagesSince(ctx context.Context, since time.Time) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, content, embedding, timestamp FROM messages
		 WHERE timestamp >= $1 ORDER BY timestamp ASC, id ASC`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("messages since: %w", err)
	}
	return collectMessages(rows)
}

// SimilarMessages returns up to limit messages by ascending cosine distance.
func (s *Store) SimilarMessages(ctx context.Context, embedding []float32, limit int) ([]core.Message, error) {
	if limit <= 0 || !usable(embedding) {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, content, embedding, timestamp FROM messages
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1, id ASC LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("similar messages: %w", err)
	}
	return collectMessages(rows)
}

// SimilarConversations returns up to limit summarized conversations by
// ascending cosine distance of their summary embedding.
func (s *Store) SimilarConversations(ctx context.Context, embedding []float32, limit int) ([]core.Conversation, error) {
	if limit <= 0 || !usable(embedding) {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, summary, embedding, summarized_at FROM conversations
		 WHERE summary IS NOT NULL AND summary <> '' AND embedding IS NOT NULL
		 ORDER BY embedding <=> $1, id ASC LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("similar conversations: %w", err)
	}
	defer rows.Close()

	var out []core.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// StaleConversations returns conversations with an empty summary or a summary
// older than their newest message.
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
			emb    *pgvector.Vector
		)
		if err := rows.Scan(&convID, &m.ID, &sender, &m.Content, &emb, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stale row: %w", err)
		}
		m.Sender = core.Sender(sender)
		m.Embedding = sliceOrNil(emb)
		m.Timestamp = m.Timestamp.UTC()

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

// UpdateConversationSummary writes summary, embedding and summarizedAt.
func (s *Store) UpdateConversationSummary(ctx context.Context, id int64, summary string, embedding []float32, summarizedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET summary = $1, embedding = $2, summarized_at = $3 WHERE id = $4`,
		summary, vectorOrNull(embedding), summarizedAt.UTC(), id,
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
	return nil
}

// GetConversation returns a single conversation.
func (s *Store) GetConversation(ctx context.Context, id int64) (*core.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, summary, embedding, summarized_at FROM conversations WHERE id = $1`, id)
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

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func collectMessages(rows *sql.Rows) ([]core.Message, error) {
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var (
			m      core.Message
			sender string
			emb    *pgvector.Vector
		)
		if err := rows.Scan(&m.ID, &sender, &m.Content, &emb, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = core.Sender(sender)
		m.Embedding = sliceOrNil(emb)
		m.Timestamp = m.Timestamp.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func scanConversation(row scanner) (core.Conversation, error) {
	var (
		c       core.Conversation
		summary sql.NullString
		emb     *pgvector.Vector
		at      sql.NullTime
	)
	if err := row.Scan(&c.ID, &summary, &emb, &at); err != nil {
		return core.Conversation{}, err
	}
	c.Summary = summary.String
	c.Embedding = sliceOrNil(emb)
	if at.Valid {
		c.SummarizedAt = at.Time.UTC()
	}
	return c, nil
}

// vectorOrNull maps an empty, all-zero or wrong-sized embedding to SQL NULL
// so the VECTOR column never rejects the row.
func vectorOrNull(v []float32) any {
	if !usable(v) {
		return nil
	}
	return pgvector.NewVector(v)
}

func sliceOrNil(v *pgvector.Vector) []float32 {
	if v == nil {
		return nil
	}
	return v.Slice()
}

// usable reports whether v fits the vector columns and has a defined cosine
// distance.
func usable(v []float32) bool {
	if len(v) != core.EmbeddingDimensions {
		return false
	}
	for _, f := range v {
		if f != 0 {
			return true
		}
	}
	return false
}
