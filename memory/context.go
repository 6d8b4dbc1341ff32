package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dslachut/hawat/core"
)

// ContextSet is the structured result of a context fetch, after
// deduplication and ordering.
type ContextSet struct {
	// Related holds summarized conversations, most similar first.
	Related []core.Conversation

	// Similar holds past messages not already in Recent, ascending by
	// timestamp.
	Similar []core.Message

	// Recent holds messages inside the recency window, ascending by timestamp.
	Recent []core.Message
}

// Format renders the set into the fixed three-block template.
func (s *ContextSet) Format() string {
	convos := make([]string, len(s.Related))
	for i, c := range s.Related {
		convos[i] = FormatConversationLine(c)
	}
	similar := make([]string, len(s.Similar))
	for i, m := range s.Similar {
		similar[i] = FormatContextLine(m)
	}
	recent := make([]string, len(s.Recent))
	for i, m := range s.Recent {
		recent[i] = FormatContextLine(m)
	}
	return renderContext(convos, similar, recent)
}

// Assembler is the read path: it combines recency, message similarity and
// conversation similarity into one prompt context.
type Assembler struct {
	store    Store
	embedder Embedder
	config   *Config
	now      func() time.Time
}

// NewAssembler creates an Assembler.
func NewAssembler(store Store, embedder Embedder, config *Config, now func() time.Time) *Assembler {
	if now == nil {
		now = time.Now
	}
	return &Assembler{
		store:    store,
		embedder: embedder,
		config:   config.withDefaults(),
		now:      now,
	}
}

// BuildContext returns the formatted context for query. The output is
// deterministic for a given store content and clock. A failed lookup leaves
// its block empty; the error is returned alongside the partial context.
func (a *Assembler) BuildContext(ctx context.Context, query string) (string, error) {
	set, err := a.Fetch(ctx, query)
	return set.Format(), err
}

// Fetch runs the three lookups and applies deduplication and ordering.
// Each lookup degrades on its own: a failure is logged, leaves that block
// empty and is joined into the returned error while the other blocks are
// kept. A nil store returns an empty set and ErrUnavailable.
func (a *Assembler) Fetch(ctx context.Context, query string) (*ContextSet, error) {
	if a.store == nil {
		return &ContextSet{}, ErrUnavailable
	}

	// One clock reading for every minutes-ago annotation.
	now := a.now().UTC()

	// The query is embedded once and shared by both similarity lookups.
	embedding := embedOrNil(ctx, a.embedder, query)

	var (
		recent  []core.Message
		similar []core.Message
		related []core.Conversation

		recentErr, similarErr, relatedErr error
	)

	// No shared cancellation: one failing lookup must not abort the others.
	var g errgroup.Group
	g.Go(func() error {
		msgs, err := a.store.MessagesSince(ctx, now.Add(-a.config.RecencyWindow))
		if err != nil {
			recentErr = fmt.Errorf("recent messages: %w", err)
			log.Printf("[CONTEXT] %v", recentErr)
			return nil
		}
		recent = msgs
		return nil
	})
	if len(embedding) > 0 {
		g.Go(func() error {
			msgs, err := a.store.SimilarMessages(ctx, embedding, a.config.SimilarMessages)
			if err != nil {
				similarErr = fmt.Errorf("similar messages: %w", err)
				log.Printf("[CONTEXT] %v", similarErr)
				return nil
			}
			similar = msgs
			return nil
		})
		g.Go(func() error {
			convos, err := a.store.SimilarConversations(ctx, embedding, a.config.RelatedConversations)
			if err != nil {
				relatedErr = fmt.Errorf("related conversations: %w", err)
				log.Printf("[CONTEXT] %v", relatedErr)
				return nil
			}
			related = convos
			return nil
		})
	}
	_ = g.Wait()

	for i := range recent {
		recent[i].Age(now)
	}
	similar = dedupe(similar, recent)
	for i := range similar {
		similar[i].Age(now)
	}
	sortChronologically(recent)
	sortChronologically(similar)

	log.Printf("[CONTEXT] query=%q recent=%d similar=%d related=%d",
		truncateLog(query, 50), len(recent), len(similar), len(related))

	return &ContextSet{
		Related: related,
		Similar: similar,
		Recent:  recent,
	}, errors.Join(recentErr, similarErr, relatedErr)
}

// dedupe drops from similar every message whose id is also in recent.
func dedupe(similar, recent []core.Message) []core.Message {
	if len(similar) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(recent))
	for _, m := range recent {
		seen[m.ID] = struct{}{}
	}
	out := make([]core.Message, 0, len(similar))
	for _, m := range similar {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		out = append(out, m)
	}
	return out
}

// sortChronologically orders messages by timestamp, then id.
func sortChronologically(msgs []core.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
