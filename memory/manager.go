package memory

import (
	"context"
	"log"
	"time"

	"github.com/dslachut/hawat/core"
)

// SimpleManager is the Manager implementation used by the hawat server.
// It wires a Recorder, Tracker and Assembler over one Store and Embedder.
//
// Memory failures never fail a chat turn: Record returns the error for the
// caller to log, and Retrieve falls back to NoneAvailable for each block
// whose lookup failed.
type SimpleManager struct {
	store    Store
	embedder Embedder // Internal: Engine never sees this
	config   *Config

	tracker   *Tracker
	recorder  *Recorder
	assembler *Assembler
}

// Option configures a SimpleManager.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now as the source of message timestamps and of the
// reference time for segmentation and context ages.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// NewSimpleManager creates a new SimpleManager. store may be nil, in which
// case memory is disabled and every operation degrades.
func NewSimpleManager(store Store, embedder Embedder, config *Config, opts ...Option) *SimpleManager {
	config = config.withDefaults()

	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	if store == nil {
		log.Printf("[MEMORY] No store configured, memory disabled")
	}

	tracker := NewTracker(store, embedder, config.IdleThreshold, o.now)
	return &SimpleManager{
		store:     store,
		embedder:  embedder,
		config:    config,
		tracker:   tracker,
		recorder:  NewRecorder(store, embedder, tracker, o.now),
		assembler: NewAssembler(store, embedder, config, o.now),
	}
}

// Record persists a chat turn.
func (m *SimpleManager) Record(ctx context.Context, content string, sender core.Sender) (int64, error) {
	id, err := m.recorder.Record(ctx, content, sender)
	if err != nil {
		log.Printf("[MEMORY] Failed to record %s message: %v", sender, err)
		return 0, err
	}
	return id, nil
}

// Retrieve returns the formatted context for query. On failure the error is
// returned together with whatever blocks could still be filled; failed
// lookups render as NoneAvailable.
func (m *SimpleManager) Retrieve(ctx context.Context, query string) (string, error) {
	set, err := m.assembler.Fetch(ctx, query)
	if err != nil {
		log.Printf("[MEMORY] Retrieval degraded, continuing with partial context: %v", err)
	}
	return set.Format(), err
}

// Tracker exposes the conversation tracker, e.g. for building a Reflector.
func (m *SimpleManager) Tracker() *Tracker {
	return m.tracker
}

// Assembler exposes the context assembler.
func (m *SimpleManager) Assembler() *Assembler {
	return m.assembler
}

// Config returns the effective configuration.
func (m *SimpleManager) Config() Config {
	return *m.config
}

// Available reports whether a store is configured.
func (m *SimpleManager) Available() bool {
	return m.store != nil
}

// NewReflector builds a Reflector over this manager's tracker using the
// configured interval.
func (m *SimpleManager) NewReflector(summarizer Summarizer) *Reflector {
	return NewReflector(m.tracker, summarizer, m.config.ReflectionInterval)
}
