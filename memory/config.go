package memory

import "time"

// Config holds the memory tunables.
type Config struct {
	// RecencyWindow bounds the "current conversation" block of the context.
	// Default: 5 minutes.
	RecencyWindow time.Duration

	// SimilarMessages is how many nearest past messages are fetched.
	// Default: 3
	SimilarMessages int

	// RelatedConversations is how many nearest conversation summaries are
	// fetched. Default: 3
	RelatedConversations int

	// IdleThreshold is the gap after which the next message opens a new
	// conversation. Default: 30 minutes.
	IdleThreshold time.Duration

	// ReflectionInterval is the reflector tick cadence. It is independent of
	// IdleThreshold. Default: 1 minute.
	ReflectionInterval time.Duration
}

// DefaultConfig returns the defaults used by the hawat server.
var DefaultConfig = &Config{
	RecencyWindow:        5 * time.Minute,
	SimilarMessages:      3,
	RelatedConversations: 3,
	IdleThreshold:        30 * time.Minute,
	ReflectionInterval:   time.Minute,
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	out := *DefaultConfig
	if c == nil {
		return &out
	}
	if c.RecencyWindow > 0 {
		out.RecencyWindow = c.RecencyWindow
	}
	if c.SimilarMessages > 0 {
		out.SimilarMessages = c.SimilarMessages
	}
	if c.RelatedConversations > 0 {
		out.RelatedConversations = c.RelatedConversations
	}
	if c.IdleThreshold > 0 {
		out.IdleThreshold = c.IdleThreshold
	}
	if c.ReflectionInterval > 0 {
		out.ReflectionInterval = c.ReflectionInterval
	}
	return &out
}
