package crawler

import (
	"log/slog"
	"time"
)

const (
	// DefaultConcurrency is the number of fetches allowed in flight at once.
	DefaultConcurrency = 5

	// DefaultInterval is the minimum gap between two fetch dispatches.
	DefaultInterval = 250 * time.Millisecond

	// DefaultMaxDepth follows links from the seed page but not beyond.
	DefaultMaxDepth = 1

	// DefaultRequestTimeout bounds a single fetch, body included.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultUserAgent identifies the crawler when no version is known.
	DefaultUserAgent = "LinkSync"

	// UnlimitedDepth disables the depth limit.
	UnlimitedDepth = -1
)

// Visited store kinds accepted in Config.VisitedStore.
const (
	VisitedMemory = "memory"
	VisitedBloom  = "bloom"
)

// Config holds the settings of one crawl session.
type Config struct {
	SeedURL            string        // The starting URL for the crawl
	MaxDepth           int           // Links found on a page at this depth are not followed; UnlimitedDepth disables
	Concurrency        int           // Maximum fetches in flight (default 5)
	Interval           time.Duration // Minimum gap between dispatches; 0 disables pacing
	RequestTimeout     time.Duration // Per-request timeout (default 30s)
	MaxDuration        time.Duration // Total crawl lifetime; 0 means unbounded
	UserAgent          string        // User-Agent header for every request
	InsecureSkipVerify bool          // Skip TLS certificate verification of fetched targets
	RespectRobots      bool          // Honor robots.txt for the seed host
	MaxBodyBytes       int64         // Largest accepted body; 0 means unlimited
	AdaptivePacing     bool          // Widen the interval when the server slows down
	MemoryLimitMB      int64         // Soft heap limit driving admission throttling; 0 disables
	VisitedStore       string        // VisitedMemory (default) or VisitedBloom
	RetryPolicy        RetryPolicy   // Retries for transient fetch failures
	Logger             *slog.Logger  // Diagnostic output; nil discards
}

// DefaultConfig returns a Config with the crawler's defaults for seedURL.
func DefaultConfig(seedURL string) Config {
	return Config{
		SeedURL:            seedURL,
		MaxDepth:           DefaultMaxDepth,
		Concurrency:        DefaultConcurrency,
		Interval:           DefaultInterval,
		RequestTimeout:     DefaultRequestTimeout,
		UserAgent:          DefaultUserAgent,
		InsecureSkipVerify: true,
		RespectRobots:      true,
		VisitedStore:       VisitedMemory,
		RetryPolicy:        DefaultRetryPolicy(),
	}
}

// withDefaults fills zero-valued fields that have no meaningful zero.
func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Interval < 0 {
		c.Interval = 0
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.VisitedStore == "" {
		c.VisitedStore = VisitedMemory
	}
	if c.RetryPolicy.BaseDelay <= 0 {
		c.RetryPolicy.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	if c.RetryPolicy.MaxDelay <= 0 {
		c.RetryPolicy.MaxDelay = DefaultRetryPolicy().MaxDelay
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}
