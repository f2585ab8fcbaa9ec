// Package config loads linksync settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/lukemcguire/linksync/crawler"
)

// Default configuration values.
const (
	// AppName names the XDG directories.
	AppName = "linksync"

	// Version is reported by the CLI and in the User-Agent header.
	Version = "0.1.0"

	// DefaultAPI is the link store served by a local LinkSync instance.
	DefaultAPI = "http://localhost:5979/api"

	DefaultConcurrency    = crawler.DefaultConcurrency
	DefaultInterval       = crawler.DefaultInterval
	DefaultMaxDepth       = crawler.DefaultMaxDepth
	DefaultRequestTimeout = crawler.DefaultRequestTimeout

	// DefaultRetryDelay is the base backoff between retries.
	DefaultRetryDelay = time.Second

	// DefaultParallel is the number of links synced at once by a bulk sync.
	DefaultParallel = 2

	// DefaultUserAgent identifies the mirror to the sites it fetches.
	DefaultUserAgent = "LinkSync version " + Version

	// EnvAPI and EnvSyncRoot override the file values.
	EnvAPI      = "LINKSYNC_API"
	EnvSyncRoot = "LINKSYNC_SYNCROOT"
)

// Config holds every linksync setting.
type Config struct {
	API      string      `yaml:"api"`
	SyncRoot string      `yaml:"syncroot"`
	Crawl    CrawlConfig `yaml:"crawl"`
	Sync     SyncConfig  `yaml:"sync"`
}

// CrawlConfig tunes one mirror session.
type CrawlConfig struct {
	Concurrency        int      `yaml:"concurrency"`
	Interval           Duration `yaml:"interval"`
	MaxDepth           int      `yaml:"max_depth"`
	RequestTimeout     Duration `yaml:"request_timeout"`
	MaxDuration        Duration `yaml:"max_duration"`
	UserAgent          string   `yaml:"user_agent"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	RespectRobots      bool     `yaml:"respect_robots"`
	MaxBodyBytes       int64    `yaml:"max_body_bytes"`
	AdaptivePacing     bool     `yaml:"adaptive_pacing"`
	MemoryLimitMB      int64    `yaml:"memory_limit_mb"`
	VisitedStore       string   `yaml:"visited_store"`
	Retries            int      `yaml:"retries"`
	RetryDelay         Duration `yaml:"retry_delay"`
}

// SyncConfig controls bulk syncs.
type SyncConfig struct {
	Parallel int `yaml:"parallel"`
}

// NewConfig returns a Config holding the defaults.
func NewConfig() *Config {
	return &Config{
		API:      DefaultAPI,
		SyncRoot: DefaultSyncRoot(),
		Crawl: CrawlConfig{
			Concurrency:        DefaultConcurrency,
			Interval:           DurationFrom(DefaultInterval),
			MaxDepth:           DefaultMaxDepth,
			RequestTimeout:     DurationFrom(DefaultRequestTimeout),
			UserAgent:          DefaultUserAgent,
			InsecureSkipVerify: true,
			RespectRobots:      true,
			VisitedStore:       crawler.VisitedMemory,
			RetryDelay:         DurationFrom(DefaultRetryDelay),
		},
		Sync: SyncConfig{
			Parallel: DefaultParallel,
		},
	}
}

// DefaultSyncRoot is the XDG data directory mirrors are written under.
// On Linux: ~/.local/share/linksync/syncroot
func DefaultSyncRoot() string {
	return filepath.Join(xdg.DataHome, AppName, "syncroot")
}

// DefaultConfigPath is where Load looks when no file is named.
// On Linux: ~/.config/linksync/config.yaml
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Validate returns the first invalid setting as a sentinel error.
func (c *Config) Validate() error {
	switch {
	case c.API == "":
		return ErrNoAPI
	case c.SyncRoot == "":
		return ErrNoSyncRoot
	case c.Crawl.Concurrency <= 0:
		return ErrInvalidConcurrency
	case c.Crawl.Interval.Duration < 0:
		return ErrInvalidInterval
	case c.Crawl.MaxDepth < crawler.UnlimitedDepth:
		return ErrInvalidMaxDepth
	case c.Crawl.RequestTimeout.Duration <= 0:
		return ErrInvalidTimeout
	case c.Crawl.MaxDuration.Duration < 0:
		return ErrInvalidMaxDuration
	case c.Crawl.MaxBodyBytes < 0:
		return ErrInvalidMaxBodySize
	case c.Crawl.MemoryLimitMB < 0:
		return ErrInvalidMemoryLimit
	case c.Crawl.VisitedStore != crawler.VisitedMemory && c.Crawl.VisitedStore != crawler.VisitedBloom:
		return ErrInvalidVisitedStore
	case c.Crawl.Retries < 0:
		return ErrInvalidRetries
	case c.Sync.Parallel <= 0:
		return ErrInvalidParallel
	}
	return nil
}

// CrawlerConfig converts the crawl settings into a session config for seedURL.
func (c *Config) CrawlerConfig(seedURL string, logger *slog.Logger) crawler.Config {
	cc := c.Crawl
	policy := crawler.DefaultRetryPolicy()
	policy.MaxRetries = cc.Retries
	if cc.RetryDelay.Duration > 0 {
		policy.BaseDelay = cc.RetryDelay.Duration
	}

	return crawler.Config{
		SeedURL:            seedURL,
		MaxDepth:           cc.MaxDepth,
		Concurrency:        cc.Concurrency,
		Interval:           cc.Interval.Duration,
		RequestTimeout:     cc.RequestTimeout.Duration,
		MaxDuration:        cc.MaxDuration.Duration,
		UserAgent:          cc.UserAgent,
		InsecureSkipVerify: cc.InsecureSkipVerify,
		RespectRobots:      cc.RespectRobots,
		MaxBodyBytes:       cc.MaxBodyBytes,
		AdaptivePacing:     cc.AdaptivePacing,
		MemoryLimitMB:      cc.MemoryLimitMB,
		VisitedStore:       cc.VisitedStore,
		RetryPolicy:        policy,
		Logger:             logger,
	}
}
