package config

import "errors"

// Configuration errors. Validate returns the first one that applies so
// callers can match them with errors.Is.
var (
	// ErrConfigNotFound is returned when an explicitly named config file does
	// not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrNoAPI is returned when the link store API URL is empty.
	ErrNoAPI = errors.New("no link store API configured")

	// ErrNoSyncRoot is returned when the sync root directory is empty.
	ErrNoSyncRoot = errors.New("no sync root configured")

	// ErrInvalidConcurrency is returned when the fetch concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidInterval is returned when the dispatch interval is negative.
	// Use 0 to disable pacing.
	ErrInvalidInterval = errors.New("invalid interval: must be non-negative")

	// ErrInvalidMaxDepth is returned for a depth below -1.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be -1 (unlimited) or greater")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid request timeout: must be positive")

	// ErrInvalidMaxDuration is returned when the session lifetime is negative.
	ErrInvalidMaxDuration = errors.New("invalid max duration: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the body limit is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body bytes: must be non-negative")

	// ErrInvalidMemoryLimit is returned when the memory limit is negative.
	ErrInvalidMemoryLimit = errors.New("invalid memory limit: must be non-negative")

	// ErrInvalidVisitedStore is returned for an unknown visited store kind.
	ErrInvalidVisitedStore = errors.New("invalid visited store: must be memory or bloom")

	// ErrInvalidRetries is returned when the retry count is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidParallel is returned when the number of parallel syncs is not positive.
	ErrInvalidParallel = errors.New("invalid parallel syncs: must be positive")
)
