// Package result holds the per-item outcome of a mirror sync and renders it
// as JSON, CSV or a plain-text summary.
package result

import "time"

// Outcome is the terminal state of a crawl session.
type Outcome string

const (
	// OutcomeCompleted means the queue drained with nothing outstanding.
	OutcomeCompleted Outcome = "completed"
	// OutcomeAborted means the session was cancelled before draining.
	OutcomeAborted Outcome = "aborted"
)

// Item states as they appear in a report.
const (
	StateQueued   = "queued"
	StateFetching = "fetching"
	StateFetched  = "fetched"
	StateErrored  = "errored"
)

// ItemResult is the outcome of one URL discovered during a session.
type ItemResult struct {
	URL           string        `json:"url"`
	Depth         int           `json:"depth"`
	State         string        `json:"state"`
	StatusCode    int           `json:"status_code,omitempty"`
	ContentType   string        `json:"content_type,omitempty"`
	LocalPath     string        `json:"local_path,omitempty"`
	Bytes         int           `json:"bytes,omitempty"`
	Error         string        `json:"error,omitempty"`
	ErrorCategory ErrorCategory `json:"error_type,omitempty"`
	Referrer      string        `json:"referrer,omitempty"`
}

// Stats contains aggregate counters for a session.
type Stats struct {
	Discovered int           `json:"discovered"` // Items ever enqueued
	Fetched    int           `json:"fetched"`
	Errored    int           `json:"errored"`
	Discarded  int           `json:"discarded"` // Queued items dropped by cancellation
	Bytes      int64         `json:"bytes"`     // Payload bytes written
	Duration   time.Duration `json:"duration"`
}

// Report is the complete output of one crawl session.
type Report struct {
	LinkID  string       `json:"link_id,omitempty"`
	SeedURL string       `json:"seed_url"`
	Outcome Outcome      `json:"outcome"`
	Items   []ItemResult `json:"items"`
	Stats   Stats        `json:"stats"`
}

// Failed returns the errored items in discovery order.
func (r *Report) Failed() []ItemResult {
	var failed []ItemResult
	for _, item := range r.Items {
		if item.State == StateErrored {
			failed = append(failed, item)
		}
	}
	return failed
}
