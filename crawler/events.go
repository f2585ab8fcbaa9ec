package crawler

import "github.com/lukemcguire/linksync/result"

// Event reports progress for a single settled item. Counters are cumulative
// for the session at the time the event was sent.
type Event struct {
	URL           string
	Depth         int
	State         ItemState
	StatusCode    int
	LocalPath     string
	Bytes         int
	Error         string
	ErrorCategory result.ErrorCategory

	Discovered int // Items enqueued so far
	Fetched    int
	Errored    int
	InFlight   int
	Written    int64 // Payload bytes written so far
}
