package crawler

import "sync"

// ItemState is the lifecycle position of a QueueItem.
type ItemState int

const (
	// ItemQueued means the URL is waiting for dispatch.
	ItemQueued ItemState = iota
	// ItemFetching means a fetch for the URL is in flight.
	ItemFetching
	// ItemFetched means the URL was fetched successfully.
	ItemFetched
	// ItemErrored means the fetch or the write failed.
	ItemErrored
)

func (s ItemState) String() string {
	switch s {
	case ItemQueued:
		return "queued"
	case ItemFetching:
		return "fetching"
	case ItemFetched:
		return "fetched"
	case ItemErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// QueueItem is one URL discovered during a crawl session.
type QueueItem struct {
	URL         string
	Depth       int
	Referrer    string // Page the URL was found on; empty for the seed
	State       ItemState
	StatusCode  int
	ContentType string
	LocalPath   string
	Bytes       int
	Err         error
}

// Seen is the visited set behind a Frontier.
type Seen interface {
	// VisitIfNew marks url and reports whether it was unmarked before.
	VisitIfNew(url string) bool
}

// memorySeen is an exact in-memory Seen.
type memorySeen map[string]struct{}

func (m memorySeen) VisitIfNew(url string) bool {
	if _, ok := m[url]; ok {
		return false
	}
	m[url] = struct{}{}
	return true
}

// Frontier is the deduplicated work queue of a crawl session. A URL is marked
// visited when it is enqueued, so two pages linking the same URL in the same
// instant still yield a single QueueItem. Items are retained after they are
// dequeued for the lifetime of the Frontier.
//
// Frontier is safe for concurrent use.
type Frontier struct {
	mu       sync.Mutex
	maxDepth int
	seen     Seen
	pending  []*QueueItem
	items    []*QueueItem
	closed   bool
}

// NewFrontier creates a Frontier that rejects items deeper than maxDepth.
// A nil seen uses an exact in-memory set.
func NewFrontier(maxDepth int, seen Seen) *Frontier {
	if seen == nil {
		seen = memorySeen{}
	}
	return &Frontier{maxDepth: maxDepth, seen: seen}
}

// Enqueue adds url at depth. It returns false, without side effects, when
// the depth exceeds the limit, the URL was already enqueued, or the Frontier
// is closed.
func (f *Frontier) Enqueue(url string, depth int, referrer string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || !f.depthAllowed(depth) {
		return false
	}
	if !f.seen.VisitIfNew(url) {
		return false
	}

	item := &QueueItem{URL: url, Depth: depth, Referrer: referrer, State: ItemQueued}
	f.items = append(f.items, item)
	f.pending = append(f.pending, item)
	return true
}

// Dequeue pops the oldest pending item and marks it as fetching.
func (f *Frontier) Dequeue() (*QueueItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return nil, false
	}
	item := f.pending[0]
	f.pending[0] = nil
	f.pending = f.pending[1:]
	item.State = ItemFetching
	return item, true
}

// Len returns the number of pending items.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// CanDescend reports whether links found at depth may still be enqueued.
func (f *Frontier) CanDescend(depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed && f.depthAllowed(depth+1)
}

// Settle applies update to item under the Frontier lock. It is how in-flight
// fetches record their outcome.
func (f *Frontier) Settle(item *QueueItem, update func(*QueueItem)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	update(item)
}

// Close stops accepting enqueues and drops every pending item. It returns
// the number of items dropped. Dropped items stay in ItemQueued.
func (f *Frontier) Close() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	dropped := len(f.pending)
	f.pending = nil
	return dropped
}

// Closed reports whether Close was called.
func (f *Frontier) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Count returns the number of items ever enqueued.
func (f *Frontier) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Items returns copies of all items in discovery order.
func (f *Frontier) Items() []QueueItem {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]QueueItem, len(f.items))
	for i, item := range f.items {
		out[i] = *item
	}
	return out
}

func (f *Frontier) depthAllowed(depth int) bool {
	return depth >= 0 && (f.maxDepth < 0 || depth <= f.maxDepth)
}
