// Package crawler mirrors the neighborhood of a seed URL. A Session fetches
// the seed and the same-origin pages reachable from it within a depth budget,
// with bounded concurrency and a minimum interval between dispatches, and
// hands every fetched payload to a Persister.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/lukemcguire/linksync/mirror"
	"github.com/lukemcguire/linksync/result"
	"github.com/lukemcguire/linksync/urlutil"
)

// robotsTimeout bounds a robots.txt download.
const robotsTimeout = 5 * time.Second

// ErrSessionStarted is returned when Run is called more than once.
var ErrSessionStarted = errors.New("session already started")

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Persister stores a fetched resource and returns the path it was written to.
type Persister interface {
	Persist(res mirror.Resource) (string, error)
}

// Session is one crawl of one seed URL. It is single-use: Run may be called
// once, after which the Session reports Completed or Aborted.
type Session struct {
	cfg      Config
	seed     string
	writer   Persister
	progress chan<- Event
	logger   *slog.Logger

	frontier *Frontier
	seen     Seen
	fetcher  *Fetcher
	pacer    *Pacer
	robots   *RobotsChecker
	memory   *MemoryWatcher

	// stopCtx is cancelled by Cancel. It interrupts pacing and retry
	// backoff, never a request in flight.
	stopCtx context.Context
	stop    context.CancelFunc

	mu          sync.Mutex
	state       State
	outstanding int
	cancelled   bool
	discarded   int
	fetched     int
	errored     int
	written     int64

	wake chan struct{}
	done chan struct{}
}

// NewSession prepares a crawl of cfg.SeedURL that stores payloads through
// writer. progressCh is optional; events are dropped when it is full.
// An unusable seed URL yields an error wrapping urlutil.ErrInvalidURL.
func NewSession(cfg Config, writer Persister, progressCh chan<- Event) (*Session, error) {
	if writer == nil {
		return nil, errors.New("new session: nil writer")
	}
	cfg = cfg.withDefaults()

	seed, err := urlutil.Normalize(cfg.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	if !urlutil.IsHTTPScheme(seed) {
		return nil, fmt.Errorf("new session: %w: unsupported scheme in %q", urlutil.ErrInvalidURL, seed)
	}
	seen, err := newSeen(cfg.VisitedStore)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	fetcher := NewFetcher(cfg, urlutil.Origin(seed))

	pacer := NewPacer(cfg.Interval)
	if cfg.AdaptivePacing {
		pacer = NewAdaptivePacer(cfg.Interval, DefaultTargetRTT)
	}

	var robots *RobotsChecker
	if cfg.RespectRobots {
		robotsClient := &http.Client{Transport: fetcher.Client().Transport, Timeout: robotsTimeout}
		robots = NewRobotsChecker(robotsClient, cfg.UserAgent)
	}

	var memory *MemoryWatcher
	if cfg.MemoryLimitMB > 0 {
		memory = NewMemoryWatcher(cfg.MemoryLimitMB)
		memory.SetThrottleCallback(func(level ThrottleLevel) {
			cfg.Logger.Warn("memory pressure changed", "url", seed, "level", level.String())
		})
	}

	stopCtx, stop := context.WithCancel(context.Background())

	return &Session{
		cfg:      cfg,
		seed:     seed,
		writer:   writer,
		progress: progressCh,
		logger:   cfg.Logger.With("seed", seed),
		frontier: NewFrontier(cfg.MaxDepth, seen),
		seen:     seen,
		fetcher:  fetcher,
		pacer:    pacer,
		robots:   robots,
		memory:   memory,
		stopCtx:  stopCtx,
		stop:     stop,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// SeedURL returns the normalized seed URL.
func (s *Session) SeedURL() string { return s.seed }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the Session reaches Completed or Aborted.
func (s *Session) Done() <-chan struct{} { return s.done }

// Cancel raises the cancel signal: queued items are discarded, no further
// items are enqueued and fetches in flight finish without their links being
// followed. Cancel is idempotent and safe to call from any goroutine.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.cancelled || s.state == StateCompleted || s.state == StateAborted {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.discarded += s.frontier.Close()
	s.mu.Unlock()

	s.stop()
	s.signal()
}

// Run crawls until the queue drains (Completed) or the cancel signal is
// raised and every in-flight fetch has settled (Aborted). Cancelling ctx or
// exceeding Config.MaxDuration raises the cancel signal.
func (s *Session) Run(ctx context.Context) (*result.Report, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, ErrSessionStarted
	}
	s.state = StateRunning
	s.mu.Unlock()

	start := time.Now()
	defer s.release()

	if s.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MaxDuration)
		defer cancel()
	}

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info("sync cancelled", "error", context.Cause(ctx))
			s.Cancel()
		case <-watchDone:
		}
	}()

	if s.cfg.InsecureSkipVerify {
		s.logger.Warn("TLS certificate verification disabled for this sync")
	}
	s.logger.Info("sync started",
		"depth", s.cfg.MaxDepth,
		"concurrency", s.cfg.Concurrency,
		"interval", s.cfg.Interval)

	if ctx.Err() != nil {
		s.Cancel()
	}
	fetchCtx := context.WithoutCancel(ctx)
	s.frontier.Enqueue(s.seed, 0, "")
	s.primeRobots(fetchCtx)
	s.schedule(fetchCtx)

	rep := s.report(time.Since(start))
	attrs := []any{
		"outcome", rep.Outcome,
		"fetched", rep.Stats.Fetched,
		"errored", rep.Stats.Errored,
		"discarded", rep.Stats.Discarded,
		"bytes", humanize.Bytes(uint64(rep.Stats.Bytes)),
		"duration", rep.Stats.Duration.Round(time.Millisecond),
	}
	if s.cfg.AdaptivePacing {
		attrs = append(attrs,
			"rtt_ema", s.pacer.CurrentEMA().Round(time.Millisecond),
			"final_interval", s.pacer.Interval())
	}
	s.logger.Info("sync finished", attrs...)
	return rep, nil
}

// schedule is the dispatcher: it admits a fetch whenever fewer than the
// admission limit are outstanding and the pacer allows it, and returns once
// nothing is outstanding and the queue is empty or discarded.
func (s *Session) schedule(fetchCtx context.Context) {
	var group errgroup.Group

	for {
		s.mu.Lock()
		if s.outstanding == 0 && (s.cancelled || s.frontier.Len() == 0) {
			s.finishLocked()
			s.mu.Unlock()
			break
		}
		if s.cancelled || s.frontier.Len() == 0 || s.outstanding >= s.admissionLimit() {
			s.mu.Unlock()
			<-s.wake
			continue
		}
		s.mu.Unlock()

		if err := s.pacer.Wait(s.stopCtx); err != nil {
			continue
		}

		s.mu.Lock()
		if s.cancelled {
			s.mu.Unlock()
			continue
		}
		item, ok := s.frontier.Dequeue()
		if !ok {
			s.mu.Unlock()
			continue
		}
		s.outstanding++
		s.mu.Unlock()

		group.Go(func() error {
			s.process(fetchCtx, item)
			return nil
		})
	}

	_ = group.Wait()
}

// primeRobots downloads the seed's robots.txt in a pacing slot of its own,
// before any page is dispatched. Later lookups hit the checker's cache.
func (s *Session) primeRobots(ctx context.Context) {
	if s.robots == nil {
		return
	}
	if err := s.pacer.Wait(s.stopCtx); err != nil {
		return
	}
	s.allowed(ctx, s.seed)
}

// admissionLimit is the number of fetches allowed in flight right now.
func (s *Session) admissionLimit() int {
	if s.memory == nil {
		return s.cfg.Concurrency
	}
	return s.memory.AdmissionLimit(s.cfg.Concurrency)
}

// finishLocked moves the session to its terminal state. Must be called with
// mu held.
func (s *Session) finishLocked() {
	if s.cancelled {
		s.state = StateAborted
	} else {
		s.state = StateCompleted
	}
	s.frontier.Close()
	close(s.done)
}

// process fetches one item, enqueues its links and persists its payload.
// Links are enqueued before the item is settled so the scheduler never
// observes an empty queue with work still to be discovered.
func (s *Session) process(ctx context.Context, item *QueueItem) {
	logger := s.logger.With("url", item.URL, "depth", item.Depth)

	if item.Depth == 0 && !s.allowed(ctx, item.URL) {
		s.settle(item, outcome{err: &FetchError{URL: item.URL, Err: ErrDisallowed}}, logger)
		return
	}

	res := FetchWithRetry(s.stopCtx, ctx, s.fetcher, item.URL, s.cfg.RetryPolicy)
	if res.StatusCode != 0 {
		s.pacer.ObserveRTT(res.RTT)
	}
	if res.Err != nil {
		s.settle(item, outcome{status: res.StatusCode, err: res.Err}, logger)
		return
	}

	// A fetched page's links are followed even when its own write fails.
	if s.frontier.CanDescend(item.Depth) {
		for _, link := range res.Links {
			if s.frontier.Closed() {
				break
			}
			if !s.allowed(ctx, link) {
				logger.Debug("link disallowed by robots.txt", "link", link)
				continue
			}
			s.frontier.Enqueue(link, item.Depth+1, item.URL)
		}
	}

	path, err := s.writer.Persist(mirror.Resource{
		SourceURL:   item.URL,
		Body:        res.Body,
		ContentType: res.ContentType,
	})
	if err != nil {
		s.settle(item, outcome{status: res.StatusCode, contentType: res.ContentType, err: err}, logger)
		return
	}

	s.settle(item, outcome{
		status:      res.StatusCode,
		contentType: res.ContentType,
		path:        path,
		bytes:       len(res.Body),
	}, logger)
}

// allowed consults robots.txt when the session respects it.
func (s *Session) allowed(ctx context.Context, rawURL string) bool {
	if s.robots == nil {
		return true
	}
	ok, err := s.robots.Allowed(ctx, rawURL)
	if err != nil {
		s.logger.Debug("robots.txt unavailable, allowing", "url", rawURL, "error", err)
	}
	return ok
}

// outcome is what process learned about an item.
type outcome struct {
	status      int
	contentType string
	path        string
	bytes       int
	err         error
}

// settle records the item's final state, releases its admission slot and
// reports progress.
func (s *Session) settle(item *QueueItem, out outcome, logger *slog.Logger) {
	evt := Event{
		URL:        item.URL,
		Depth:      item.Depth,
		StatusCode: out.status,
		LocalPath:  out.path,
		Bytes:      out.bytes,
	}
	if out.err != nil {
		evt.State = ItemErrored
		evt.Error = out.err.Error()
		evt.ErrorCategory = categorize(out.err, out.status)
		logger.Warn("item failed", "status", out.status, "error", out.err)
	} else {
		evt.State = ItemFetched
		logger.Debug("item mirrored", "path", out.path, "bytes", out.bytes)
	}

	s.mu.Lock()
	s.frontier.Settle(item, func(it *QueueItem) {
		it.State = evt.State
		it.StatusCode = out.status
		it.ContentType = out.contentType
		it.LocalPath = out.path
		it.Bytes = out.bytes
		it.Err = out.err
	})
	if out.err != nil {
		s.errored++
	} else {
		s.fetched++
		s.written += int64(out.bytes)
	}
	s.outstanding--
	evt.Fetched = s.fetched
	evt.Errored = s.errored
	evt.InFlight = s.outstanding
	evt.Written = s.written
	s.mu.Unlock()

	evt.Discovered = s.frontier.Count()
	s.emit(evt)
	s.signal()
}

func (s *Session) emit(evt Event) {
	if s.progress == nil {
		return
	}
	select {
	case s.progress <- evt:
	default:
	}
}

// signal wakes the scheduler without blocking.
func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// release frees per-session resources once the scheduler has returned.
func (s *Session) release() {
	s.stop()
	s.fetcher.Close()
	if closer, ok := s.seen.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn("close visited store", "error", err)
		}
	}
}

// report snapshots the session into a result.Report.
func (s *Session) report(elapsed time.Duration) *result.Report {
	items := s.frontier.Items()

	s.mu.Lock()
	rep := &result.Report{
		SeedURL: s.seed,
		Outcome: result.OutcomeCompleted,
		Stats: result.Stats{
			Discovered: len(items),
			Fetched:    s.fetched,
			Errored:    s.errored,
			Discarded:  s.discarded,
			Bytes:      s.written,
			Duration:   elapsed,
		},
	}
	if s.state == StateAborted {
		rep.Outcome = result.OutcomeAborted
	}
	s.mu.Unlock()

	rep.Items = make([]result.ItemResult, 0, len(items))
	for _, item := range items {
		ir := result.ItemResult{
			URL:         item.URL,
			Depth:       item.Depth,
			State:       item.State.String(),
			StatusCode:  item.StatusCode,
			ContentType: item.ContentType,
			LocalPath:   item.LocalPath,
			Bytes:       item.Bytes,
			Referrer:    item.Referrer,
		}
		if item.Err != nil {
			ir.Error = item.Err.Error()
			ir.ErrorCategory = categorize(item.Err, item.StatusCode)
		}
		rep.Items = append(rep.Items, ir)
	}
	return rep
}

// categorize classifies the errors this package produces before falling
// back to the generic network classification.
func categorize(err error, status int) result.ErrorCategory {
	var writeErr *mirror.WriteError
	switch {
	case errors.As(err, &writeErr):
		return result.CategoryIO
	case errors.Is(err, ErrDisallowed):
		return result.CategoryRobots
	case errors.Is(err, ErrBodyTooLarge):
		return result.CategoryTooLarge
	default:
		return result.ClassifyError(err, status, errors.Is(err, ErrRedirectLoop))
	}
}
