package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lukemcguire/linksync/crawler"
	"github.com/lukemcguire/linksync/mirror"
	"github.com/lukemcguire/linksync/result"
	"github.com/lukemcguire/linksync/urlutil"
)

// newTestServer creates an httptest server with a small site.
// Site structure:
//
//	/        -> links to page2 (relative), /page2 (dup), /style.css, external
//	/page2   -> links to /page3
//	/page3   -> no outgoing links
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><link rel="stylesheet" href="/style.css"></head><body>
			<a href="page2">Page 2</a>
			<a href="/page2#top">Page 2 again</a>
			<a href="https://external.example.com/resource">External</a>
		</body></html>`)
	})
	mux.HandleFunc("/style.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		fmt.Fprint(w, `body { color: black; }`)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/page3">Page 3</a></body></html>`)
	})
	mux.HandleFunc("/page3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>No links here</p></body></html>`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// testConfig returns the default crawl settings without pacing.
func testConfig(seedURL string) crawler.Config {
	cfg := crawler.DefaultConfig(seedURL)
	cfg.Interval = 0
	cfg.RequestTimeout = 5 * time.Second
	return cfg
}

// mustNewSession creates a session or fails the test.
func mustNewSession(t *testing.T, cfg crawler.Config, writer crawler.Persister, progressCh chan<- crawler.Event) *crawler.Session {
	t.Helper()
	s, err := crawler.NewSession(cfg, writer, progressCh)
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}
	return s
}

func mustRun(t *testing.T, s *crawler.Session) *result.Report {
	t.Helper()
	rep, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	return rep
}

func itemsByURL(rep *result.Report) map[string]result.ItemResult {
	out := make(map[string]result.ItemResult, len(rep.Items))
	for _, item := range rep.Items {
		out[item.URL] = item
	}
	return out
}

// countingWriter counts successful persists.
type countingWriter struct {
	inner crawler.Persister
	n     atomic.Int32
}

func (c *countingWriter) Persist(res mirror.Resource) (string, error) {
	path, err := c.inner.Persist(res)
	if err == nil {
		c.n.Add(1)
	}
	return path, err
}

// TestSessionMirrorsSite verifies the full flow: the seed and the pages it
// links are written under their URL-derived paths, and links on a page at the
// depth limit are not followed.
func TestSessionMirrorsSite(t *testing.T) {
	ts := newTestServer(t)
	root := t.TempDir()

	s := mustNewSession(t, testConfig(ts.URL), mirror.NewDirWriter(root), nil)
	rep := mustRun(t, s)

	if rep.Outcome != result.OutcomeCompleted {
		t.Errorf("Outcome = %q, want completed", rep.Outcome)
	}
	if s.State() != crawler.StateCompleted {
		t.Errorf("State() = %v, want completed", s.State())
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done() not closed after Run returned")
	}

	host := urlutil.Hostname(ts.URL)
	for _, rel := range []string{"index.html", "page2", "style.css"} {
		path := filepath.Join(root, host, rel)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected mirrored file %s: %v", path, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, host, "page3")); !os.IsNotExist(err) {
		t.Errorf("page3 is beyond the depth limit and must not be written (stat err %v)", err)
	}

	index, err := os.ReadFile(filepath.Join(root, host, "index.html"))
	if err != nil {
		t.Fatalf("read index.html: %v", err)
	}
	if !strings.Contains(string(index), `href="page2"`) {
		t.Error("index.html content not mirrored verbatim")
	}

	if rep.Stats.Fetched != 3 || rep.Stats.Errored != 0 {
		t.Errorf("Stats = %+v, want 3 fetched, 0 errored", rep.Stats)
	}
	items := itemsByURL(rep)
	if len(items) != 3 {
		t.Errorf("got %d items, want 3 (seed, page2, style.css): %v", len(items), rep.Items)
	}
	page2 := items[ts.URL+"/page2"]
	if page2.Depth != 1 || page2.Referrer != ts.URL+"/" {
		t.Errorf("page2 item = %+v, want depth 1 referred by seed", page2)
	}
	if page2.LocalPath != filepath.Join(host, "page2") {
		t.Errorf("page2 LocalPath = %q", page2.LocalPath)
	}
}

// TestSessionPartialFailure verifies that one failing page does not affect
// its siblings.
func TestSessionPartialFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<a href="/a">A</a><a href="/b">B</a>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "alpha")
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	root := t.TempDir()
	rep := mustRun(t, mustNewSession(t, testConfig(ts.URL), mirror.NewDirWriter(root), nil))

	if rep.Outcome != result.OutcomeCompleted {
		t.Errorf("Outcome = %q, want completed", rep.Outcome)
	}
	items := itemsByURL(rep)
	if a := items[ts.URL+"/a"]; a.State != result.StateFetched {
		t.Errorf("/a state = %q, want fetched", a.State)
	}
	b := items[ts.URL+"/b"]
	if b.State != result.StateErrored || b.StatusCode != http.StatusInternalServerError {
		t.Errorf("/b = %+v, want errored with 500", b)
	}
	if b.ErrorCategory != result.Category5xx {
		t.Errorf("/b category = %q, want 5xx", b.ErrorCategory)
	}

	host := urlutil.Hostname(ts.URL)
	if data, err := os.ReadFile(filepath.Join(root, host, "a")); err != nil || string(data) != "alpha" {
		t.Errorf("/a not mirrored: %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(root, host, "b")); !os.IsNotExist(err) {
		t.Error("/b must not be written")
	}
}

// chainServer serves /, /1, /2, ... where each page links the next.
func chainServer(t *testing.T, length int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		n := 0
		if r.URL.Path != "/" {
			if _, err := fmt.Sscanf(r.URL.Path, "/%d", &n); err != nil {
				http.NotFound(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "text/html")
		if n < length {
			fmt.Fprintf(w, `<a href="/%d">next</a>`, n+1)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSessionDepthBound(t *testing.T) {
	ts := chainServer(t, 10)

	tests := []struct {
		name     string
		maxDepth int
		want     int
	}{
		{"seed only", 0, 1},
		{"default depth", crawler.DefaultMaxDepth, 2},
		{"depth three", 3, 4},
		{"unlimited", crawler.UnlimitedDepth, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(ts.URL)
			cfg.MaxDepth = tt.maxDepth
			rep := mustRun(t, mustNewSession(t, cfg, mirror.NewDirWriter(t.TempDir()), nil))

			if len(rep.Items) != tt.want {
				t.Errorf("got %d items, want %d", len(rep.Items), tt.want)
			}
			for _, item := range rep.Items {
				if tt.maxDepth >= 0 && item.Depth > tt.maxDepth {
					t.Errorf("item %s at depth %d exceeds limit %d", item.URL, item.Depth, tt.maxDepth)
				}
			}
		})
	}
}

// TestSessionNoDuplicateFetch verifies that a densely linked site is fetched
// exactly once per URL under concurrency.
func TestSessionNoDuplicateFetch(t *testing.T) {
	const pages = 20

	var mu sync.Mutex
	hits := make(map[string]int)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<a href="/">home</a>`)
		for i := range pages {
			fmt.Fprintf(w, `<a href="/p/%d">p%d</a><a href="/p/%d#frag">again</a>`, i, i, i)
		}
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.Concurrency = 8
	cfg.MaxDepth = crawler.UnlimitedDepth

	rep := mustRun(t, mustNewSession(t, cfg, mirror.NewDirWriter(t.TempDir()), nil))

	if rep.Stats.Fetched != pages+1 {
		t.Errorf("Fetched = %d, want %d", rep.Stats.Fetched, pages+1)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(hits) != pages+1 {
		t.Errorf("server saw %d distinct paths, want %d", len(hits), pages+1)
	}
	for path, n := range hits {
		if n != 1 {
			t.Errorf("%s fetched %d times, want 1", path, n)
		}
	}
}

// TestSessionCancelBound verifies that cancellation discards queued items,
// stops link discovery, and lets at most Concurrency in-flight fetches finish
// and write.
func TestSessionCancelBound(t *testing.T) {
	const (
		pages       = 50
		concurrency = 3
	)

	started := make(chan struct{}, pages)
	release := make(chan struct{})
	var releaseOnce sync.Once
	releaseAll := func() { releaseOnce.Do(func() { close(release) }) }

	var pageHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		for i := range pages {
			fmt.Fprintf(w, `<a href="/p/%d">p</a>`, i)
		}
	})
	mux.HandleFunc("/p/", func(w http.ResponseWriter, r *http.Request) {
		pageHits.Add(1)
		started <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<a href="/deep%s">deeper</a>`, r.URL.Path)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	// Blocked handlers must be released before the server can close.
	t.Cleanup(releaseAll)

	cfg := testConfig(ts.URL)
	cfg.Concurrency = concurrency
	cfg.MaxDepth = crawler.UnlimitedDepth

	writer := &countingWriter{inner: mirror.NewDirWriter(t.TempDir())}
	s := mustNewSession(t, cfg, writer, nil)

	reports := make(chan *result.Report, 1)
	go func() {
		rep, err := s.Run(context.Background())
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
		reports <- rep
	}()

	for range concurrency {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("in-flight fetches did not start")
		}
	}

	writesBeforeCancel := writer.n.Load()
	s.Cancel()
	s.Cancel()
	releaseAll()

	var rep *result.Report
	select {
	case rep = <-reports:
	case <-time.After(10 * time.Second):
		t.Fatal("session did not finish after cancel")
	}

	if rep.Outcome != result.OutcomeAborted {
		t.Errorf("Outcome = %q, want aborted", rep.Outcome)
	}
	if s.State() != crawler.StateAborted {
		t.Errorf("State() = %v, want aborted", s.State())
	}
	if got := pageHits.Load(); got != concurrency {
		t.Errorf("server saw %d page fetches, want %d", got, concurrency)
	}
	if after := writer.n.Load() - writesBeforeCancel; after > concurrency {
		t.Errorf("%d writes after cancel, want at most %d", after, concurrency)
	}
	if len(rep.Items) != pages+1 {
		t.Errorf("got %d items, want %d (no enqueues after cancel)", len(rep.Items), pages+1)
	}
	for _, item := range rep.Items {
		if strings.Contains(item.URL, "/deep/") {
			t.Errorf("link %s enqueued after cancel", item.URL)
		}
	}
	if rep.Stats.Discarded != pages-concurrency {
		t.Errorf("Discarded = %d, want %d", rep.Stats.Discarded, pages-concurrency)
	}
}

func TestSessionContextCancelledBeforeRun(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := mustNewSession(t, testConfig(ts.URL), mirror.NewDirWriter(t.TempDir()), nil)
	rep, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if rep.Outcome != result.OutcomeAborted {
		t.Errorf("Outcome = %q, want aborted", rep.Outcome)
	}
	if rep.Stats.Fetched != 0 {
		t.Errorf("Fetched = %d, want 0", rep.Stats.Fetched)
	}
}

func TestSessionMaxDuration(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		for i := range 10 {
			fmt.Fprintf(w, `<a href="/slow/%d">slow</a>`, i)
		}
	})
	mux.HandleFunc("/slow/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, "late")
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.Concurrency = 1
	cfg.MaxDuration = 150 * time.Millisecond

	rep := mustRun(t, mustNewSession(t, cfg, mirror.NewDirWriter(t.TempDir()), nil))

	if rep.Outcome != result.OutcomeAborted {
		t.Errorf("Outcome = %q, want aborted", rep.Outcome)
	}
	if rep.Stats.Discarded == 0 {
		t.Error("expected queued items to be discarded on expiry")
	}
}

func TestSessionInvalidSeed(t *testing.T) {
	for _, seed := range []string{"", "not a url", "/relative/path", "ftp://example.com/file"} {
		t.Run(seed, func(t *testing.T) {
			_, err := crawler.NewSession(crawler.DefaultConfig(seed), mirror.NewDirWriter(t.TempDir()), nil)
			if !errors.Is(err, urlutil.ErrInvalidURL) {
				t.Errorf("NewSession(%q) error = %v, want ErrInvalidURL", seed, err)
			}
		})
	}
}

func TestSessionRunTwice(t *testing.T) {
	ts := newTestServer(t)
	s := mustNewSession(t, testConfig(ts.URL), mirror.NewDirWriter(t.TempDir()), nil)
	mustRun(t, s)

	if _, err := s.Run(context.Background()); !errors.Is(err, crawler.ErrSessionStarted) {
		t.Errorf("second Run() error = %v, want ErrSessionStarted", err)
	}
}

func robotsSite(t *testing.T, rules string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rules)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<a href="/private/secret">secret</a><a href="/public">public</a>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestSessionRobotsFiltersLinks(t *testing.T) {
	ts := robotsSite(t, "User-agent: *\nDisallow: /private/")

	rep := mustRun(t, mustNewSession(t, testConfig(ts.URL), mirror.NewDirWriter(t.TempDir()), nil))

	items := itemsByURL(rep)
	if _, ok := items[ts.URL+"/private/secret"]; ok {
		t.Error("disallowed link was enqueued")
	}
	if _, ok := items[ts.URL+"/public"]; !ok {
		t.Error("allowed link missing")
	}
}

func TestSessionRobotsDisallowedSeed(t *testing.T) {
	ts := robotsSite(t, "User-agent: *\nDisallow: /")

	rep := mustRun(t, mustNewSession(t, testConfig(ts.URL), mirror.NewDirWriter(t.TempDir()), nil))

	if rep.Outcome != result.OutcomeCompleted {
		t.Errorf("Outcome = %q, want completed", rep.Outcome)
	}
	if len(rep.Items) != 1 {
		t.Fatalf("got %d items, want only the seed", len(rep.Items))
	}
	seed := rep.Items[0]
	if seed.State != result.StateErrored || seed.ErrorCategory != result.CategoryRobots {
		t.Errorf("seed = %+v, want errored by robots", seed)
	}
}

func TestSessionRobotsIgnored(t *testing.T) {
	ts := robotsSite(t, "User-agent: *\nDisallow: /")

	cfg := testConfig(ts.URL)
	cfg.RespectRobots = false
	rep := mustRun(t, mustNewSession(t, cfg, mirror.NewDirWriter(t.TempDir()), nil))

	if rep.Stats.Fetched != 3 {
		t.Errorf("Fetched = %d, want 3 with robots ignored", rep.Stats.Fetched)
	}
}

// failingWriter refuses resources whose URL contains fail.
type failingWriter struct {
	inner crawler.Persister
	fail  string
}

func (f failingWriter) Persist(res mirror.Resource) (string, error) {
	if strings.Contains(res.SourceURL, f.fail) {
		return "blocked", &mirror.WriteError{Path: "blocked", Err: os.ErrPermission}
	}
	return f.inner.Persist(res)
}

func TestSessionWriteFailureIsPerItem(t *testing.T) {
	ts := newTestServer(t)

	writer := failingWriter{inner: mirror.NewDirWriter(t.TempDir()), fail: "style.css"}
	rep := mustRun(t, mustNewSession(t, testConfig(ts.URL), writer, nil))

	items := itemsByURL(rep)
	css := items[ts.URL+"/style.css"]
	if css.State != result.StateErrored || css.ErrorCategory != result.CategoryIO {
		t.Errorf("style.css = %+v, want errored with io category", css)
	}
	if page2 := items[ts.URL+"/page2"]; page2.State != result.StateFetched {
		t.Errorf("page2 state = %q, want fetched", page2.State)
	}
	if rep.Outcome != result.OutcomeCompleted {
		t.Errorf("Outcome = %q, want completed", rep.Outcome)
	}
}

// rejectURLWriter refuses exactly one URL.
type rejectURLWriter struct {
	inner  crawler.Persister
	reject string
}

func (r rejectURLWriter) Persist(res mirror.Resource) (string, error) {
	if res.SourceURL == r.reject {
		return "blocked", &mirror.WriteError{Path: "blocked", Err: os.ErrPermission}
	}
	return r.inner.Persist(res)
}

// TestSessionSeedWriteFailureStillFollowsLinks verifies that a page whose
// write fails still has its links crawled.
func TestSessionSeedWriteFailureStillFollowsLinks(t *testing.T) {
	ts := newTestServer(t)
	root := t.TempDir()

	cfg := testConfig(ts.URL)
	seed, err := urlutil.Normalize(ts.URL)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	writer := rejectURLWriter{inner: mirror.NewDirWriter(root), reject: seed}
	rep := mustRun(t, mustNewSession(t, cfg, writer, nil))

	if rep.Outcome != result.OutcomeCompleted {
		t.Errorf("Outcome = %q, want completed", rep.Outcome)
	}
	items := itemsByURL(rep)
	if got := items[seed]; got.State != result.StateErrored || got.ErrorCategory != result.CategoryIO {
		t.Errorf("seed = %+v, want errored with io category", got)
	}
	host := urlutil.Hostname(ts.URL)
	for _, rel := range []string{"page2", "style.css"} {
		item := items[ts.URL+"/"+rel]
		if item.State != result.StateFetched {
			t.Errorf("%s state = %q, want fetched", rel, item.State)
		}
		if _, err := os.Stat(filepath.Join(root, host, rel)); err != nil {
			t.Errorf("expected mirrored file %s: %v", rel, err)
		}
	}
}

// TestSessionStaysOnSeedOrigin verifies that a server on another port of the
// same host is never crawled, so it cannot overwrite the seed's files.
func TestSessionStaysOnSeedOrigin(t *testing.T) {
	var otherHits atomic.Int32
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		otherHits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<p>other server</p>`)
	}))
	t.Cleanup(other.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<p>seed server</p><a href="%s/">other</a><a href="/local">local</a>`, other.URL)
	})
	mux.HandleFunc("/local", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "local")
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	root := t.TempDir()
	cfg := testConfig(ts.URL + "/")
	rep := mustRun(t, mustNewSession(t, cfg, mirror.NewDirWriter(root), nil))

	items := itemsByURL(rep)
	if _, ok := items[other.URL+"/"]; ok {
		t.Error("page on another port was enqueued")
	}
	if _, ok := items[ts.URL+"/local"]; !ok {
		t.Error("same-origin link missing")
	}
	if n := otherHits.Load(); n != 0 {
		t.Errorf("other server received %d requests, want 0", n)
	}

	data, err := os.ReadFile(filepath.Join(root, urlutil.Hostname(ts.URL), "index.html"))
	if err != nil {
		t.Fatalf("read seed file: %v", err)
	}
	if !strings.Contains(string(data), "seed server") {
		t.Errorf("index.html = %q, want the seed server's page", data)
	}
}

func TestSessionProgressEvents(t *testing.T) {
	ts := newTestServer(t)
	progress := make(chan crawler.Event, 64)

	rep := mustRun(t, mustNewSession(t, testConfig(ts.URL), mirror.NewDirWriter(t.TempDir()), progress))

	var events []crawler.Event
	for len(progress) > 0 {
		events = append(events, <-progress)
	}
	if len(events) != len(rep.Items) {
		t.Fatalf("got %d events, want one per item (%d)", len(events), len(rep.Items))
	}
	// Events are sent outside the session lock, so the cumulative counters
	// may arrive slightly out of order.
	var maxFetched int
	var maxWritten int64
	idle := false
	for _, evt := range events {
		maxFetched = max(maxFetched, evt.Fetched)
		maxWritten = max(maxWritten, evt.Written)
		if evt.InFlight == 0 {
			idle = true
		}
	}
	if maxFetched != rep.Stats.Fetched {
		t.Errorf("highest Fetched counter = %d, want %d", maxFetched, rep.Stats.Fetched)
	}
	if maxWritten != rep.Stats.Bytes {
		t.Errorf("highest Written counter = %d, want %d", maxWritten, rep.Stats.Bytes)
	}
	if !idle {
		t.Error("no event reported an idle session")
	}
}

func TestSessionPacing(t *testing.T) {
	ts := newTestServer(t)

	cfg := testConfig(ts.URL)
	cfg.Interval = 60 * time.Millisecond

	start := time.Now()
	rep := mustRun(t, mustNewSession(t, cfg, mirror.NewDirWriter(t.TempDir()), nil))
	elapsed := time.Since(start)

	// Three dispatches: the first is immediate, the other two wait an interval.
	if rep.Stats.Fetched != 3 {
		t.Fatalf("Fetched = %d, want 3", rep.Stats.Fetched)
	}
	if elapsed < 110*time.Millisecond {
		t.Errorf("sync took %v, want at least two 60ms intervals", elapsed)
	}
}

// TestSessionPacesRobotsFetch verifies that the robots.txt download takes
// its own pacing slot ahead of the seed.
func TestSessionPacesRobotsFetch(t *testing.T) {
	var (
		mu    sync.Mutex
		times = map[string]time.Time{}
	)
	record := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := times[path]; !ok {
			times[path] = time.Now()
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		record(r.URL.Path)
		fmt.Fprint(w, "User-agent: *\nAllow: /\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		record(r.URL.Path)
		fmt.Fprint(w, "seed")
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	cfg := testConfig(ts.URL + "/")
	cfg.Interval = 100 * time.Millisecond
	rep := mustRun(t, mustNewSession(t, cfg, mirror.NewDirWriter(t.TempDir()), nil))
	if rep.Stats.Fetched != 1 {
		t.Fatalf("Fetched = %d, want 1", rep.Stats.Fetched)
	}

	mu.Lock()
	defer mu.Unlock()
	robotsAt, ok := times["/robots.txt"]
	if !ok {
		t.Fatal("robots.txt was never requested")
	}
	seedAt, ok := times["/"]
	if !ok {
		t.Fatal("seed was never requested")
	}
	if gap := seedAt.Sub(robotsAt); gap < 90*time.Millisecond {
		t.Errorf("seed requested %v after robots.txt, want at least one 100ms interval", gap)
	}
}

func TestSessionBloomVisitedStore(t *testing.T) {
	ts := chainServer(t, 5)

	cfg := testConfig(ts.URL)
	cfg.MaxDepth = crawler.UnlimitedDepth
	cfg.VisitedStore = crawler.VisitedBloom

	rep := mustRun(t, mustNewSession(t, cfg, mirror.NewDirWriter(t.TempDir()), nil))

	if rep.Stats.Fetched != 6 {
		t.Errorf("Fetched = %d, want 6", rep.Stats.Fetched)
	}
}

func TestSessionUnknownVisitedStore(t *testing.T) {
	cfg := testConfig("http://example.com/")
	cfg.VisitedStore = "redis"
	if _, err := crawler.NewSession(cfg, mirror.NewDirWriter(t.TempDir()), nil); err == nil {
		t.Error("NewSession() with unknown visited store returned nil error")
	}
}

func TestStateString(t *testing.T) {
	tests := map[crawler.State]string{
		crawler.StateIdle:      "idle",
		crawler.StateRunning:   "running",
		crawler.StateCompleted: "completed",
		crawler.StateAborted:   "aborted",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
