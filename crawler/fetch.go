package crawler

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/lukemcguire/linksync/urlutil"
)

// maxRedirects matches net/http's default redirect limit.
const maxRedirects = 10

var (
	// ErrBodyTooLarge is returned when a response body exceeds Config.MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrDisallowed is returned for URLs that robots.txt forbids.
	ErrDisallowed = errors.New("disallowed by robots.txt")

	// ErrRedirectLoop is returned when a URL redirects more than maxRedirects times.
	ErrRedirectLoop = errors.New("too many redirects")
)

// FetchError describes a failed fetch: a non-2xx status, a network error or
// an unacceptable body. StatusCode is 0 when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchResult is the outcome of fetching one URL.
type FetchResult struct {
	URL         string        // Requested URL
	FinalURL    string        // URL after same-origin redirects
	StatusCode  int           // HTTP status (0 if unreachable)
	ContentType string        // Response Content-Type header
	Body        []byte        // Payload, nil on error
	Links       []string      // Same-origin links found in an HTML payload
	RTT         time.Duration // Time to response headers
	Attempts    int           // Requests made, retries included
	Err         error         // *FetchError on failure
}

// Fetcher performs single GETs against one seed origin.
type Fetcher struct {
	client    *http.Client
	origin    string
	userAgent string
	timeout   time.Duration
	maxBody   int64
	logger    *slog.Logger
}

// NewFetcher creates a Fetcher for pages of origin, as returned by
// urlutil.Origin. Redirects to other origins are not followed.
func NewFetcher(cfg Config, origin string) *Fetcher {
	cfg = cfg.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.Concurrency
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // mirrors self-signed intranet sites by default
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return ErrRedirectLoop
			}
			if !urlutil.SameOrigin(req.URL.String(), origin) {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &Fetcher{
		client:    client,
		origin:    origin,
		userAgent: cfg.UserAgent,
		timeout:   cfg.RequestTimeout,
		maxBody:   cfg.MaxBodyBytes,
		logger:    cfg.Logger,
	}
}

// Client returns the HTTP client used for fetches.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Close releases idle connections.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}

// Fetch issues a single GET for rawURL bounded by the per-request timeout.
// A non-2xx status, a transport error or an oversized body yields a
// *FetchError in the result. HTML payloads are scanned for same-origin links.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (res FetchResult) {
	res.URL = rawURL
	res.FinalURL = rawURL
	res.Attempts = 1

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		res.Err = &FetchError{URL: rawURL, Err: err}
		return res
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	res.RTT = time.Since(start)
	if err != nil {
		res.Err = &FetchError{URL: rawURL, Err: err}
		return res
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Debug("close response body", "url", rawURL, "error", closeErr)
		}
	}()

	res.StatusCode = resp.StatusCode
	res.ContentType = resp.Header.Get("Content-Type")
	if resp.Request != nil && resp.Request.URL != nil {
		res.FinalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
		return res
	}

	body, err := f.readBody(resp.Body)
	if err != nil {
		res.Err = &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
		return res
	}
	res.Body = body

	if isHTML(res.ContentType, body) {
		res.Links = f.sameOriginLinks(body, resp)
	}
	return res
}

// readBody reads the whole payload, refusing bodies over maxBody.
func (f *Fetcher) readBody(body io.Reader) ([]byte, error) {
	if f.maxBody <= 0 {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.maxBody {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, f.maxBody)
	}
	return data, nil
}

func (f *Fetcher) sameOriginLinks(body []byte, resp *http.Response) []string {
	links, err := ExtractLinks(bytes.NewReader(body), resp.Request.URL)
	if err != nil {
		f.logger.Debug("extract links", "url", resp.Request.URL.String(), "error", err)
	}

	kept := links[:0]
	for _, link := range links {
		if urlutil.SameOrigin(link, f.origin) {
			kept = append(kept, link)
		}
	}
	return kept
}

// isHTML reports whether a payload should be scanned for links. The
// Content-Type header decides; without one the payload is sniffed.
func isHTML(contentType string, body []byte) bool {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
