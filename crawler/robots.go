package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsBodyLimit caps how much of a robots.txt file is read.
const robotsBodyLimit = 512 << 10

// cachedRobots stores parsed robots.txt data with fetch timestamp.
// A nil group means allow-all.
type cachedRobots struct {
	group     *robotstxt.Group
	fetchedAt time.Time
}

// RobotsChecker fetches and caches robots.txt rules per host for one user
// agent. Any failure to obtain the rules allows everything.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	cache     sync.Map // host string -> *cachedRobots
	cacheTTL  time.Duration
}

// NewRobotsChecker creates a RobotsChecker that evaluates rules for userAgent.
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		cacheTTL:  time.Hour,
	}
}

// Allowed reports whether rawURL may be fetched. A non-nil error explains
// why the rules could not be read; the URL is then allowed.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) (bool, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return true, fmt.Errorf("parse URL: %w", err)
	}

	host := parsedURL.Host
	if host == "" {
		return true, nil
	}

	path := parsedURL.EscapedPath()
	if parsedURL.RawQuery != "" {
		path += "?" + parsedURL.RawQuery
	}

	if cached, ok := r.cache.Load(host); ok {
		entry, valid := cached.(*cachedRobots)
		if valid && time.Since(entry.fetchedAt) < r.cacheTTL {
			return entry.allows(path), nil
		}
		r.cache.Delete(host)
	}

	group, err := r.fetch(ctx, parsedURL.Scheme, host)
	entry := &cachedRobots{group: group, fetchedAt: time.Now()}
	r.cache.Store(host, entry)
	return entry.allows(path), err
}

func (c *cachedRobots) allows(path string) bool {
	return c.group == nil || c.group.Test(path)
}

// fetch downloads and parses robots.txt for host. A nil group with a nil
// error means the host publishes no usable rules (404, 5xx).
func (r *RobotsChecker) fetch(ctx context.Context, scheme, host string) (*robotstxt.Group, error) {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create robots.txt request for host %s: %w", host, err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt for host %s: %w", host, err)
	}
	defer resp.Body.Close()

	// 404: robots.txt doesn't exist; 5xx: fail open
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode >= 500 {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt body for host %s: %w", host, err)
	}

	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt for host %s: %w", host, err)
	}
	return robots.FindGroup(r.userAgent), nil
}
