// Package urlutil normalizes, filters and maps crawl URLs.
package urlutil

import (
	"net"
	"net/url"
	"strings"
)

// Origin returns the scheme, hostname and effective port of rawURL as
// "scheme://host:port", lowercased. The default port is filled in for http
// and https so that "http://a" and "http://a:80" share an origin. It returns
// the empty string for URLs without a scheme or host.
func Origin(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Hostname() == "" {
		return ""
	}
	scheme := strings.ToLower(parsed.Scheme)
	// Fill in the scheme's default port
	port := parsed.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return scheme + "://" + net.JoinHostPort(strings.ToLower(parsed.Hostname()), port)
}

// SameOrigin reports whether targetURL is served from origin, a value
// returned by Origin. Subdomains, other ports and other schemes are
// different origins: a mirror never leaves the seed's origin.
func SameOrigin(targetURL string, origin string) bool {
	got := Origin(targetURL)
	return got != "" && got == origin
}

// IsHTTPScheme returns true if the URL has an http or https scheme.
// Returns false for empty strings, non-HTTP schemes, or unparseable URLs.
func IsHTTPScheme(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}

// Hostname returns the lowercased hostname (without port) of rawURL, or the
// empty string if it cannot be parsed.
func Hostname(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
