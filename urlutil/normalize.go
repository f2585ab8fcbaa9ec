package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when a URL cannot be parsed or lacks a scheme or host.
var ErrInvalidURL = errors.New("invalid URL")

// Normalize takes a raw URL string and returns a normalized version.
// Normalization includes:
// - Lowercasing the scheme and host
// - Stripping fragments (#section)
// - Replacing an empty path with "/" so "http://host" and "http://host/" dedup
// - Preserving query parameters and trailing slashes
//
// Trailing slashes are kept: a mirror maps "/docs/" to a directory index and
// "/docs" to a file.
//
// Returns an error wrapping ErrInvalidURL if the input is empty or cannot be
// parsed as an absolute URL.
func Normalize(rawURL string) (string, error) {
	// Empty string is invalid
	if rawURL == "" {
		return "", fmt.Errorf("normalize empty URL: %w", ErrInvalidURL)
	}

	// Parse the URL
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize URL %q: %w: %w", rawURL, ErrInvalidURL, err)
	}

	// Validate that we have at least a scheme and host
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("normalize URL %q: %w: missing scheme or host", rawURL, ErrInvalidURL)
	}

	// Lowercase the scheme and host
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	// Strip the fragment
	parsed.Fragment = ""
	parsed.RawFragment = ""

	// An empty path is the root path
	if parsed.Path == "" {
		parsed.Path = "/"
		parsed.RawPath = ""
	}

	// Return the normalized URL string
	return parsed.String(), nil
}
