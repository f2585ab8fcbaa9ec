package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// IndexFile is the file name a directory URL is stored under.
const IndexFile = "index.html"

// LocalPath maps an absolute URL to the relative file path its mirrored copy
// is stored at: <host>/<path>. Query and fragment are ignored.
//
// An empty path or "/" maps to /index.html, as does any path ending in "/".
// The path is cleaned so ".." segments cannot climb above the host directory.
// The result uses the OS path separator.
func LocalPath(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("map URL %q: %w: %w", rawURL, ErrInvalidURL, err)
	}
	host := strings.ToLower(parsed.Hostname())
	if parsed.Scheme == "" || host == "" {
		return "", fmt.Errorf("map URL %q: %w: missing scheme or host", rawURL, ErrInvalidURL)
	}

	p := parsed.Path
	switch {
	case p == "" || p == "/":
		p = "/" + IndexFile
	case strings.HasSuffix(p, "/"):
		p += IndexFile
	}

	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" {
		cleaned = IndexFile
	}

	return filepath.Join(host, filepath.FromSlash(cleaned)), nil
}
