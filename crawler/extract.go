package crawler

import (
	"fmt"
	"io"
	"net/url"

	"golang.org/x/net/html"

	"github.com/lukemcguire/linksync/urlutil"
)

// linkAttrs maps each element that references another resource to the
// attribute holding the reference.
var linkAttrs = map[string]string{
	"a":      "href",
	"area":   "href",
	"link":   "href",
	"img":    "src",
	"script": "src",
	"iframe": "src",
	"source": "src",
	"embed":  "src",
}

// ExtractLinks parses HTML from the given reader and extracts every
// referenced resource: anchors, stylesheets, images, scripts and frames.
// It resolves relative URLs against baseURL (or the document's <base href>),
// filters non-HTTP schemes, normalizes each URL, and returns a deduplicated
// list of absolute URLs in document order.
func ExtractLinks(body io.Reader, baseURL *url.URL) ([]string, error) {
	tokenizer := html.NewTokenizer(body)
	seen := make(map[string]bool)
	links := []string{}
	var errs []error
	base := baseURL
	baseSet := false

	for {
		tokenType := tokenizer.Next()
		switch tokenType {
		case html.ErrorToken:
			// End of document or error
			if len(errs) > 0 {
				return links, fmt.Errorf("encountered %d parse errors (first: %w)", len(errs), errs[0])
			}
			return links, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()

			// The first <base href> replaces the document URL for resolution
			if token.Data == "base" && !baseSet {
				if href, ok := attrValue(token, "href"); ok && href != "" {
					if ref, err := url.Parse(href); err == nil {
						base = baseURL.ResolveReference(ref)
						baseSet = true
					}
				}
				continue
			}

			// Only elements that reference another resource
			key, tracked := linkAttrs[token.Data]
			if !tracked {
				continue
			}
			ref, ok := attrValue(token, key)
			if !ok {
				continue
			}
			if ref == "" {
				// Empty reference points to current page
				ref = base.String()
			}

			// Resolve relative URL against base
			refURL, err := url.Parse(ref)
			if err != nil {
				errs = append(errs, fmt.Errorf("parse %s %q: %w", key, ref, err))
				continue
			}
			resolved := base.ResolveReference(refURL).String()

			// Filter non-HTTP schemes
			if !urlutil.IsHTTPScheme(resolved) {
				continue
			}

			// Normalize the URL
			normalized, err := urlutil.Normalize(resolved)
			if err != nil {
				errs = append(errs, err)
				continue
			}

			// Deduplicate
			if !seen[normalized] {
				seen[normalized] = true
				links = append(links, normalized)
			}
		}
	}
}

func attrValue(token html.Token, key string) (string, bool) {
	for _, attr := range token.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
