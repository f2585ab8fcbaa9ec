// Package linkstore is a read-only client for the LinkSync REST API that
// stores the links a mirror is seeded from.
package linkstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single link store request.
const DefaultTimeout = 10 * time.Second

// ID is a link identifier. The API serves numeric ids; string ids are
// accepted as well.
type ID string

// UnmarshalJSON accepts both JSON numbers and strings.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode link id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode link id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Link is a stored bookmark.
type Link struct {
	ID          ID     `json:"id" yaml:"id"`
	URL         string `json:"url" yaml:"url"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Client talks to the link store API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the API rooted at baseURL, for example
// http://localhost:5979/api. A nil logger discards output.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  logger,
	}
}

// GetLink fetches the link with the given id.
func (c *Client) GetLink(ctx context.Context, id string) (Link, error) {
	var link Link
	if err := c.get(ctx, "/links/"+url.PathEscape(id), &link); err != nil {
		return Link{}, fmt.Errorf("get link %s: %w", id, err)
	}
	return link, nil
}

// ListLinks fetches every stored link.
func (c *Client) ListLinks(ctx context.Context) ([]Link, error) {
	links := []Link{}
	if err := c.get(ctx, "/links", &links); err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("link store request failed", "url", endpoint, "error", err)
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("link store response",
		"url", endpoint,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrLinkNotFound
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
