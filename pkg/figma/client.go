// Package figma provides HTTP access to the Figma REST API for reading a
// file's published styles, with a short-lived cache keyed by file key.
package figma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultBaseURL = "https://api.figma.com"

// stylePageSize is the page size requested from the styles endpoint.
const stylePageSize = 100

// Sentinel errors for Figma API failures. Auth and not-found are fatal to a
// token-extraction run; rate limiting surfaces to the transport layer.
var (
	ErrAuth      = errors.New("figma: access token rejected")
	ErrNotFound  = errors.New("figma: file not found")
	ErrRateLimit = errors.New("figma: rate limited")
)

// Style is one published style from a Figma file.
type Style struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	StyleType string `json:"style_type"` // FILL, TEXT, EFFECT, GRID
	// Description may carry the resolved value ("#3B82F6", "16px") when the
	// design system annotates styles; empty otherwise.
	Description string `json:"description"`
}

// Client provides access to the Figma REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      *Cache
}

// NewClient creates a Figma API client with the given style cache TTL.
func NewClient(cacheTTL time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		cache:      NewCache(cacheTTL),
	}
}

// SetBaseURL overrides the API host (tests).
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// stylesResponse is the shape of GET /v1/files/:key/styles.
type stylesResponse struct {
	Meta struct {
		Styles []Style `json:"styles"`
	} `json:"meta"`
	// Cursor-based pagination.
	Pagination struct {
		NextPage string `json:"next_page"`
	} `json:"pagination"`
	Error   bool   `json:"error"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// FileStyles returns all published styles of a file, paginating until the
// cursor is exhausted. Results are cached by file key; a cache hit performs
// no network I/O.
func (c *Client) FileStyles(ctx context.Context, fileKey, accessToken string) ([]Style, error) {
	if styles, ok := c.cache.Get(fileKey); ok {
		return styles, nil
	}

	var all []Style
	cursor := ""
	for {
		page, next, err := c.fetchStylesPage(ctx, fileKey, accessToken, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		cursor = next
	}

	c.cache.Set(fileKey, all)
	return all, nil
}

func (c *Client) fetchStylesPage(ctx context.Context, fileKey, accessToken, cursor string) ([]Style, string, error) {
	endpoint := fmt.Sprintf("%s/v1/files/%s/styles?page_size=%d", c.baseURL, url.PathEscape(fileKey), stylePageSize)
	if cursor != "" {
		endpoint += "&cursor=" + url.QueryEscape(cursor)
	}

	var styles []Style
	var next string

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("X-Figma-Token", accessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch styles for %s: %w", fileKey, err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			// fall through to decode
		case http.StatusForbidden, http.StatusUnauthorized:
			return backoff.Permanent(fmt.Errorf("%w (HTTP %d)", ErrAuth, resp.StatusCode))
		case http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, fileKey))
		case http.StatusTooManyRequests:
			return backoff.Permanent(fmt.Errorf("%w (Retry-After: %s)", ErrRateLimit, resp.Header.Get("Retry-After")))
		default:
			if resp.StatusCode >= 500 {
				return fmt.Errorf("figma returned HTTP %d", resp.StatusCode)
			}
			return backoff.Permanent(fmt.Errorf("figma returned HTTP %d", resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		var parsed stylesResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode styles response: %w", err))
		}
		styles = parsed.Meta.Styles
		next = parsed.Pagination.NextPage
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 8 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx)); err != nil {
		return nil, "", err
	}
	return styles, next, nil
}

// ParseFileKey extracts the file key from a Figma URL
// (https://www.figma.com/design/<key>/<name>) or returns the input untouched
// when it is already a bare key.
func ParseFileKey(ref string) (string, error) {
	if !strings.Contains(ref, "/") {
		if ref == "" {
			return "", fmt.Errorf("empty figma file reference")
		}
		return ref, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse figma URL: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// /design/<key>/... or /file/<key>/...
	for i, p := range parts {
		if (p == "design" || p == "file") && i+1 < len(parts) {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("no file key in figma URL %q", ref)
}
