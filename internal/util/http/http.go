// Package http fetches remote artwork.
package http

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmylchreest/backdrop/internal/security"
	"github.com/jmylchreest/backdrop/internal/version"
)

const (
	// UserAgentName is the product token sent in User-Agent.
	UserAgentName = "backdrop"

	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 16 << 20
)

// FetchOptions configures a Client.
type FetchOptions struct {
	// Timeout bounds one request. Ignored when Client is set.
	Timeout time.Duration

	// MaxBytes caps the response body.
	MaxBytes int64

	Headers map[string]string

	// ImageOnly rejects responses whose Content-Type is not image/*.
	ImageOnly bool

	// Rate limits requests per second; zero means unlimited. Burst defaults
	// to 1.
	Rate  rate.Limit
	Burst int

	Client *http.Client
}

// Client performs GET requests with a body cap and an optional rate limit.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	maxBytes  int64
	headers   map[string]string
	imageOnly bool
}

// NewClient builds a Client from opts.
func NewClient(opts FetchOptions) *Client {
	c := &Client{
		http:      opts.Client,
		maxBytes:  opts.MaxBytes,
		headers:   opts.Headers,
		imageOnly: opts.ImageOnly,
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.maxBytes <= 0 {
		c.maxBytes = DefaultMaxBytes
	}
	if opts.Rate > 0 {
		c.limiter = rate.NewLimiter(opts.Rate, max(opts.Burst, 1))
	}
	return c
}

// UserAgent returns the User-Agent header value.
func UserAgent() string {
	return UserAgentName + "/" + version.Version
}

// Get fetches url and returns the body with its media type.
func (c *Client) Get(ctx context.Context, url string) ([]byte, string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", fmt.Errorf("rate limited: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent())
	if c.imageOnly {
		req.Header.Set("Accept", "image/*")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if c.imageOnly && mediaType != "" && !isImage(mediaType) {
		return nil, mediaType, fmt.Errorf("unexpected content type %s", mediaType)
	}
	if resp.ContentLength > c.maxBytes {
		return nil, mediaType, fmt.Errorf("response of %d bytes: %w", resp.ContentLength, security.ErrSizeLimit)
	}

	data, err := io.ReadAll(security.NewLimitedReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, mediaType, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, mediaType, nil
}

// Fetch is a one-off Get with a fresh Client.
func Fetch(ctx context.Context, url string, opts FetchOptions) ([]byte, error) {
	data, _, err := NewClient(opts).Get(ctx, url)
	return data, err
}

func isImage(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/")
}
