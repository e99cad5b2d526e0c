// Package fetch downloads US Code release files with rate limiting and a
// persistent disk cache. The house.gov distribution serves each title as a
// single-file ZIP archive; Fetch transparently unwraps those so callers
// always receive the XML payload itself.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUserAgent is the default User-Agent header sent with requests.
const DefaultUserAgent = "uscingest/1.0"

// maxBodySize caps a single download. The largest USC title is well under
// this, so anything bigger is a server fault, not data.
const maxBodySize = 512 << 20

// Config holds configuration for a Client.
type Config struct {
	// CacheDir is the directory for the disk cache. Empty disables caching.
	CacheDir string

	// CacheTTL is the time-to-live for cached downloads.
	// Default: 24 hours.
	CacheTTL time.Duration

	// RateLimit is the minimum interval between HTTP requests.
	// Default: 1 second.
	RateLimit time.Duration

	// HTTPClient is the underlying HTTP client used for requests.
	// If nil, http.DefaultClient is used (wrapped with rate limiting).
	HTTPClient HTTPClient

	// UserAgent is the User-Agent header sent with requests.
	// Default: "uscingest/1.0".
	UserAgent string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:  DefaultCacheTTL,
		RateLimit: DefaultRequestInterval,
		UserAgent: DefaultUserAgent,
	}
}

// Client downloads documents with rate limiting and optional disk caching.
type Client struct {
	httpClient  HTTPClient
	rateLimited *RateLimitedHTTPClient
	cache       *DiskCache
	userAgent   string
}

// NewClient creates a Client from the given configuration.
func NewClient(config Config) (*Client, error) {
	underlying := config.HTTPClient
	if underlying == nil {
		underlying = http.DefaultClient
	}

	rateLimit := config.RateLimit
	if rateLimit <= 0 {
		rateLimit = DefaultRequestInterval
	}
	rateLimited := NewRateLimitedHTTPClient(underlying, rateLimit)

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	client := &Client{
		httpClient:  rateLimited,
		rateLimited: rateLimited,
		userAgent:   userAgent,
	}

	if config.CacheDir != "" {
		cacheTTL := config.CacheTTL
		if cacheTTL <= 0 {
			cacheTTL = DefaultCacheTTL
		}
		cache, err := NewDiskCache(config.CacheDir, cacheTTL)
		if err != nil {
			return nil, err
		}
		client.cache = cache
	}

	return client, nil
}

// Fetch downloads the document at url, consulting the cache first. ZIP
// payloads are unwrapped to their contained file before caching, so cache
// hits and misses return the same bytes.
func (client *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if client.cache != nil {
		if doc, ok := client.cache.Get(url); ok {
			return doc.Body, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", client.userAgent)

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	body, err = unwrapZip(body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	if client.cache != nil {
		doc := Document{URL: url, Body: body, RetrievedAt: time.Now()}
		if err := client.cache.Set(url, doc); err != nil {
			return nil, fmt.Errorf("failed to cache %s: %w", url, err)
		}
	}

	return body, nil
}

// Close releases the client's rate limiter resources.
func (client *Client) Close() {
	client.rateLimited.Close()
}
