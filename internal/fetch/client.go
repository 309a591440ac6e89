// Package fetch is the outbound HTTP client for script downloads and
// reporting notifications.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultMaxScriptBytes = 1 << 20
	defaultClientTimeout  = 10 * time.Second
)

type Options struct {
	HTTPClient     *http.Client
	CacheTTL       time.Duration
	MaxScriptBytes int64
}

type cached struct {
	body    string
	expires time.Time
}

// Client downloads scripts, optionally caching them, and sends reporting
// GETs. Concurrent downloads of the same uri share one request.
type Client struct {
	http     *http.Client
	ttl      time.Duration
	maxBytes int64
	group    singleflight.Group

	mu    sync.RWMutex
	cache map[string]cached
}

func New(o Options) *Client {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: defaultClientTimeout}
	}
	if o.HTTPClient.Timeout <= 0 {
		// shared downloads outlive their callers, so they need a bound
		bounded := *o.HTTPClient
		bounded.Timeout = defaultClientTimeout
		o.HTTPClient = &bounded
	}
	if o.MaxScriptBytes <= 0 {
		o.MaxScriptBytes = defaultMaxScriptBytes
	}
	return &Client{
		http:     o.HTTPClient,
		ttl:      o.CacheTTL,
		maxBytes: o.MaxScriptBytes,
		cache:    map[string]cached{},
	}
}

// FetchScript returns the body served at uri. Callers asking for the same
// uri with the same caching choice share one download. The download runs
// detached from any single caller and is bounded by the client timeout; each
// caller still gives up when its own ctx ends.
func (c *Client) FetchScript(ctx context.Context, uri string, useCache bool) (string, error) {
	if useCache {
		if body, ok := c.lookup(uri); ok {
			return body, nil
		}
	}
	key := "nocache:" + uri
	if useCache {
		key = "cache:" + uri
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		body, err := c.get(shared, uri)
		if err != nil {
			return "", err
		}
		if useCache && c.ttl > 0 {
			c.mu.Lock()
			c.cache[uri] = cached{body: body, expires: time.Now().Add(c.ttl)}
			c.mu.Unlock()
		}
		return body, nil
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("fetching %s: %w", uri, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		log.Debug().Str("uri", uri).Bool("shared", res.Shared).Msg("script fetched")
		return res.Val.(string), nil
	}
}

func (c *Client) lookup(uri string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.cache[uri]
	if !ok || time.Now().After(e.expires) {
		return "", false
	}
	return e.body, true
}

func (c *Client) get(ctx context.Context, uri string) (string, error) {
	resp, err := c.do(ctx, uri)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", uri, err)
	}
	if int64(len(b)) > c.maxBytes {
		return "", fmt.Errorf("script at %s exceeds %d bytes", uri, c.maxBytes)
	}
	return string(b), nil
}

// Notify issues a GET to uri and discards the body.
func (c *Client) Notify(ctx context.Context, uri string) error {
	resp, err := c.do(ctx, uri)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBytes))
	return nil
}

func (c *Client) do(ctx context.Context, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", uri, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", uri, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %d", uri, resp.StatusCode)
	}
	return resp, nil
}
