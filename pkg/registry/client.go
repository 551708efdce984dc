// Package registry provides the crates.io client used for version
// resolution.
//
// The only operation the reconciler needs is "latest stable version of
// crate X". Responses are cached through [cache.Cache] so repeated runs
// don't hammer the registry, and transient failures are retried with
// exponential backoff.
//
// crates.io requires a User-Agent header identifying the tool; the client
// sets one automatically.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matzehuels/depsync/pkg/cache"
	"github.com/matzehuels/depsync/pkg/errors"
)

// DefaultTTL is how long registry responses are cached.
const DefaultTTL = 24 * time.Hour

const userAgent = "depsync/1.0 (https://github.com/matzehuels/depsync)"

// client wraps an HTTP client with caching and retry behavior shared by
// all registry calls.
type client struct {
	http    *http.Client
	cache   cache.Cache
	ttl     time.Duration
	refresh bool
}

func newClient(backend cache.Cache, ttl time.Duration, refresh bool) *client {
	if backend == nil {
		backend = cache.NewNullCache()
	}
	return &client{
		http:    &http.Client{Timeout: 30 * time.Second},
		cache:   backend,
		ttl:     ttl,
		refresh: refresh,
	}
}

// getJSON fetches url and decodes the response body into v, consulting the
// cache first unless the client was created with refresh set.
func (c *client) getJSON(ctx context.Context, key, url string, v any) error {
	if !c.refresh {
		if data, hit, _ := c.cache.Get(ctx, key); hit {
			return json.Unmarshal(data, v)
		}
	}

	var body []byte
	err := retry(ctx, 3, time.Second, func() error {
		var err error
		body, err = c.fetch(ctx, url)
		return err
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "decode response from %s", url)
	}
	_ = c.cache.Set(ctx, key, body, c.ttl)
	return nil
}

func (c *client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &retryableError{err: errors.Wrap(errors.ErrCodeNetwork, err, "fetch %s", url)}
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode, url); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func checkStatus(code int, url string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return errors.New(errors.ErrCodeCrateNotFound, "not found: %s", url)
	case code >= 500:
		return &retryableError{err: errors.New(errors.ErrCodeNetwork, "status %d from %s", code, url)}
	default:
		return errors.New(errors.ErrCodeNetwork, fmt.Sprintf("status %d from %s", code, url))
	}
}
