package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/matzehuels/depsync/pkg/cache"
	"github.com/matzehuels/depsync/pkg/errors"
)

// CratesClient resolves crate versions against the crates.io API.
//
// All methods are safe for concurrent use by multiple goroutines.
type CratesClient struct {
	*client
	baseURL string
}

// Options configures a CratesClient.
type Options struct {
	// Cache is the backend for response caching. Nil disables caching.
	Cache cache.Cache
	// TTL is how long responses stay cached. Zero means DefaultTTL.
	TTL time.Duration
	// Refresh bypasses the cache and always hits the API.
	Refresh bool
	// BaseURL overrides the crates.io endpoint (used in tests).
	BaseURL string
}

// NewCratesClient creates a crates.io client.
func NewCratesClient(opts Options) *CratesClient {
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	base := opts.BaseURL
	if base == "" {
		base = "https://crates.io/api/v1"
	}
	return &CratesClient{
		client:  newClient(opts.Cache, ttl, opts.Refresh),
		baseURL: strings.TrimSuffix(base, "/"),
	}
}

type crateResponse struct {
	Crate struct {
		Name       string `json:"name"`
		MaxVersion string `json:"max_version"`
	} `json:"crate"`
	Versions []struct {
		Num    string `json:"num"`
		Yanked bool   `json:"yanked"`
	} `json:"versions"`
}

// LatestVersion returns the highest non-yanked stable version of the named
// crate, e.g. "1.0.193". Pre-releases are only considered when no stable
// version exists.
//
// Returns an error with code [errors.ErrCodeCrateNotFound] if the crate is
// not published on crates.io, and [errors.ErrCodeNetwork] for transport
// failures after retries are exhausted.
func (c *CratesClient) LatestVersion(ctx context.Context, name string) (string, error) {
	var resp crateResponse
	url := fmt.Sprintf("%s/crates/%s", c.baseURL, name)
	if err := c.getJSON(ctx, "crates:"+name, url, &resp); err != nil {
		return "", err
	}

	var best, bestPre string
	for _, v := range resp.Versions {
		if v.Yanked {
			continue
		}
		canon := "v" + v.Num
		if !semver.IsValid(canon) {
			continue
		}
		if semver.Prerelease(canon) != "" {
			if bestPre == "" || semver.Compare(canon, "v"+bestPre) > 0 {
				bestPre = v.Num
			}
			continue
		}
		if best == "" || semver.Compare(canon, "v"+best) > 0 {
			best = v.Num
		}
	}

	switch {
	case best != "":
		return best, nil
	case bestPre != "":
		return bestPre, nil
	case resp.Crate.MaxVersion != "" && resp.Crate.MaxVersion != "0.0.0":
		return resp.Crate.MaxVersion, nil
	}
	return "", errors.New(errors.ErrCodeCrateNotFound, "no usable versions for %s", name)
}
