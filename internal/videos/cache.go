package videos

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachingExtractor wraps another Extractor with a bounded TTL cache of probe
// results. Downloads are never cached.
type CachingExtractor struct {
	base  Extractor
	ttl   time.Duration
	cache *expirable.LRU[string, Metadata]
}

// NewCachingExtractor returns an Extractor that caches probes for ttl, keeping
// at most size entries.
func NewCachingExtractor(base Extractor, size int, ttl time.Duration) *CachingExtractor {
	if size <= 0 {
		size = 128
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingExtractor{
		base:  base,
		ttl:   ttl,
		cache: expirable.NewLRU[string, Metadata](size, nil, ttl),
	}
}

// Probe returns cached metadata when available, otherwise it delegates to the
// underlying extractor and stores the result. Failures are not cached.
func (c *CachingExtractor) Probe(ctx context.Context, url string) (Metadata, error) {
	if c == nil || c.base == nil {
		return Metadata{}, ErrProviderUnavailable
	}

	if meta, ok := c.cache.Get(url); ok {
		return meta, nil
	}

	meta, err := c.base.Probe(ctx, url)
	if err != nil {
		return Metadata{}, err
	}

	c.cache.Add(url, meta)
	return meta, nil
}

// Download delegates to the underlying extractor.
func (c *CachingExtractor) Download(ctx context.Context, url string, target DownloadTarget) (string, error) {
	if c == nil || c.base == nil {
		return "", ErrProviderUnavailable
	}
	return c.base.Download(ctx, url, target)
}

var _ Extractor = (*CachingExtractor)(nil)
