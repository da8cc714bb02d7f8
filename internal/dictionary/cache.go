package dictionary

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	pkgredis "parasearch/pkg/redis"
)

const keyPrefix = "dict:"

// CachedDefiner wraps a Definer with a Redis-backed cache. Concurrent
// lookups of the same word are collapsed through singleflight so a cold word
// hits the upstream API once. Cache failures are invisible to callers; the
// lookup just goes upstream.
type CachedDefiner struct {
	upstream Definer
	client   *pkgredis.Client
	ttl      time.Duration
	group    singleflight.Group
	logger   *slog.Logger
	hits     atomic.Int64
	misses   atomic.Int64
}

// NewCachedDefiner creates a caching layer over upstream. A nil Redis client
// disables caching entirely.
func NewCachedDefiner(upstream Definer, client *pkgredis.Client, ttl time.Duration) *CachedDefiner {
	return &CachedDefiner{
		upstream: upstream,
		client:   client,
		ttl:      ttl,
		logger:   slog.Default().With("component", "definition-cache"),
	}
}

// Definitions returns the cached definitions for word, fetching and caching
// them on a miss.
func (d *CachedDefiner) Definitions(ctx context.Context, word string) ([]string, error) {
	if defs, ok := d.get(ctx, word); ok {
		d.hits.Add(1)
		return defs, nil
	}
	d.misses.Add(1)

	val, err, _ := d.group.Do(word, func() (interface{}, error) {
		if defs, ok := d.get(ctx, word); ok {
			return defs, nil
		}
		defs, err := d.upstream.Definitions(ctx, word)
		if err != nil {
			return nil, err
		}
		d.set(ctx, word, defs)
		return defs, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]string), nil
}

// Stats returns cache hit and miss counts.
func (d *CachedDefiner) Stats() (hits, misses int64) {
	return d.hits.Load(), d.misses.Load()
}

func (d *CachedDefiner) get(ctx context.Context, word string) ([]string, bool) {
	if d.client == nil {
		return nil, false
	}
	data, err := d.client.Get(ctx, keyPrefix+word)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			d.logger.Warn("definition cache get failed", "word", word, "error", err)
		}
		return nil, false
	}
	var defs []string
	if err := json.Unmarshal([]byte(data), &defs); err != nil {
		d.logger.Warn("definition cache unmarshal failed", "word", word, "error", err)
		return nil, false
	}
	return defs, true
}

func (d *CachedDefiner) set(ctx context.Context, word string, defs []string) {
	if d.client == nil {
		return
	}
	data, err := json.Marshal(defs)
	if err != nil {
		d.logger.Warn("definition cache marshal failed", "word", word, "error", err)
		return
	}
	if err := d.client.Set(ctx, keyPrefix+word, data, d.ttl); err != nil {
		d.logger.Warn("definition cache set failed", "word", word, "error", err)
	}
}
