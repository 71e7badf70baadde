// Package cache memoizes ranked result lists in Redis. Keys bind the query,
// the limit and the haystack fingerprint, so a reload never serves stale
// rankings even before invalidation runs.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/matcher/dispatcher"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/resilience"
)

const keyPrefix = "fuzzy:"

// Backend is the key-value store behind the cache. *pkgredis.Client
// satisfies it; Get must return an error for which pkgredis.IsNilError is
// true on a miss.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Entry is what gets cached for one (query, limit, haystack) triple.
type Entry struct {
	Results      []dispatcher.Result `json:"results"`
	TotalMatches int                 `json:"total_matches"`
	Scanned      int                 `json:"scanned"`
}

type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Errors  int64  `json:"errors"`
	Breaker string `json:"breaker"`
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
}

// New wraps backend. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		breaker: resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			OnStateChange: func(name string, _, to resilience.State) {
				if m != nil {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		}),
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Key derives the cache key. The query is used verbatim: case and spaces
// change scores, so they must change the key.
func Key(query string, limit int, fingerprint uint64) string {
	d := xxhash.New()
	d.WriteString(strconv.Itoa(len(query)))
	d.WriteString(":")
	d.WriteString(query)
	d.WriteString("|")
	d.WriteString(strconv.Itoa(limit))
	return fmt.Sprintf("%s%016x:%016x", keyPrefix, fingerprint, d.Sum64())
}

// Get looks up key. Backend failures count as misses.
func (c *QueryCache) Get(ctx context.Context, key string) (*Entry, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		return err
	}, pkgredis.IsNilError)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.errors.Add(1)
			c.logger.Debug("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &entry, true
}

func (c *QueryCache) Set(ctx context.Context, key string, entry *Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	}); err != nil {
		c.errors.Add(1)
		c.logger.Debug("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached entry for key or runs compute once for all
// concurrent callers asking for the same key. The bool reports a cache hit.
//
// compute runs detached from the cancellation of whichever caller started
// it, so one client going away does not fail the others waiting on the same
// key; compute applies its own deadline. A caller whose ctx ends stops
// waiting and gets ctx.Err().
func (c *QueryCache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (*Entry, error)) (*Entry, bool, error) {
	if entry, ok := c.Get(ctx, key); ok {
		return entry, true, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		entry, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, key, entry)
		return entry, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*Entry), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Invalidate drops every cached ranking.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errors.Load(),
		Breaker: c.breaker.GetState().String(),
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
