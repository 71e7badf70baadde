package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/kafka"
)

// latencyWindow bounds the samples kept for percentiles.
const latencyWindow = 10000

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroMatchCount    int64        `json:"zero_match_count"`
	CandidatesScanned int64        `json:"candidates_scanned"`
	ScalarSearches    int64        `json:"scalar_searches"`
	AvgLatencyUs      float64      `json:"avg_latency_us"`
	P50LatencyUs      int64        `json:"p50_latency_us"`
	P95LatencyUs      int64        `json:"p95_latency_us"`
	P99LatencyUs      int64        `json:"p99_latency_us"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroMatchQueries  []QueryCount `json:"zero_match_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	Since             time.Time    `json:"since"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search events into running statistics.
type Aggregator struct {
	mu             sync.Mutex
	totals         AggregatedStats
	latencies      []int64
	next           int
	queryCounts    map[string]int64
	zeroMatchCount map[string]int64
	startTime      time.Time
	now            func() time.Time
	logger         *slog.Logger
}

func NewAggregator() *Aggregator {
	now := time.Now()
	return &Aggregator{
		latencies:      make([]int64, 0, 1024),
		queryCounts:    make(map[string]int64),
		zeroMatchCount: make(map[string]int64),
		startTime:      now,
		now:            time.Now,
		logger:         slog.Default().With("component", "analytics-aggregator"),
	}
}

// Track records event; it makes the Aggregator a Tracker for deployments
// without Kafka.
func (a *Aggregator) Track(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totals.TotalSearches++
	a.totals.CandidatesScanned += int64(event.Scanned)
	if event.CacheHit {
		a.totals.CacheHits++
	} else {
		a.totals.CacheMisses++
	}
	if !event.Vector {
		a.totals.ScalarSearches++
	}
	if event.Matches == 0 {
		a.totals.ZeroMatchCount++
		a.zeroMatchCount[event.Query]++
	}
	a.queryCounts[event.Query]++

	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyUs)
	} else {
		a.latencies[a.next] = event.LatencyUs
		a.next = (a.next + 1) % latencyWindow
	}
}

// HandleEvent adapts the aggregator to a Kafka consumer. Undecodable
// messages are logged and skipped so they do not block the partition.
func (a *Aggregator) HandleEvent() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			a.logger.Warn("skipping undecodable analytics event", "key", string(key), "error", err)
			return nil
		}
		a.Track(event)
		return nil
	}
}

// Restore seeds the counters from a persisted snapshot so totals survive a
// restart. Latency samples and per-query counts start fresh apart from the
// persisted top lists.
func (a *Aggregator) Restore(prev AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals.TotalSearches += prev.TotalSearches
	a.totals.CacheHits += prev.CacheHits
	a.totals.CacheMisses += prev.CacheMisses
	a.totals.ZeroMatchCount += prev.ZeroMatchCount
	a.totals.CandidatesScanned += prev.CandidatesScanned
	a.totals.ScalarSearches += prev.ScalarSearches
	for _, q := range prev.TopQueries {
		a.queryCounts[q.Query] += q.Count
	}
	for _, q := range prev.ZeroMatchQueries {
		a.zeroMatchCount[q.Query] += q.Count
	}
	if !prev.Since.IsZero() && prev.Since.Before(a.startTime) {
		a.startTime = prev.Since
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := a.totals
	stats.Since = a.startTime
	if len(a.latencies) > 0 {
		sorted := append([]int64(nil), a.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyUs = float64(sum) / float64(len(sorted))
		stats.P50LatencyUs = percentile(sorted, 50)
		stats.P95LatencyUs = percentile(sorted, 95)
		stats.P99LatencyUs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroMatchQueries = topN(a.zeroMatchCount, 10)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count desc, then query asc, so equal counts list stably.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
