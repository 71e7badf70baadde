// Package dispatcher runs the scorer across a whole haystack. The haystack is
// split into contiguous chunks, each chunk is scored by its own goroutine
// into a private buffer, and the buffers are merged and sorted once every
// worker has finished.
package dispatcher

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// MinChunkSize is the smallest number of candidates handed to one worker.
const MinChunkSize = 256

// Scorer scores one candidate. Implementations must be safe for concurrent use.
type Scorer interface {
	Score(query, text string) float32
}

// Result is a candidate that matched with a positive score.
type Result struct {
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// Chunk is the half-open haystack range [Start, End) owned by one worker.
type Chunk struct {
	Start int
	End   int
}

// Stats describes one search.
type Stats struct {
	Workers int           `json:"workers"`
	Chunks  int           `json:"chunks"`
	Scanned int           `json:"scanned"`
	Matched int           `json:"matched"`
	Elapsed time.Duration `json:"elapsed"`
}

// Options configures a Dispatcher. Workers <= 0 uses the logical CPU count.
type Options struct {
	Workers int
}

// Dispatcher fans a query out over a haystack. A Dispatcher holds no
// per-search state and may be shared.
type Dispatcher struct {
	scorer  Scorer
	workers int
	logger  *slog.Logger
}

func New(scorer Scorer, opts Options) *Dispatcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Dispatcher{
		scorer:  scorer,
		workers: max(workers, 1),
		logger:  slog.Default().With("component", "dispatcher"),
	}
}

// Workers reports the worker count used for partitioning.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Partition splits n candidates into chunks of max(MinChunkSize, n/workers)
// in haystack order. The last chunk may be shorter.
func Partition(n, workers int) []Chunk {
	if n <= 0 {
		return nil
	}
	workers = max(workers, 1)
	size := max(MinChunkSize, n/workers)
	chunks := make([]Chunk, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		chunks = append(chunks, Chunk{Start: start, End: min(start+size, n)})
	}
	return chunks
}

// Search returns every candidate with a positive score, ordered by score
// descending, then length ascending, then text ascending.
func (d *Dispatcher) Search(query string, haystack []string) []Result {
	results, _ := d.SearchWithStats(query, haystack)
	return results
}

// SearchContext is Search that stops waiting when ctx ends. Workers already
// running are not preempted; their results are discarded.
func (d *Dispatcher) SearchContext(ctx context.Context, query string, haystack []string) ([]Result, Stats, error) {
	type outcome struct {
		results []Result
		stats   Stats
	}
	done := make(chan outcome, 1)
	go func() {
		results, stats := d.SearchWithStats(query, haystack)
		done <- outcome{results: results, stats: stats}
	}()
	select {
	case o := <-done:
		return o.results, o.stats, nil
	case <-ctx.Done():
		return nil, Stats{}, ctx.Err()
	}
}

// SearchWithStats is Search that also reports how the work was split.
func (d *Dispatcher) SearchWithStats(query string, haystack []string) ([]Result, Stats) {
	start := time.Now()
	if query == "" || len(haystack) == 0 {
		return []Result{}, Stats{}
	}

	chunks := Partition(len(haystack), d.workers)
	buffers := make([][]Result, len(chunks))

	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, c := range chunks {
		g.Go(func() error {
			buffers[i] = d.scoreChunk(query, haystack[c.Start:c.End])
			return nil
		})
	}
	_ = g.Wait()

	merged := merge(buffers)
	Sort(merged)

	stats := Stats{
		Workers: min(d.workers, len(chunks)),
		Chunks:  len(chunks),
		Scanned: len(haystack),
		Matched: len(merged),
		Elapsed: time.Since(start),
	}
	d.logger.Debug("search dispatched",
		"query_len", len(query),
		"scanned", stats.Scanned,
		"chunks", stats.Chunks,
		"matched", stats.Matched,
		"elapsed", stats.Elapsed,
	)
	return merged, stats
}

func (d *Dispatcher) scoreChunk(query string, chunk []string) []Result {
	var out []Result
	for _, text := range chunk {
		if score := d.scorer.Score(query, text); score > 0 {
			out = append(out, Result{Text: text, Score: score})
		}
	}
	return out
}

func merge(buffers [][]Result) []Result {
	total := 0
	for _, b := range buffers {
		total += len(b)
	}
	merged := make([]Result, 0, total)
	for _, b := range buffers {
		merged = append(merged, b...)
	}
	return merged
}

// Less is the ranking order: score descending, then shorter text, then
// lexically smaller text.
func Less(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if len(a.Text) != len(b.Text) {
		return len(a.Text) < len(b.Text)
	}
	return a.Text < b.Text
}

// Sort orders results by Less.
func Sort(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return Less(results[i], results[j])
	})
}
