// Package fuzzy is the embeddable entry point of the matcher. Score rates a
// single query/candidate pair; Search ranks a whole haystack in parallel.
//
// The package-level functions use a Matcher built once from the detected CPU
// capability. Callers that need a fixed worker count or want to force the
// scalar path build their own Matcher.
package fuzzy

import (
	"context"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/matcher/dispatcher"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/matcher/scorer"
)

// Result is a matched candidate and its score.
type Result = dispatcher.Result

// Stats describes how a search was split across workers.
type Stats = dispatcher.Stats

// Capability reports which locator strategy a Matcher uses.
type Capability = scorer.Capability

// Options configures a Matcher.
type Options struct {
	// Workers bounds the number of concurrently scored chunks. Zero means
	// the logical CPU count.
	Workers int
	// DisableVector forces the byte-by-byte locator. Scores are unchanged.
	DisableVector bool
}

// Matcher scores and ranks candidates. It is safe for concurrent use.
type Matcher struct {
	scorer     *scorer.Scorer
	dispatcher *dispatcher.Dispatcher
}

// NewMatcher builds a Matcher from the detected CPU capability.
func NewMatcher(opts Options) *Matcher {
	c := scorer.Detect()
	if opts.DisableVector {
		c = c.Resolve("off")
	}
	return NewMatcherWithCapability(c, opts.Workers)
}

// NewMatcherWithCapability builds a Matcher from an explicit capability.
func NewMatcherWithCapability(c Capability, workers int) *Matcher {
	s := scorer.New(c)
	return &Matcher{
		scorer:     s,
		dispatcher: dispatcher.New(s, dispatcher.Options{Workers: workers}),
	}
}

func (m *Matcher) Score(query, text string) float32 {
	return m.scorer.Score(query, text)
}

// Positions returns the score and the matched byte offsets of text.
func (m *Matcher) Positions(query, text string) (float32, []int) {
	return m.scorer.Match(query, text)
}

func (m *Matcher) Search(query string, haystack []string) []Result {
	return m.dispatcher.Search(query, haystack)
}

func (m *Matcher) SearchWithStats(query string, haystack []string) ([]Result, Stats) {
	return m.dispatcher.SearchWithStats(query, haystack)
}

// SearchContext returns ctx.Err() if ctx ends before the search completes.
func (m *Matcher) SearchContext(ctx context.Context, query string, haystack []string) ([]Result, Stats, error) {
	return m.dispatcher.SearchContext(ctx, query, haystack)
}

func (m *Matcher) Capability() Capability {
	return m.scorer.Capability()
}

func (m *Matcher) Workers() int {
	return m.dispatcher.Workers()
}

// Fallbacks counts scores recomputed on the scalar path after a block
// locator failure.
func (m *Matcher) Fallbacks() int64 {
	return m.scorer.Fallbacks()
}

var defaultMatcher = sync.OnceValue(func() *Matcher {
	return NewMatcher(Options{})
})

// Score returns the fuzzy relevance of text for query; 0 means no match.
func Score(query, text string) float32 {
	return defaultMatcher().Score(query, text)
}

// Search returns every candidate of haystack with a positive score, ordered
// by score descending, then length ascending, then text ascending.
func Search(query string, haystack []string) []Result {
	return defaultMatcher().Search(query, haystack)
}

// VectorAvailable reports whether the default Matcher uses the block
// locator.
func VectorAvailable() bool {
	return defaultMatcher().Capability().Vector
}
