// Package scorer computes the fuzzy relevance of a query against a single
// candidate string.
//
// Every query byte must be found, in order, in the candidate. Each match earns
// a base credit plus bonuses for landing on a word start, extending a run of
// adjacent matches, and matching the query's case exactly. The total is
// normalized by the longer of the two strings and boosted when the whole
// query is matched within the first half of the candidate.
package scorer

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/matcher/locator"
)

const (
	baseCredit     float32 = 1.0
	wordStartBonus float32 = 2.0
	runStep        float32 = 0.5
	exactCaseBonus float32 = 0.5
	earlyBoost     float32 = 1.2
)

type checkedLocator interface {
	LocateChecked(pattern byte, text string, from int) (locator.Match, bool, error)
}

// scalarChecked adapts the scalar locator, which cannot fail.
type scalarChecked struct{}

func (scalarChecked) LocateChecked(pattern byte, text string, from int) (locator.Match, bool, error) {
	m, ok := locator.Scalar{}.Locate(pattern, text, from)
	return m, ok, nil
}

// Scorer scores query/candidate pairs. It is safe for concurrent use.
type Scorer struct {
	cap       Capability
	vector    checkedLocator
	scalar    checkedLocator
	fallbacks atomic.Int64
	logger    *slog.Logger
}

// New returns a Scorer that uses the block locator when c allows it.
func New(c Capability) *Scorer {
	return &Scorer{
		cap:    c,
		vector: locator.Vector{},
		scalar: scalarChecked{},
		logger: slog.Default().With("component", "scorer"),
	}
}

// Capability reports the strategy this scorer was built with.
func (s *Scorer) Capability() Capability {
	return s.cap
}

// Fallbacks reports how many scores were recomputed on the scalar path
// after the block path failed.
func (s *Scorer) Fallbacks() int64 {
	return s.fallbacks.Load()
}

// Score returns the relevance of text for query, or 0 if query is not an
// in-order case-insensitive subsequence of text.
func (s *Scorer) Score(query, text string) float32 {
	score, _ := s.match(query, text, nil)
	return score
}

// Match is Score plus the byte offsets of text that matched each query byte.
// Offsets are nil when the score is 0.
func (s *Scorer) Match(query, text string) (float32, []int) {
	positions := make([]int, 0, len(query))
	score, positions := s.match(query, text, positions)
	if score == 0 {
		return 0, nil
	}
	return score, positions
}

func (s *Scorer) match(query, text string, positions []int) (float32, []int) {
	if s.cap.Vector {
		score, pos, err := s.tryVector(query, text, positions)
		if err == nil {
			return score, pos
		}
		s.fallbacks.Add(1)
		s.logger.Debug("block locator failed, rescoring on scalar path",
			"error", err,
			"query_len", len(query),
			"text_len", len(text),
		)
		if positions != nil {
			positions = positions[:0]
		}
	}
	score, pos, _ := accumulate(s.scalar, query, text, positions)
	return score, pos
}

func (s *Scorer) tryVector(query, text string, positions []int) (score float32, pos []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			score, pos, err = 0, nil, fmt.Errorf("block locator panic: %v", r)
		}
	}()
	return accumulate(s.vector, query, text, positions)
}

func accumulate(loc checkedLocator, query, text string, positions []int) (float32, []int, error) {
	if len(query) == 0 || len(text) == 0 {
		return 0, positions, nil
	}

	var score float32
	cursor, last, run := 0, -1, 0
	for i := 0; i < len(query); i++ {
		m, ok, err := loc.LocateChecked(query[i], text, cursor)
		if err != nil {
			return 0, nil, err
		}
		if !ok {
			return 0, positions, nil
		}

		score += baseCredit
		if m.WordStart {
			score += wordStartBonus
		}
		if last >= 0 && m.Pos == last+1 {
			run++
		} else {
			run = 0
		}
		score += float32(run) * runStep
		if text[m.Pos] == query[i] {
			score += exactCaseBonus
		}

		if positions != nil {
			positions = append(positions, m.Pos)
		}
		last = m.Pos
		cursor = m.Pos + 1
	}

	score /= float32(max(len(text), len(query)))
	if last < len(text)/2 {
		score *= earlyBoost
	}
	return score, positions, nil
}
